package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"os"
	"strings"
)

type bearerTokenKey struct{}

// TokenList holds the operator tokens accepted by SimpleTokenAuthorizedOnly,
// sourced from the TOKEN_LIST environment variable at startup.
var TokenList = splitTokenList(os.Getenv("TOKEN_LIST"))

func splitTokenList(raw string) []string {
	var tokens []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// BearerToken pulls the bearer token out of the Authorization header and
// stashes it on the request context for the authorization middlewares.
func BearerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		if scheme, rest, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "bearer") {
			token = rest
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), bearerTokenKey{}, token)))
	})
}

func isSimpleTokenValid(list []string, token string) bool {
	if token == "" {
		return false
	}
	for _, valid := range list {
		// token length still leaks through ConstantTimeCompare
		if subtle.ConstantTimeCompare([]byte(valid), []byte(token)) == 1 {
			return true
		}
	}
	return false
}

func isSimpleTokenInContext(ctx context.Context) bool {
	token, ok := ctx.Value(bearerTokenKey{}).(string)
	return ok && isSimpleTokenValid(TokenList, token)
}

// SimpleTokenAuthorizedOnly rejects requests whose context does not carry one
// of the configured operator tokens. BearerToken must run earlier in the chain.
func SimpleTokenAuthorizedOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isSimpleTokenInContext(r.Context()) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
