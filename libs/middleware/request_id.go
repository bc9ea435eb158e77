package middleware

import (
	"context"
	"crypto/sha256"
	"net/http"

	uuid "github.com/satori/go.uuid"
	"github.com/shengdoushi/base58"

	"github.com/portal-pay/portal-go/libs/requestutils"
)

// RequestIDTransfer propagates the inbound x-request-id header, minting one
// when absent, onto the response and the request context.
func RequestIDTransfer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestutils.RequestIDHeaderKey)
		if reqID == "" {
			reqID = newRequestID()
		}
		w.Header().Set(requestutils.RequestIDHeaderKey, reqID)
		ctx := context.WithValue(r.Context(), requestutils.RequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// newRequestID mints a short opaque id safe to echo back to clients.
func newRequestID() string {
	sum := sha256.Sum256(uuid.NewV4().Bytes())
	return base58.Encode(sum[:], base58.BitcoinAlphabet)[:16]
}
