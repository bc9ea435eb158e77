package middleware

import (
	"fmt"
	"net/http"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/portal-pay/portal-go/libs/handlers"
)

var ipPortRE = regexp.MustCompile(`[0-9]+(?:\.[0-9]+){3}(:[0-9]+)?`)

// RequestLogger logs the start and completion of each request and recovers
// panics, reporting them to sentry before rendering a 500.
func RequestLogger(logger *zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// prometheus scrapes are noise
			if r.URL.EscapedPath() == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now().UTC()

			logger := hlog.FromRequest(r)
			requestLog(logger, r, 0).Msg("request started")

			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().
						Str("panic", fmt.Sprintf("%+v", rec)).
						Str("stacktrace", string(debug.Stack())).
						Msg("panic recovered")

					// normalize addresses so sentry groups repeats as one event
					event := sentry.NewEvent()
					event.Message = string(ipPortRE.ReplaceAll([]byte(fmt.Sprint(rec)), []byte("x.x.x.x:xxxx")))
					sentry.CaptureEvent(event)

					(&handlers.AppError{
						Message: http.StatusText(http.StatusInternalServerError),
						Code:    http.StatusInternalServerError,
					}).ServeHTTP(w, r)
				}

				status := ww.Status()
				requestLog(logger, r, status).
					Int("status", status).
					Int("size", ww.BytesWritten()).
					Dur("duration", time.Now().UTC().Sub(start)).
					Msg("request complete")
			}()

			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))
		})
	}
}

// requestLog picks the level from the response status and stamps the shared
// request fields.
func requestLog(logger *zerolog.Logger, r *http.Request, status int) *zerolog.Event {
	var evt *zerolog.Event
	switch {
	case status >= 400 && status <= 499:
		evt = logger.Warn()
	case status >= 500:
		evt = logger.Error()
	default:
		evt = logger.Info()
	}

	evt = evt.
		Str("host", r.Host).
		Str("http_proto", r.Proto).
		Str("http_method", r.Method).
		Str("uri", r.URL.EscapedPath())

	if extReqID := r.Header.Get("X-Request-ID"); extReqID != "" {
		evt = evt.Str("x_request_id", extReqID)
	}

	return evt
}
