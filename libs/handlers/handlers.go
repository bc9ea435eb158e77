// Package handlers carries the JSON handler plumbing and error envelope types
// shared by the portal's REST surfaces.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"github.com/portal-pay/portal-go/libs/requestutils"
)

// AppError is the error envelope rendered by every portal handler.
type AppError struct {
	Cause     error       `json:"-"`
	Message   string      `json:"message"`             // human readable summary
	ErrorCode string      `json:"errorCode,omitempty"` // stable machine readable code
	Code      int         `json:"code"`                // mirrors the http status
	Data      interface{} `json:"data,omitempty"`      // extra context, e.g. field errors
}

// Error implements the error interface, folding in the cause when present.
func (e *AppError) Error() string {
	if e.Cause == nil {
		return "error: " + e.Message
	}
	return "error: " + e.Message + ": " + e.Cause.Error()
}

// ServeHTTP writes the envelope with its status code.
func (e *AppError) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(e.Code)
	if err := json.NewEncoder(w).Encode(e); err != nil {
		panic(err)
	}
}

// WrapError returns err as an AppError with msg prefixed. When err already is
// an AppError its code, error code and data carry through, otherwise
// passedCode applies with 400 as the fallback.
func WrapError(err error, msg string, passedCode int) *AppError {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		code := passedCode
		if code == 0 {
			code = http.StatusBadRequest
		}
		return &AppError{
			Cause:   err,
			Message: msg,
			Code:    code,
		}
	}

	code := appErr.Code
	if code == 0 {
		code = passedCode
	}
	if msg != "" {
		msg += ": "
	}

	return &AppError{
		Cause:     appErr.Cause,
		Message:   msg + appErr.Message,
		ErrorCode: appErr.ErrorCode,
		Code:      code,
		Data:      appErr.Data,
	}
}

// RenderContent writes v according to the negotiated content type.
func RenderContent(ctx context.Context, v interface{}, w http.ResponseWriter, status int) *AppError {
	if w.Header().Get("content-type") != "application/json" {
		return nil
	}

	var b bytes.Buffer
	if err := json.NewEncoder(&b).Encode(v); err != nil {
		return WrapError(err, "Error encoding JSON", http.StatusInternalServerError)
	}

	w.WriteHeader(status)
	if _, err := w.Write(b.Bytes()); err != nil {
		return WrapError(err, "Error writing a response", http.StatusInternalServerError)
	}

	return nil
}

// WrapValidationError renders a govalidator error per offending field.
func WrapValidationError(err error) *AppError {
	return ValidationError("request body", govalidator.ErrorsByField(err))
}

// ValidationError communicates that a malformed request was received.
func ValidationError(message string, validationErrors interface{}) *AppError {
	return &AppError{
		Message: "Error validating " + message,
		Code:    http.StatusBadRequest,
		Data: map[string]interface{}{
			"validationErrors": validationErrors,
		},
	}
}

// AppHandler is an http.Handler with JSON requests and responses.
type AppHandler func(http.ResponseWriter, *http.Request) *AppError

func acceptsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return accept == "" || strings.Contains(accept, "application/json") || strings.Contains(accept, "*/*")
}

// ServeHTTP runs the handler and renders any returned AppError, reporting
// server faults to sentry.
func (fn AppHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if acceptsJSON(r) {
		w.Header().Set("content-type", "application/json")
	} else {
		// cannot supply the encoding the client asked for
		w.WriteHeader(http.StatusBadRequest)
	}

	e := fn(w, r)
	if e == nil {
		return
	}

	if e.Code >= 500 && e.Code <= 599 {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTags(map[string]string{
				"reqID": requestutils.GetRequestID(r.Context()),
			})
			sentry.CaptureException(e)
		})
	}

	logger := zerolog.Ctx(r.Context())
	logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Err(e)
	})

	if e.Cause != nil {
		e.Message = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}

	e.ServeHTTP(w, r)
}
