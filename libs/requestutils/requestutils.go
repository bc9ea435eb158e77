// Package requestutils carries request ids between services and bounds how
// much of a request or response body we are willing to read.
package requestutils

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/portal-pay/portal-go/libs/closers"
	errorutils "github.com/portal-pay/portal-go/libs/errors"
	"github.com/portal-pay/portal-go/libs/logging"
)

type requestID string

// RequestIDHeaderKey is the header used to pass request ids between services.
const RequestIDHeaderKey = "x-request-id"

// RequestID is the context key holding the request id.
var RequestID = requestID(RequestIDHeaderKey)

// maxPayloadBytes bounds any body read through this package.
const maxPayloadBytes = 10 << 20

// Read consumes body up to the payload limit, closing it when it is a closer.
func Read(ctx context.Context, body io.Reader) ([]byte, error) {
	if c, ok := body.(io.Closer); ok {
		defer closers.Panic(ctx, c)
	}
	b, err := io.ReadAll(io.LimitReader(body, maxPayloadBytes))
	if err != nil {
		return nil, errorutils.Wrap(err, "error reading body")
	}
	return b, nil
}

// ReadJSON reads body and unmarshals it into v.
func ReadJSON(ctx context.Context, body io.Reader, v interface{}) error {
	if body == nil {
		return errorutils.New(errors.New("body is nil"), "Error in request body", nil)
	}
	b, err := Read(ctx, body)
	if err != nil {
		return err
	}
	logging.Logger(ctx, "requestutils.ReadJSON").Debug().Str("json", string(b)).Msg("read payload")
	if err := json.Unmarshal(b, v); err != nil {
		return errorutils.Wrap(err, "error unmarshalling body")
	}
	return nil
}

// GetRequestID returns the request id stored on ctx, if any.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestID).(string)
	return id
}

// SetRequestID copies the request id from ctx onto an outgoing request.
func SetRequestID(ctx context.Context, r *http.Request) {
	if id := GetRequestID(ctx); id != "" {
		r.Header.Set(RequestIDHeaderKey, id)
	}
}
