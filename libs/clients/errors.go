package clients

import (
	"errors"

	errorutils "github.com/portal-pay/portal-go/libs/errors"
)

// Messages wrapped around client errors to locate the failure.
const (
	// ErrUnableToDecode means the response body did not match the expected shape.
	ErrUnableToDecode = "unable to decode response"
	// ErrProtocolError means the endpoint rejected the data we sent.
	ErrProtocolError = "protocol error"
	// ErrUnableToEscapeURL means the request path could not be escaped.
	ErrUnableToEscapeURL = "unable to escape url"
	// ErrInvalidHost means the base url host was invalid.
	ErrInvalidHost = "invalid host"
	// ErrMalformedRequest means the request could not be constructed.
	ErrMalformedRequest = "malformed request"
	// ErrUnableToEncodeBody means the request body could not be encoded.
	ErrUnableToEncodeBody = "unable to encode body"
)

// HTTPState captures the response state for callers higher in the stack.
type HTTPState struct {
	Status int
	Path   string
	Body   interface{}
}

// NewHTTPError bundles err with the http state of the failed exchange.
func NewHTTPError(err error, path, message string, status int, v interface{}) error {
	return errorutils.New(err, message, HTTPState{
		Status: status,
		Path:   path,
		Body:   v,
	})
}

// UnwrapHTTPState pulls the HTTPState out of a wrapped error when present.
func UnwrapHTTPState(err error) (*HTTPState, bool) {
	var eb *errorutils.ErrorBundle
	if !errors.As(err, &eb) {
		return nil, false
	}
	state, ok := eb.Data().(HTTPState)
	if !ok {
		return nil, false
	}
	return &state, true
}
