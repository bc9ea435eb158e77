// Package errors carries the error bundle and multi error helpers shared by
// the portal services.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCertificateExpired signals an x509 certificate past its notAfter date.
var ErrCertificateExpired = errors.New("the certificate is expired")

// ErrorBundle attaches a message and structured data to a cause error.
type ErrorBundle struct {
	cause   error
	message string
	data    interface{}
}

// New creates an ErrorBundle from cause with a message and attached data.
func New(cause error, message string, data interface{}) error {
	return &ErrorBundle{cause, message, data}
}

// Wrap creates an ErrorBundle carrying only a cause and message.
func Wrap(cause error, message string) error {
	return &ErrorBundle{cause: cause, message: message}
}

// Error returns the bundle's message.
func (e ErrorBundle) Error() string {
	return e.message
}

// Cause returns the underlying error.
func (e ErrorBundle) Cause() error {
	return e.cause
}

// Unwrap returns the underlying error.
func (e ErrorBundle) Unwrap() error {
	return e.cause
}

// Data returns the structured data attached when the bundle was created.
func (e ErrorBundle) Data() interface{} {
	return e.data
}

// DataToString renders the attached data as json for logging.
func (e ErrorBundle) DataToString() string {
	if e.data == nil {
		return "no error bundle data"
	}
	b, err := json.Marshal(e.data)
	if err != nil {
		return fmt.Sprintf("error retrieving error bundle data %s", err.Error())
	}
	return string(b)
}

// MultiError collects errors which are not part of a single chain.
type MultiError struct {
	Errs []error
}

// Append adds errors to the collection.
func (me *MultiError) Append(errs ...error) {
	me.Errs = append(me.Errs, errs...)
}

// Count returns the number of collected errors.
func (me *MultiError) Count() int {
	return len(me.Errs)
}

// Error implements the error interface.
func (me *MultiError) Error() string {
	var text string
	for _, err := range me.Errs {
		if text != "" {
			text += "; "
		}
		text += fmt.Sprint(err)
	}
	return text
}

// node links the flattened errors so a stdlib Is/As walk visits every
// collected error and every link of their causes.
type node struct {
	err  error
	next error
}

func (n *node) Error() string {
	if n.next == nil {
		return n.err.Error()
	}
	return n.err.Error() + ": " + n.next.Error()
}

func (n *node) Is(target error) bool { return target == n.err }

func (n *node) As(target interface{}) bool { return errors.As(n.err, target) }

func (n *node) Unwrap() error { return n.next }

// Unwrap exposes the collected errors as a single chain for errors.Is and
// errors.As.
func (me *MultiError) Unwrap() error {
	var flat []error
	for _, err := range me.Errs {
		for e := err; e != nil; e = errors.Unwrap(e) {
			flat = append(flat, e)
		}
	}

	var chain error
	for i := len(flat) - 1; i >= 0; i-- {
		chain = &node{err: flat[i], next: chain}
	}
	return chain
}
