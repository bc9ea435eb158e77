// Package inputs decodes and validates request parameters through a pair of
// small interfaces, collecting every failure into one error.
package inputs

import (
	"context"
	"fmt"

	errorutils "github.com/portal-pay/portal-go/libs/errors"
)

// Decodable parses raw input into the receiver.
type Decodable interface {
	Decode(context.Context, []byte) error
}

// Validatable checks the receiver after decoding.
type Validatable interface {
	Validate(context.Context) error
}

// DecodeValidate is implemented by inputs that do both.
type DecodeValidate interface {
	Decodable
	Validatable
}

// DecodeAndValidate decodes input into v and validates the result, returning
// every failure encountered.
func DecodeAndValidate(ctx context.Context, v DecodeValidate, input []byte) error {
	me := new(errorutils.MultiError)
	if err := v.Decode(ctx, input); err != nil {
		me.Append(fmt.Errorf("failed decoding: %w", err))
	}
	if err := v.Validate(ctx); err != nil {
		me.Append(fmt.Errorf("failed validation: %w", err))
	}
	if me.Count() > 0 {
		return me
	}
	return nil
}

// DecodeAndValidateString is DecodeAndValidate for string parameters.
func DecodeAndValidateString(ctx context.Context, v DecodeValidate, input string) error {
	return DecodeAndValidate(ctx, v, []byte(input))
}
