package inputs

import (
	"context"
	"errors"

	uuid "github.com/satori/go.uuid"
)

var (
	// ErrIDDecodeEmpty is returned when an id parameter is missing.
	ErrIDDecodeEmpty = errors.New("failed to decode id: id cannot be empty")
	// ErrIDDecodeNotUUID is returned when an id parameter is not a valid uuid.
	ErrIDDecodeNotUUID = errors.New("failed to decode id: id is not a uuid")
)

// ID decodes a uuid path or query parameter, keeping the raw text around for
// error reporting.
type ID struct {
	uuid *uuid.UUID
	raw  string
}

// UUID returns the parsed uuid, nil until Decode succeeds.
func (id *ID) UUID() *uuid.UUID { return id.uuid }

// String returns the raw input the id was decoded from.
func (id *ID) String() string { return id.raw }

// Decode parses input as a uuid.
func (id *ID) Decode(ctx context.Context, input []byte) error {
	if len(input) == 0 {
		return ErrIDDecodeEmpty
	}
	id.raw = string(input)

	parsed, err := uuid.FromString(id.raw)
	if err != nil {
		return ErrIDDecodeNotUUID
	}
	id.uuid = &parsed
	return nil
}

// Validate is a no-op, all checking happens in Decode.
func (id *ID) Validate(ctx context.Context) error { return nil }
