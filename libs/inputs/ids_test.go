package inputs

import (
	"context"
	"testing"

	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDDecode(t *testing.T) {
	raw := uuid.NewV4()

	var id ID
	require.NoError(t, DecodeAndValidateString(context.Background(), &id, raw.String()))
	assert.Equal(t, raw.String(), id.String())
	require.NotNil(t, id.UUID())
	assert.Equal(t, raw, *id.UUID())
}

func TestIDDecodeRejectsBadInput(t *testing.T) {
	var id ID
	assert.ErrorIs(t, DecodeAndValidateString(context.Background(), &id, ""), ErrIDDecodeEmpty)
	assert.ErrorIs(t, DecodeAndValidateString(context.Background(), &id, "not-a-uuid"), ErrIDDecodeNotUUID)
}
