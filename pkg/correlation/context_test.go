package correlation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRequestID(t *testing.T) {
	_, err := GetRequestID(context.Background())
	assert.ErrorIs(t, err, ErrNoRequestID)

	ctx := WithRequestID(context.Background(), "req-1")
	id, err := GetRequestID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "req-1", id)

	_, err = GetRequestID(WithRequestID(context.Background(), ""))
	assert.ErrorIs(t, err, ErrNoRequestID)
}

func TestEnsureRequestID(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	got, err := GetRequestID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	// An existing ID is kept
	again, sameID := EnsureRequestID(ctx)
	assert.Equal(t, id, sameID)
	assert.Equal(t, ctx, again)
}
