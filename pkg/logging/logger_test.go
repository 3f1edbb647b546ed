package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/correlation"
)

func TestZeroLoggerAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(WithOutput(&buf), WithLevel("debug"))

	ctx := correlation.WithRequestID(context.Background(), "req-42")
	logger.Debug(ctx, "guard verdict", map[string]interface{}{"stage": "input"})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-42", line["request_id"])
	assert.Equal(t, "input", line["stage"])
	assert.Equal(t, "guard verdict", line["message"])
	assert.Equal(t, "debug", line["level"])
}

func TestZeroLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(WithOutput(&buf), WithLevel("warn"))

	logger.Info(context.Background(), "dropped", nil)
	assert.Zero(t, buf.Len())

	logger.Error(context.Background(), "kept", nil)
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestNopLogger(t *testing.T) {
	// Must not panic on any level
	logger := NewNop()
	logger.Info(context.Background(), "x", nil)
	logger.Error(context.TODO(), "y", map[string]interface{}{"a": 1})
}
