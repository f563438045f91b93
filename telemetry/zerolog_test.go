package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerPairsKeyvalsAsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(zerolog.New(&buf))

	logger.Info(context.Background(), "step started", "run_id", "run-1", "step", 3)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "step started", decoded["message"])
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Equal(t, float64(3), decoded["step"])
	assert.Equal(t, "info", decoded["level"])
}

func TestZerologLoggerTrailingUnpairedKeyLogsAsExtra(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(zerolog.New(&buf))

	logger.Warn(context.Background(), "odd keyvals", "only_key")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "only_key", decoded["extra"])
}

func TestZerologLoggerErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(zerolog.New(&buf))

	logger.Error(context.Background(), "boom")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "error", decoded["level"])
}
