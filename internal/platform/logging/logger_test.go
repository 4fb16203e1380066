package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/hazixroland-ai/tiktoklive/internal/platform/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "text")

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "verbose", "text")

	logger.Debug("debug line")
	logger.Info("info line")

	assert.NotContains(t, buf.String(), "debug line")
	assert.Contains(t, buf.String(), "info line")
}

func TestNew_JSONWithCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "DEBUG", "json")

	ctx := correlation.WithID(context.Background(), "abcd1234")
	logger.DebugContext(ctx, "gift applied", "points", 5)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "gift applied", entry["msg"])
	assert.Equal(t, "abcd1234", entry["correlation_id"])
	assert.Equal(t, float64(5), entry["points"])
}
