package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/fateweaver/internal/config"
)

func TestSetup_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := setup(&buf, &config.Config{Environment: "production", LogLevel: slog.LevelInfo})

	WithPlaythrough(WithRequestID(log, "req-1"), "p-1").Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "p-1", line["playthrough_id"])
}

func TestSetup_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := setup(&buf, &config.Config{Environment: "development", LogLevel: slog.LevelWarn})

	log.Info("dropped")
	WithError(log, errors.New("boom")).Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
	assert.Contains(t, out, "error=boom")
}
