package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", "text")

	log.Debug("hidden")
	log.Info("processed", "key", "src")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, "time=")
	assert.Contains(t, out, "msg=processed")
	assert.Contains(t, out, "key=src")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug", "json")

	log.Debug("stage", "stage", "encoding")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "stage", rec["msg"])
	assert.Equal(t, "encoding", rec["stage"])
	assert.NotContains(t, rec, "time")
}
