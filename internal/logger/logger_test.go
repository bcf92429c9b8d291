package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reset(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetWriter(&buf)
	SetFormat("text")
	SetLevel("INFO")
	t.Cleanup(func() {
		SetWriter(os.Stdout)
		SetFormat("text")
		SetLevel("INFO")
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := reset(t)

	Debug("hidden %d", 1)
	Info("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 2")

	SetLevel("error")
	Warn("warning")
	Error("failure")
	assert.NotContains(t, buf.String(), "warning")
	assert.Contains(t, buf.String(), "failure")
	assert.False(t, Enabled(LevelWarn))
}

func TestJSONFormat(t *testing.T) {
	buf := reset(t)
	SetFormat("json")

	Info("stored %s", "object")

	line := strings.TrimSpace(buf.String())
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &record))
	assert.Equal(t, "info", record["level"])
	assert.Equal(t, "stored object", record["message"])
}

func TestStructuredLogger(t *testing.T) {
	buf := reset(t)
	SetFormat("json")

	Logger().Info().Str("operation", "stat").Msg("done")
	assert.Contains(t, buf.String(), `"operation":"stat"`)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}
