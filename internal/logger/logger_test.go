package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestJSONLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter("warn", "json", &buf)
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown", zap.String("file", "a.txt"))
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "a.txt", entry["file"])
	assert.Equal(t, "warn", entry["level"])
}

func TestConsoleLoggerWritesDebugWhenVerbose(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter("DEBUG", "console", &buf)
	require.NoError(t, err)

	log.Debug("chunked", zap.Int("chunks", 3))
	assert.Contains(t, buf.String(), "chunked")
	assert.Contains(t, buf.String(), `"chunks": 3`)
}

func TestNewRejectsBadSettings(t *testing.T) {
	_, err := New("loud", "console")
	assert.Error(t, err)
	_, err = New("info", "xml")
	assert.Error(t, err)
}
