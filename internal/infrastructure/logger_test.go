package infrastructure

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allyinlic/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{level: "debug", want: slog.LevelDebug},
		{level: "info", want: slog.LevelInfo},
		{level: "WARN", want: slog.LevelWarn},
		{level: "warning", want: slog.LevelWarn},
		{level: "error", want: slog.LevelError},
		{level: "", want: slog.LevelInfo},
		{level: "bogus", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLogLevel(tt.level), "level %q", tt.level)
	}
}

func TestCreateLoggerWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	logger, err := createLogger(config.LoggingConfig{
		Level:    "debug",
		Format:   "json",
		Output:   "file",
		FilePath: path,
	})
	require.NoError(t, err)
	t.Cleanup(func() { CloseLogger() })

	logger.Info("license installed", slog.String("customer_id", "CUSTOMER1"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := bytes.TrimSpace(data)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(line, &entry))
	assert.Equal(t, "license installed", entry["msg"])
	assert.Equal(t, "CUSTOMER1", entry["customer_id"])
}

func TestCreateLoggerRequiresFilePath(t *testing.T) {
	_, err := createLogger(config.LoggingConfig{Output: "file"})
	require.Error(t, err)
}

func TestGetLoggerFallsBackToDefault(t *testing.T) {
	assert.NotNil(t, GetLogger())
}
