// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nelakvee/recordsync/internal/config"
)

// -- Test Cases --

func TestInitialize(t *testing.T) {
	t.Run("console logger with colors", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
			Colors:      config.ColorConfig{Info: "green"},
		}, zapcore.AddSync(&buf))
		GetLogger().Info("This is a test message.")

		output := buf.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "This is a test message.")
		assert.Contains(t, output, colorGreen)
		assert.Contains(t, output, colorReset)
		assert.Contains(t, output, "TestService.")
	})

	t.Run("json logger", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		}, zapcore.AddSync(&buf))
		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "This is a JSON message.", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("level filtering", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{Level: "warn", Format: "json"}, zapcore.AddSync(&buf))
		GetLogger().Info("hidden")
		assert.Empty(t, buf.String())
	})

	t.Run("writes rotated file", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		logFile := filepath.Join(t.TempDir(), "run.log")

		Initialize(config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: logFile,
			MaxSize: 1,
		}, zapcore.AddSync(&bytes.Buffer{}))
		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
	})

	t.Run("only initializes once", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{Level: "info", ServiceName: "First"}, zapcore.AddSync(&buf))
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(&buf))

		assert.Same(t, first, GetLogger())
		GetLogger().Debug("suppressed by first config")
		assert.NotContains(t, buf.String(), "suppressed")
	})
}

func TestGetLogger_Fallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
	assert.Equal(t, "fallback", logger.Name())
}
