// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/scalpel-ui/internal/config"
)

// bufferSyncer lets a test capture console output without touching os.Stdout.
type bufferSyncer struct {
	bytes.Buffer
}

func (b *bufferSyncer) Sync() error { return nil }

var _ zapcore.WriteSyncer = (*bufferSyncer)(nil)

func TestInitialize(t *testing.T) {
	t.Run("console format colorizes levels and names components", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		buf := &bufferSyncer{}
		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "scalpel-ui",
			Colors:      config.ColorConfig{Info: "green"},
		}, buf)

		GetLogger().Named("element").Info("Label 'Search' :: is present")

		out := buf.String()
		assert.Contains(t, out, colorGreen+"INFO"+colorReset)
		assert.Contains(t, out, "scalpel-ui.element.")
		assert.Contains(t, out, "Label 'Search' :: is present")
	})

	t.Run("json format emits parseable lines", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		buf := &bufferSyncer{}
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "svc"}, buf)
		GetLogger().Info("hello")

		var line map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line))
		assert.Equal(t, "INFO", line["level"])
		assert.Equal(t, "hello", line["msg"])
		assert.Equal(t, "svc", line["logger"])
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		buf := &bufferSyncer{}
		Initialize(config.LoggerConfig{Level: "chatty", Format: "json"}, buf)
		GetLogger().Debug("suppressed")
		GetLogger().Info("kept")

		assert.NotContains(t, buf.String(), "suppressed")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("second initialization is ignored", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		first := &bufferSyncer{}
		second := &bufferSyncer{}
		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, first)
		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, second)
		GetLogger().Info("only once")

		assert.Contains(t, first.String(), "only once")
		assert.Empty(t, second.String())
	})
}

func TestInitialize_WritesRotatingFile(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logFile := filepath.Join(t.TempDir(), "run.log")
	Initialize(config.LoggerConfig{Level: "info", Format: "console", LogFile: logFile, MaxSize: 1}, &bufferSyncer{})
	GetLogger().Warn("to disk")
	Sync()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to disk"`)
}

func TestGetLogger_Fallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
	assert.NotPanics(t, func() { logger.Info("fallback works") })
}
