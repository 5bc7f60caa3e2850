package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/najoast/uboss/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	logger, atom, err := New(config.LogConfig{Level: config.LogLevelWarn, Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	atom.SetLevel(zapcore.InfoLevel)
	logger.Info("now shown")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), `"msg":"shown"`)
	assert.Contains(t, string(data), `"msg":"now shown"`)
}

func TestNewErrors(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)

	_, _, err = New(config.LogConfig{Level: config.LogLevelInfo, Format: "xml"})
	assert.Error(t, err)
}

func TestOptionsDebug(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.App.Environment = config.EnvTesting
	cfg.App.Debug = true

	logger, _, err := New(config.LogConfig{Level: config.LogLevelInfo, Output: filepath.Join(t.TempDir(), "debug.log")}, Options(cfg)...)
	require.NoError(t, err)
	assert.Panics(t, func() { logger.DPanic("boom") })

	cfg.App.Debug = false
	logger, _, err = New(config.LogConfig{Level: config.LogLevelInfo, Output: filepath.Join(t.TempDir(), "quiet.log")}, Options(cfg)...)
	require.NoError(t, err)
	assert.NotPanics(t, func() { logger.DPanic("boom") })
}

func TestOptionsProductionSamples(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.App.Environment = config.EnvProduction
	cfg.App.Debug = false

	path := filepath.Join(t.TempDir(), "prod.log")
	logger, _, err := New(config.LogConfig{Level: config.LogLevelInfo, Format: "json", Output: path}, Options(cfg)...)
	require.NoError(t, err)
	for i := 0; i < 300; i++ {
		logger.Info("repeated")
	}
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Count(string(data), "\n")
	assert.GreaterOrEqual(t, lines, 100)
	assert.Less(t, lines, 300)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel(config.LogLevelDebug)
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level)
}
