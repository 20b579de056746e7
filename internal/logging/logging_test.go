package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/mfateev/llm-relay-bot/internal/config"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		verbose bool
		want    zapcore.Level
	}{
		{name: "default", want: zapcore.InfoLevel},
		{name: "configured", cfg: config.LogConfig{Level: "warn"}, want: zapcore.WarnLevel},
		{name: "verbose wins", cfg: config.LogConfig{Level: "error"}, verbose: true, want: zapcore.DebugLevel},
		{name: "development", cfg: config.LogConfig{Level: "debug", Development: true}, want: zapcore.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg, tt.verbose, filepath.Join(t.TempDir(), "relay.log"))
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"}, false)
	assert.ErrorContains(t, err, "invalid log level")
}

func TestNew_WritesToOutputPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	logger, err := New(config.LogConfig{}, false, path)
	require.NoError(t, err)

	logger.Info("model reply")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"model reply"`)
}
