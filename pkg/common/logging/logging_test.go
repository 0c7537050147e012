package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level       string
		development bool
		enabled     zapcore.Level
		disabled    zapcore.Level
	}{
		{"", false, zapcore.InfoLevel, zapcore.DebugLevel},
		{"debug", false, zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"warn", true, zapcore.WarnLevel, zapcore.InfoLevel},
		{"ERROR", false, zapcore.ErrorLevel, zapcore.WarnLevel},
	}
	for _, tt := range tests {
		logger, err := NewLogger(tt.level, tt.development)
		require.NoError(t, err, tt.level)
		assert.True(t, logger.Core().Enabled(tt.enabled), tt.level)
		assert.False(t, logger.Core().Enabled(tt.disabled), tt.level)
	}
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	_, err := NewLogger("verbose", false)
	assert.ErrorContains(t, err, `invalid log level "verbose"`)
}
