package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		env       string
		level     string
		wantLevel zapcore.Level
	}{
		{"local", "debug", zapcore.DebugLevel},
		{"test", "info", zapcore.InfoLevel},
		{"production", "warn", zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			logger, err := NewLogger(tt.env, tt.level)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.wantLevel))
			assert.False(t, logger.Core().Enabled(tt.wantLevel-1))
		})
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger("local", "loud")
	assert.Error(t, err)
}
