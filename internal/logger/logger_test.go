package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseLogLevel(tc.input))
		})
	}
}

func TestOrDefault(t *testing.T) {
	custom := zap.NewExample()
	assert.Same(t, custom, OrDefault(custom))
	assert.Same(t, Log, OrDefault(nil))
}

func TestInitializeWritesToFile(t *testing.T) {
	previous := Log
	t.Cleanup(func() {
		Log = previous
		SugaredLog = previous.Sugar()
	})

	logFile := filepath.Join(t.TempDir(), "fanout.log")
	require.NoError(t, Initialize("debug", logFile))
	assert.NotNil(t, Log)
	assert.True(t, Log.Core().Enabled(zapcore.DebugLevel))
	_ = Close() // syncing stdout can fail on some platforms
	assert.FileExists(t, logFile)
}
