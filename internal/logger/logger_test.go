package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_Development(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("LOG_FILE", "")
	t.Setenv("LOG_LEVEL", "")

	log, err := NewLogger()
	assert.NoError(t, err)
	assert.NotNil(t, log)
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))

	_ = log.Sync()
}

func TestNewLogger_Production(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("LOG_FILE", "")
	t.Setenv("LOG_LEVEL", "warn")

	log, err := NewLogger()
	assert.NoError(t, err)
	assert.NotNil(t, log)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))

	_ = log.Sync()
}

// Skipping file logging test due to lumberjack cleanup issues in tests

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		envLevel string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"ERROR", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"invalid", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tc := range testCases {
		t.Run(tc.envLevel, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseLevel(tc.envLevel))
		})
	}
}

func TestLogDuration(t *testing.T) {
	observedCore, observedLogs := observer.New(zapcore.DebugLevel)
	testLogger := zap.New(observedCore)

	LogDuration(testLogger, "scan", 150*time.Millisecond, zap.String("monitor", "engagement-reminder"))

	assert.Equal(t, 1, observedLogs.Len(), "expected exactly one log message")

	logEntry := observedLogs.AllUntimed()[0]
	assert.Equal(t, zapcore.InfoLevel, logEntry.Level)
	assert.Equal(t, "operation completed", logEntry.Message)

	fields := logEntry.ContextMap()
	assert.Len(t, fields, 3)
	assert.Equal(t, "scan", fields["operation"])
	assert.Equal(t, int64(150), fields["duration_ms"])
	assert.Equal(t, "engagement-reminder", fields["monitor"])
}

func TestWithContext(t *testing.T) {
	observedCore, observedLogs := observer.New(zapcore.DebugLevel)
	testLogger := zap.New(observedCore)

	ctxLogger := WithContext(testLogger, zap.String("component", "test"))
	ctxLogger.Info("test message")

	assert.Equal(t, 1, observedLogs.Len())
	logEntry := observedLogs.AllUntimed()[0]
	assert.Equal(t, "test message", logEntry.Message)
	assert.Equal(t, "test", logEntry.ContextMap()["component"])
}
