package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.NotNil(t, logger.zap)
	assert.Equal(t, cfg, logger.config)
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLogger_ContextAwareMethods(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	logger := &Logger{
		zap:    zap.New(core),
		config: NewDefaultConfig(),
	}

	ctx := WithInvocationID(context.Background(), "inv-1")

	tests := []struct {
		name    string
		logFunc func()
		level   zapcore.Level
		message string
	}{
		{
			name:    "trace",
			logFunc: func() { logger.Trace(ctx, "trace message", zap.String("key", "val")) },
			level:   TraceLevel,
			message: "trace message",
		},
		{
			name:    "debug",
			logFunc: func() { logger.Debug(ctx, "debug message", zap.String("key", "val")) },
			level:   zapcore.DebugLevel,
			message: "debug message",
		},
		{
			name:    "info",
			logFunc: func() { logger.Info(ctx, "info message", zap.String("key", "val")) },
			level:   zapcore.InfoLevel,
			message: "info message",
		},
		{
			name:    "warn",
			logFunc: func() { logger.Warn(ctx, "warn message", zap.String("key", "val")) },
			level:   zapcore.WarnLevel,
			message: "warn message",
		},
		{
			name:    "error",
			logFunc: func() { logger.Error(ctx, "error message", zap.String("key", "val")) },
			level:   zapcore.ErrorLevel,
			message: "error message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observed.TakeAll()
			tt.logFunc()

			logs := observed.All()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.level, logs[0].Level)
			assert.Equal(t, tt.message, logs[0].Message)

			fields := logs[0].ContextMap()
			assert.Equal(t, "inv-1", fields["invocation.id"])
			assert.Equal(t, "val", fields["key"])
		})
	}
}

func TestLogger_TraceDisabledAboveLevel(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	logger := &Logger{zap: zap.New(core), config: NewDefaultConfig()}

	logger.Trace(context.Background(), "hidden")
	assert.Empty(t, observed.All())
}

func TestLogger_WithAndNamed(t *testing.T) {
	tl := NewTestLogger()

	child := tl.With(zap.String("component", "snapshot")).Named("repo")
	child.Info(context.Background(), "child message")

	tl.AssertLogged(t, zapcore.InfoLevel, "child message")
	tl.AssertField(t, "child message", "component", "snapshot")
	require.Len(t, tl.All(), 1)
	assert.Equal(t, "repo", tl.All()[0].LoggerName)
}

func TestNewLogger_WritesToConfiguredOutput(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Format = "json"
	cfg.Level = zapcore.DebugLevel
	cfg.Output = &buf

	logger, err := NewLogger(cfg)
	require.NoError(t, err)

	logger.Debug(WithProject(context.Background(), "shop"), "hello", zap.String("hash", "abc"))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.Contains(t, out, `"msg":"hello"`)
	assert.Contains(t, out, `"project":"shop"`)
	assert.Contains(t, out, `"hash":"abc"`)
}

func TestNewLogger_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Level = zapcore.InfoLevel
	cfg.Output = &buf

	logger, err := NewLogger(cfg)
	require.NoError(t, err)

	logger.Named("snapshot").Info(WithProject(context.Background(), "shop"), "commit created",
		zap.String("uri", "postgres://u:secret@db/shop"))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.Regexp(t, `^\d{2}:\d{2}:\d{2}\.\d{3} INFO snapshot commit created `, out)
	assert.Contains(t, out, `"project": "shop"`)
	assert.NotContains(t, out, "secret")
	assert.NotContains(t, out, `"msg"`)
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Info(ctx, "via context")
	tl.AssertLogged(t, zapcore.InfoLevel, "via context")
}
