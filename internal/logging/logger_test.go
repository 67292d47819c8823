package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerValidatesConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format")
}

func TestNewLoggerNilConfigUsesDefaults(t *testing.T) {
	logger, err := NewLogger(nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestContextFieldsIncludeRequestID(t *testing.T) {
	logger, logs := NewTestLogger(zapcore.DebugLevel)

	ctx := WithRequestID(context.Background(), "req-123")
	logger.Info(ctx, "handling query", zap.String("intent", "protocol"))

	entries := logs.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "req-123", fields["request.id"])
	assert.Equal(t, "protocol", fields["intent"])
}

func TestWithRequestIDRejectsInvalidIDs(t *testing.T) {
	assert.Panics(t, func() {
		WithRequestID(context.Background(), "")
	})
	assert.Panics(t, func() {
		WithRequestID(context.Background(), "bad id with spaces")
	})
}

func TestNamedAndWithProduceChildren(t *testing.T) {
	logger, logs := NewTestLogger(zapcore.InfoLevel)

	child := logger.Named("retriever").With(zap.String("stage", "semantic"))
	child.Info(context.Background(), "stage complete")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "retriever", entries[0].LoggerName)
	assert.Equal(t, "semantic", entries[0].ContextMap()["stage"])
}

func TestFromContextReturnsNopWhenMissing(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)

	stored, _ := NewTestLogger(zapcore.InfoLevel)
	ctx := WithLogger(context.Background(), stored)
	assert.Same(t, stored, FromContext(ctx))
}
