package obs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_LevelFallback(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "not-a-level", App: "greensteps-api"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = NewLogger(LogConfig{Level: "debug", Pretty: true})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	scoped := zap.New(core).With(zap.String("request_id", "r-1"))

	ctx := IntoContext(context.Background(), scoped)
	FromContext(ctx, zap.NewNop()).Info("hello")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "r-1", logs.All()[0].ContextMap()["request_id"])

	assert.NotNil(t, FromContext(context.Background(), nil))
}
