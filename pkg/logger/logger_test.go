package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Levels(t *testing.T) {
	assert.True(t, New("debug").Core().Enabled(zapcore.DebugLevel))
	assert.False(t, New("warn").Core().Enabled(zapcore.InfoLevel))
	assert.True(t, New("nonsense").Core().Enabled(zapcore.InfoLevel))
	assert.False(t, New("nonsense").Core().Enabled(zapcore.DebugLevel))
}

func TestContextLogger_WithContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cl := NewContextLogger(zap.New(core))

	ctx := WithValue(context.Background(), ConnectionIDKey, "c1")
	ctx = WithValue(ctx, MeetingCodeKey, "AB12CD34")

	cl.Sugar(ctx).Infow("joined", "name", "Alice")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "c1", fields["connection_id"])
		assert.Equal(t, "AB12CD34", fields["meeting_code"])
		assert.Equal(t, "Alice", fields["name"])
	}
}

func TestContextLogger_EmptyContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cl := NewContextLogger(zap.New(core))

	cl.LogRequest(context.Background(), "GET", "/health", 200, 3)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "http_request", entries[0].Message)
		assert.NotContains(t, entries[0].ContextMap(), "connection_id")
	}
}
