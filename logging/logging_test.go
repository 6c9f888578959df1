package logging

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"testing"
)

func TestNoPublishOmitCore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	core, entries := NewNoPublishOmitCore(ctx, zap.WarnLevel)
	logger := zap.New(core).Named("test")

	logger.Info("too low")
	logger.Warn("published", zap.String("hello", "world"))
	logger.With(zap.Int("count", 2)).Error("with fields")
	logger.Warn("omitted", NoPublish())
	logger.With(NoPublish()).Error("omitted as well")

	require.Len(t, entries, 2, "should forward only matching entries")
	first := <-entries
	assert.Equal(t, "published", first.Message)
	assert.Equal(t, zap.WarnLevel, first.Level)
	assert.Equal(t, "test", first.LoggerName)
	assert.Equal(t, "world", first.Fields["hello"])
	second := <-entries
	assert.Equal(t, "with fields", second.Message)
	assert.EqualValues(t, 2, second.Fields["count"])
}

func TestNoPublishOmitCore_dropsWhenFull(t *testing.T) {
	core, entries := NewNoPublishOmitCore(context.Background(), zap.WarnLevel)
	logger := zap.New(core)
	for i := 0; i < publishBufferSize+10; i++ {
		logger.Warn("spam")
	}
	assert.Len(t, entries, publishBufferSize, "should drop entries when full")
}

func TestNoPublishOmitCore_stopsAfterDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	core, entries := NewNoPublishOmitCore(ctx, zap.WarnLevel)
	cancel()
	zap.New(core).Error("after done")
	assert.Len(t, entries, 0, "should not forward after done")
}
