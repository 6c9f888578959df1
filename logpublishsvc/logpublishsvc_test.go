package logpublishsvc

import (
	"context"
	"github.com/lefinal/confcomp-server/event"
	"github.com/lefinal/confcomp-server/logging"
	"github.com/lefinal/confcomp-server/portal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"testing"
	"time"
)

const timeout = 3 * time.Second

func TestNewService(t *testing.T) {
	logger := zap.New(zapcore.NewNopCore())
	portalStub := &portal.Stub{}
	logEntriesIn := make(<-chan logging.LogEntry)
	s := NewService(logger, portalStub, logEntriesIn)
	require.NotNil(t, s, "should create")
	assert.Equal(t, logger, s.logger, "should set correct logger")
	assert.Equal(t, portalStub, s.portal, "should set correct portal")
	assert.Equal(t, logEntriesIn, s.logEntriesIn, "should set correct log entries in channel")
}

func TestService_Run(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	portalStub := &portal.Stub{}
	entries := make(chan logging.LogEntry, 8)
	now := time.Date(2025, 8, 13, 9, 0, 0, 0, time.UTC)
	published := make(chan event.NextLogEntryEvent, 8)
	portalStub.On("Publish", mock.Anything, topicLogPublish, mock.Anything).
		Run(func(args mock.Arguments) {
			published <- args.Get(2).(event.NextLogEntryEvent)
		}).Twice()
	defer portalStub.AssertExpectations(t)
	entries <- logging.LogEntry{Time: now, Message: "first", Level: zap.WarnLevel, LoggerName: "app"}
	entries <- logging.LogEntry{Time: now, Message: "second", Level: zap.ErrorLevel, LoggerName: "app",
		Fields: map[string]interface{}{"k": "v"}}
	close(entries)
	done := make(chan error)
	go func() {
		done <- NewService(zap.NewNop(), portalStub, entries).Run(ctx)
	}()
	select {
	case <-ctx.Done():
		require.Fail(t, "timeout", "timeout while waiting for service to finish")
	case err := <-done:
		require.NoError(t, err, "should not fail")
	}
	require.Len(t, published, 2)
	first := <-published
	assert.Equal(t, "first", first.Message)
	assert.Equal(t, "warn", first.Level)
	second := <-published
	assert.Equal(t, "second", second.Message)
	assert.Equal(t, "error", second.Level)
	assert.Equal(t, "v", second.Fields["k"])
}

func TestService_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error)
	go func() {
		done <- NewService(zap.NewNop(), &portal.Stub{}, make(chan logging.LogEntry)).Run(runCtx)
	}()
	stop()
	select {
	case <-ctx.Done():
		assert.Fail(t, "timeout", "timeout while waiting for service to stop")
	case err := <-done:
		assert.NoError(t, err, "should not fail")
	}
}
