// Package logpublishsvc publishes log entries to the portal so that operators
// can follow warnings and errors of all instances.
package logpublishsvc

import (
	"context"
	"github.com/lefinal/confcomp-server/event"
	"github.com/lefinal/confcomp-server/logging"
	"github.com/lefinal/confcomp-server/portal"
	"go.uber.org/zap"
	"time"
)

// topicLogPublish the topic to publish log entries to.
const topicLogPublish portal.Topic = portal.BaseTopic + "/logs/next"

// publishDebounceDelay is the delay to wait for collecting log entries. This
// avoids blocking on every log call.
const publishDebounceDelay = 100 * time.Millisecond

// Service publishes log entries from logEntriesIn to the portal.
type Service struct {
	logger *zap.Logger
	portal portal.Portal
	// logEntriesIn is the channel to read log entries to publish from.
	logEntriesIn <-chan logging.LogEntry
}

// NewService creates a new Service that can be run. The given logging.LogEntry
// channel is the channel log entries will be read from.
func NewService(logger *zap.Logger, portal portal.Portal, logEntriesIn <-chan logging.LogEntry) *Service {
	return &Service{
		logger:       logger,
		portal:       portal,
		logEntriesIn: logEntriesIn,
	}
}

// Run the service until the given context.Context is done.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, more := <-s.logEntriesIn:
			if !more {
				return nil
			}
			s.publishLogEntriesAfterDelay(ctx, entry)
		}
	}
}

// publishLogEntriesAfterDelay waits for publishDebounceDelay and then publishes
// the given logging.LogEntry along with all entries that arrived meanwhile.
func (s *Service) publishLogEntriesAfterDelay(ctx context.Context, firstEntry logging.LogEntry) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(publishDebounceDelay):
	}
	s.publishLogEntry(ctx, firstEntry)
	published := 1
	for {
		select {
		case entry, more := <-s.logEntriesIn:
			if !more {
				return
			}
			s.publishLogEntry(ctx, entry)
			published++
		default:
			s.logger.Debug("published log entries", zap.Int("count", published), logging.NoPublish())
			return
		}
	}
}

func (s *Service) publishLogEntry(ctx context.Context, entry logging.LogEntry) {
	s.portal.Publish(ctx, topicLogPublish, event.NextLogEntryEvent{
		Time:       entry.Time,
		Message:    entry.Message,
		Level:      entry.Level.String(),
		LoggerName: entry.LoggerName,
		Fields:     entry.Fields,
	})
}
