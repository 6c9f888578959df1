// Package changefeed distributes row-level table changes via the portal.
// Writers publish with Publisher and readers subscribe with Feed.
package changefeed

import (
	"context"
	"fmt"
	"github.com/lefinal/confcomp-server/event"
	"github.com/lefinal/confcomp-server/portal"
	"go.uber.org/zap"
	"sort"
	"sync"
	"time"
)

// Topic returns the portal.Topic where changes for the given table are
// published.
func Topic(table string) portal.Topic {
	return portal.Topic(fmt.Sprintf("%s/changes/%s", portal.BaseTopic, table))
}

// Publisher publishes table changes. It is used as notifier for the store.
type Publisher struct {
	portal portal.Portal
	// now is used for the change timestamp.
	now func() time.Time
}

// NewPublisher creates a new Publisher that publishes using the given
// portal.Portal.
func NewPublisher(portal portal.Portal) *Publisher {
	return &Publisher{
		portal: portal,
		now:    time.Now,
	}
}

// NotifyChange publishes an event.TableChangeEvent for the given row.
func (p *Publisher) NotifyChange(ctx context.Context, table string, operation event.Operation, rowID string) {
	p.portal.Publish(ctx, Topic(table), event.TableChangeEvent{
		Table:     table,
		Operation: operation,
		RowID:     rowID,
		At:        p.now().UTC(),
	})
}

// Feed allows subscribing to table changes over named channels.
type Feed struct {
	logger *zap.Logger
	portal portal.Portal
	// operations is the filter for forwarded changes.
	operations map[event.Operation]struct{}
	// channels holds the names of active channels and their table.
	channels map[string]string
	// channelsMutex locks channels.
	channelsMutex sync.Mutex
}

// NewFeed creates a new Feed. If no operations are given, all operations from
// event.AllOperations are forwarded.
func NewFeed(logger *zap.Logger, portal portal.Portal, operations ...event.Operation) *Feed {
	if len(operations) == 0 {
		operations = event.AllOperations
	}
	filter := make(map[event.Operation]struct{}, len(operations))
	for _, op := range operations {
		filter[op] = struct{}{}
	}
	return &Feed{
		logger:     logger,
		portal:     portal,
		operations: filter,
		channels:   make(map[string]string),
	}
}

// Subscribe to changes of the given table on the channel with the given name.
// The returned portal.Newsletter is closed when unsubscribed or the given
// context.Context is done.
func (f *Feed) Subscribe(ctx context.Context, channel string, table string) *portal.Newsletter[event.TableChangeEvent] {
	lifetime, cancel := context.WithCancel(ctx)
	raw := portal.Subscribe[event.TableChangeEvent](lifetime, f.portal, Topic(table))
	f.channelsMutex.Lock()
	f.channels[channel] = table
	f.channelsMutex.Unlock()
	f.logger.Debug("channel opened", zap.String("channel", channel), zap.String("table", table))
	forward := make(chan event.Event[event.TableChangeEvent])
	go func() {
		defer close(forward)
		defer func() {
			f.channelsMutex.Lock()
			delete(f.channels, channel)
			f.channelsMutex.Unlock()
			f.logger.Debug("channel closed", zap.String("channel", channel))
		}()
		defer raw.Unsubscribe()
		for {
			select {
			case <-lifetime.Done():
				return
			case e, more := <-raw.Receive:
				if !more {
					return
				}
				if e.Payload.Table != table {
					continue
				}
				if _, ok := f.operations[e.Payload.Operation]; !ok {
					continue
				}
				select {
				case <-lifetime.Done():
					return
				case forward <- e:
				}
			}
		}
	}()
	return portal.NewNewsletter[event.TableChangeEvent](forward, cancel)
}

// ActiveChannels returns the names of all currently open channels in
// alphabetical order.
func (f *Feed) ActiveChannels() []string {
	f.channelsMutex.Lock()
	defer f.channelsMutex.Unlock()
	channels := make([]string, 0, len(f.channels))
	for channel := range f.channels {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	return channels
}
