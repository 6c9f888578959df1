// Package collection provides Collection, a realtime view of a remote table.
// It fetches all entities, subscribes to changes of the table and refetches
// everything on each change.
package collection

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/event"
	"github.com/lefinal/confcomp-server/portal"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"sync"
)

// State is the lifecycle state of a Collection.
type State string

const (
	// StateIdle is the state before the first fetch.
	StateIdle State = "idle"
	// StateLoading is used while a fetch is in flight.
	StateLoading State = "loading"
	// StateReady is used after a successful fetch.
	StateReady State = "ready"
	// StateErrored is used after a failed fetch.
	StateErrored State = "errored"
)

// Fetcher retrieves all entities of a table.
type Fetcher[T any] func(ctx context.Context) ([]T, error)

// ChangeFeed notifies about changes of a table.
type ChangeFeed interface {
	// Subscribe to changes of the table using the given unique channel name. The
	// returned portal.Newsletter is closed when unsubscribed or the
	// context.Context is done.
	Subscribe(ctx context.Context, channel string, table string) *portal.Newsletter[event.TableChangeEvent]
}

// Config for a Collection.
type Config struct {
	// Table is the name of the table to watch.
	Table string
	// ChannelPrefix is the prefix for the change feed channel name. If not set,
	// Table is used.
	ChannelPrefix string
}

// Snapshot is the observable state of a Collection at some point in time.
type Snapshot[T any] struct {
	// Entities holds the entities from the last successful fetch.
	Entities []T
	// Loading is true while a fetch is in flight that has not been superseded.
	Loading bool
	// Err is the error of the last fetch if it failed.
	Err error
	// State is the current State.
	State State
}

// Option configures a Collection.
type Option[T any] func(c *Collection[T])

// OnUpdate sets a function that is called with the new Snapshot after each
// applied fetch result. Calls are serialized and follow the order in which
// results are applied.
func OnUpdate[T any](fn func(snapshot Snapshot[T])) Option[T] {
	return func(c *Collection[T]) {
		c.onUpdate = fn
	}
}

// Collection keeps an up-to-date list of entities from a table. It implements
// service.Service.
type Collection[T any] struct {
	logger   *zap.Logger
	config   Config
	fetch    Fetcher[T]
	feed     ChangeFeed
	onUpdate func(snapshot Snapshot[T])
	// generation is incremented for each fetch. Results of fetches with a
	// generation that is not newer than appliedGeneration are discarded.
	generation atomic.Uint64
	// updateMutex serializes applying results and calling onUpdate.
	updateMutex sync.Mutex
	// m locks all following fields.
	m sync.RWMutex
	// appliedGeneration is the generation of the last applied fetch result.
	appliedGeneration uint64
	// activation is incremented whenever Run starts or ends. Fetches only apply
	// if the activation did not change in the meantime.
	activation uint64
	// running is true while Run is active.
	running bool
	// tornDown is true after Run returned. Fetch results are not applied
	// anymore.
	tornDown bool
	entities []T
	err      error
	// channel is the name of the change feed channel of the current activation.
	channel string
}

// New creates a new Collection. Start it with Collection.Run.
func New[T any](logger *zap.Logger, config Config, fetch Fetcher[T], feed ChangeFeed, options ...Option[T]) *Collection[T] {
	if config.ChannelPrefix == "" {
		config.ChannelPrefix = config.Table
	}
	c := &Collection[T]{
		logger:   logger,
		config:   config,
		fetch:    fetch,
		feed:     feed,
		onUpdate: func(_ Snapshot[T]) {},
		entities: make([]T, 0),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Table returns the name of the watched table.
func (c *Collection[T]) Table() string {
	return c.config.Table
}

// Channel returns the change feed channel name of the current activation. It
// is empty while not running.
func (c *Collection[T]) Channel() string {
	c.m.RLock()
	defer c.m.RUnlock()
	return c.channel
}

// Run subscribes to changes, issues the initial fetch and refetches on each
// change until the given context.Context is done. After Run returned, the
// Collection does not apply any fetch results anymore.
func (c *Collection[T]) Run(ctx context.Context) error {
	c.m.Lock()
	if c.running {
		c.m.Unlock()
		return errors.NewInternalError("collection already running", errors.Details{"table": c.config.Table})
	}
	c.running = true
	c.tornDown = false
	c.activation++
	c.channel = fmt.Sprintf("%s-%s", c.config.ChannelPrefix, uuid.New().String())
	channel := c.channel
	c.m.Unlock()
	defer c.tearDown()
	logger := c.logger.With(zap.String("channel", channel))
	// Subscribe before the initial fetch so that no change gets lost.
	newsletter := c.feed.Subscribe(ctx, channel, c.config.Table)
	defer newsletter.Unsubscribe()
	go c.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, more := <-newsletter.Receive:
			if !more {
				logger.Warn("change feed closed unexpectedly, not receiving any more changes")
				<-ctx.Done()
				return nil
			}
			logger.Debug("change received, refetching",
				zap.Any("operation", e.Payload.Operation),
				zap.String("row_id", e.Payload.RowID))
			go c.Refresh(ctx)
		}
	}
}

// tearDown marks the Collection as torn down.
func (c *Collection[T]) tearDown() {
	c.m.Lock()
	defer c.m.Unlock()
	c.running = false
	c.tornDown = true
	c.activation++
	c.channel = ""
}

// Refresh fetches all entities and applies the result unless a newer one was
// applied already. Errors do not escape but are part of the returned Snapshot.
// After the Collection was torn down, Refresh does nothing and returns the
// final Snapshot.
func (c *Collection[T]) Refresh(ctx context.Context) Snapshot[T] {
	c.m.Lock()
	if c.tornDown {
		c.m.Unlock()
		return c.Snapshot()
	}
	generation := c.generation.Inc()
	activation := c.activation
	c.m.Unlock()
	entities, err := c.fetch(ctx)
	if err != nil {
		err = errors.Wrap(err, "fetch", errors.Details{"table": c.config.Table})
	}
	c.apply(generation, activation, entities, err)
	return c.Snapshot()
}

// apply the fetch result with the given generation.
func (c *Collection[T]) apply(generation uint64, activation uint64, entities []T, err error) {
	c.updateMutex.Lock()
	defer c.updateMutex.Unlock()
	c.m.Lock()
	if c.tornDown || activation != c.activation {
		c.m.Unlock()
		return
	}
	if generation <= c.appliedGeneration {
		c.m.Unlock()
		c.logger.Debug("discarding stale fetch result",
			zap.Uint64("generation", generation),
			zap.Uint64("applied_generation", c.appliedGeneration))
		return
	}
	c.appliedGeneration = generation
	if err != nil {
		c.err = err
	} else {
		c.err = nil
		if entities == nil {
			entities = make([]T, 0)
		}
		c.entities = entities
	}
	snapshot := c.snapshot()
	c.m.Unlock()
	if err != nil {
		errors.Log(c.logger, err)
	}
	c.onUpdate(snapshot)
}

// Snapshot returns the current Snapshot.
func (c *Collection[T]) Snapshot() Snapshot[T] {
	c.m.RLock()
	defer c.m.RUnlock()
	return c.snapshot()
}

// snapshot creates a Snapshot. The lock must be held.
func (c *Collection[T]) snapshot() Snapshot[T] {
	entities := make([]T, len(c.entities))
	copy(entities, c.entities)
	loading := c.generation.Load() > c.appliedGeneration && !c.tornDown
	state := c.stateFromResult()
	if loading {
		state = StateLoading
	}
	return Snapshot[T]{
		Entities: entities,
		Loading:  loading,
		Err:      c.err,
		State:    state,
	}
}

// stateFromResult derives the State from the last applied result.
func (c *Collection[T]) stateFromResult() State {
	switch {
	case c.appliedGeneration == 0:
		return StateIdle
	case c.err != nil:
		return StateErrored
	default:
		return StateReady
	}
}
