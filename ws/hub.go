package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/event"
	"github.com/lefinal/confcomp-server/portal"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"time"
)

// leaveTimeout is the timeout for announcing a client leave.
const leaveTimeout = 5 * time.Second

// Presence is notified of connected and disconnected clients.
type Presence interface {
	Join(ctx context.Context, clientID string, platform string)
	Leave(ctx context.Context, clientID string)
}

// ChangeFeed provides table changes.
type ChangeFeed interface {
	Subscribe(ctx context.Context, channel string, table string) *portal.Newsletter[event.TableChangeEvent]
}

// Hub holds all active clients, announces their presence and forwards table
// changes to them.
type Hub struct {
	logger   *zap.Logger
	presence Presence
	feed     ChangeFeed
	// tables holds the tables clients are allowed to receive changes for.
	tables map[string]struct{}
	// clients holds all online clients along with the cancel function for their
	// lifetime.
	clients map[*Client]context.CancelFunc
	// clientCount is the number of entries in clients.
	clientCount atomic.Int32
	// register receives when a Client wants to register itself.
	register chan *Client
	// unregister receives when a Client wants to unregister itself.
	unregister chan *Client
	// done is closed when Run returns.
	done chan struct{}
}

// NewHub creates a new Hub that allows subscribing to the given tables. Start
// it with Hub.Run.
func NewHub(logger *zap.Logger, presence Presence, feed ChangeFeed, tables []string) *Hub {
	allowed := make(map[string]struct{}, len(tables))
	for _, table := range tables {
		allowed[table] = struct{}{}
	}
	return &Hub{
		logger:     logger,
		presence:   presence,
		feed:       feed,
		tables:     allowed,
		clients:    make(map[*Client]context.CancelFunc),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run the Hub until the given context.Context is done. All remaining clients
// are disconnected afterwards.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.removeClient(c)
			}
			return nil
		case c := <-h.register:
			lifetime, cancel := context.WithCancel(ctx)
			h.clients[c] = cancel
			h.clientCount.Inc()
			h.logger.Info("client connected", zap.String("client_id", c.ID.String()),
				zap.String("platform", c.Platform), zap.Strings("tables", c.Tables))
			h.presence.Join(lifetime, c.ID.String(), c.Platform)
			for _, table := range c.Tables {
				go h.forwardChanges(lifetime, c, table)
			}
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

// removeClient cancels the lifetime of the given Client, announces the leave
// and closes its send channel which stops the write pump. The leave is
// announced with its own context as the Hub's one might already be done.
func (h *Hub) removeClient(c *Client) {
	cancel, ok := h.clients[c]
	if !ok {
		return
	}
	cancel()
	delete(h.clients, c)
	h.clientCount.Dec()
	leaveCtx, cancelLeave := context.WithTimeout(context.Background(), leaveTimeout)
	h.presence.Leave(leaveCtx, c.ID.String())
	cancelLeave()
	c.close()
	h.logger.Info("client disconnected", zap.String("client_id", c.ID.String()))
}

// registerClient registers the given Client. It returns false if the Hub is not
// running anymore.
func (h *Hub) registerClient(c *Client) bool {
	select {
	case <-h.done:
		return false
	case h.register <- c:
		return true
	}
}

// unregisterClient unregisters the given Client if the Hub is still running.
func (h *Hub) unregisterClient(c *Client) {
	select {
	case <-h.done:
	case h.unregister <- c:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

// forwardChanges forwards changes of the given table to the Client until the
// given context.Context is done.
func (h *Hub) forwardChanges(ctx context.Context, c *Client, table string) {
	newsletter := h.feed.Subscribe(ctx, fmt.Sprintf("ws-%s-%s", c.ID.String(), table), table)
	defer newsletter.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case e, more := <-newsletter.Receive:
			if !more {
				return
			}
			raw, err := json.Marshal(Message{
				Type:    MessageTypeTableChange,
				Payload: e.Payload,
			})
			if err != nil {
				errors.Log(c.logger, errors.NewInternalErrorFromErr(err, "marshal message", nil))
				continue
			}
			c.enqueue(raw)
		}
	}
}
