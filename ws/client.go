package ws

import (
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lefinal/confcomp-server/errors"
	"go.uber.org/zap"
	"sync"
	"time"
)

const (
	// writeTimeout is the timeout for writing a message to the peer.
	writeTimeout = 10 * time.Second
	// pingInterval is the interval in which pings are sent to the peer. Must be
	// less than pongTimeout.
	pingInterval = (pongTimeout * 9) / 10
	// pongTimeout is the timeout for waiting for the next pong message from the
	// peer. Must be greater than pingInterval.
	pongTimeout = 60 * time.Second
	// maxMessageSize is the maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Client holds the websocket connection and is being used by Hub.
type Client struct {
	// ID identifies the client in presence.
	ID uuid.UUID
	// Platform is the platform reported by the client.
	Platform string
	// Tables are the tables the client receives changes for.
	Tables []string
	logger *zap.Logger
	// hub is the actual websocket hub which is used for registering and
	// unregistering.
	hub *Hub
	// connection is the actual websocket connection.
	connection *websocket.Conn
	// send holds outgoing messages for the write pump.
	send chan []byte
	// closed is set when send was closed.
	closed bool
	// sendMutex locks send and closed.
	sendMutex sync.Mutex
}

// enqueue the given message for sending. If the send buffer is full, the
// message is dropped.
func (c *Client) enqueue(message []byte) {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- message:
	default:
		c.logger.Warn("dropping message due to full send buffer")
	}
}

// close the send channel. Safe to call multiple times.
func (c *Client) close() {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump reads from the websocket connection in order to handle pongs and
// close messages. Messages from clients are not expected and discarded.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		err := c.connection.Close()
		if err != nil {
			c.logger.Debug("close connection", zap.Error(err))
		}
	}()
	c.connection.SetReadLimit(maxMessageSize)
	_ = c.connection.SetReadDeadline(time.Now().Add(pongTimeout))
	// Handle received pong.
	c.connection.SetPongHandler(func(string) error {
		_ = c.connection.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	for {
		_, message, err := c.connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("unexpected close", zap.Error(err))
			}
			return
		}
		c.logger.Debug("discarding client message", zap.Int("size", len(message)))
	}
}

// writePump forwards outgoing messages to the websocket connection. We do not
// pass a context.Context here because the hub will close the send channel which
// will lead to termination, anyways.
func (c *Client) writePump() {
	pingTicker := time.NewTicker(pingInterval)
	defer func() {
		// Stop ping ticker in order to avoid ticker leak.
		pingTicker.Stop()
		err := c.connection.Close()
		if err != nil {
			c.logger.Debug("close connection", zap.Error(err))
		}
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			// Check if connection close is requested from hub.
			if !ok {
				err := c.connection.WriteMessage(websocket.CloseMessage, []byte{})
				if err != nil {
					c.logger.Debug("write close message", zap.Error(err))
				}
				return
			}
			err := c.connection.WriteMessage(websocket.TextMessage, message)
			if err != nil {
				// We expect the read pump to fail as well.
				errors.Log(c.logger, errors.FromErr("write text message", errors.ErrCommunication, err, nil))
				return
			}
		case <-pingTicker.C:
			_ = c.connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("write ping", zap.Error(err))
				return
			}
		}
	}
}
