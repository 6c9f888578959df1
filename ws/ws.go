// Package ws bridges websocket clients to presence and the change feed.
package ws

import (
	"encoding/json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/event"
	"go.uber.org/zap"
	"net/http"
	"strings"
)

// Query parameters for HandleWS.
const (
	queryParamPlatform = "platform"
	queryParamTables   = "tables"
)

// defaultPlatform is used when clients do not provide their platform.
const defaultPlatform = "web"

// MessageType is the type of Message sent to clients.
type MessageType string

// MessageTypeTableChange is used for forwarded event.TableChangeEvent.
const MessageTypeTableChange MessageType = "table-change"

// Message is the envelope for all messages sent to clients.
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// parseTables parses the comma-separated table list and checks each table to
// be allowed by the Hub. Duplicates are removed.
func (h *Hub) parseTables(raw string) ([]string, error) {
	tables := make([]string, 0)
	seen := make(map[string]struct{})
	for _, table := range strings.Split(raw, ",") {
		table = strings.TrimSpace(table)
		if table == "" {
			continue
		}
		if _, ok := h.tables[table]; !ok {
			return nil, errors.NewBadRequestErr("table not available", nil, errors.Details{"table": table})
		}
		if _, ok := seen[table]; ok {
			continue
		}
		seen[table] = struct{}{}
		tables = append(tables, table)
	}
	return tables, nil
}

// respondErr writes the given error as event.ErrorEventPayload. The status is
// always http.StatusBadRequest as the only failure before upgrade is invalid
// input.
func respondErr(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(event.ErrorEventPayloadFromError(err))
}

// HandleWS handles websocket requests. Clients provide their platform and the
// tables to receive changes for as query parameters.
func HandleWS(hub *Hub) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		tables, err := hub.parseTables(r.URL.Query().Get(queryParamTables))
		if err != nil {
			respondErr(w, err)
			return
		}
		platform := strings.TrimSpace(r.URL.Query().Get(queryParamPlatform))
		if platform == "" {
			platform = defaultPlatform
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrader already responded.
			hub.logger.Debug("upgrade connection", zap.Error(err))
			return
		}
		id := uuid.New()
		client := &Client{
			ID:         id,
			Platform:   platform,
			Tables:     tables,
			logger:     hub.logger.With(zap.String("client_id", id.String())),
			hub:        hub,
			connection: conn,
			send:       make(chan []byte, 256),
		}
		if !hub.registerClient(client) {
			_ = conn.Close()
			return
		}
		// Power the pumps.
		go client.writePump()
		go client.readPump()
	}
}
