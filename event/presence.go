package event

// PresenceJoinEvent is published when a client becomes active.
type PresenceJoinEvent struct {
	// ClientID is a unique id for the connected client.
	ClientID string `json:"client_id"`
	// Platform is the client platform like ios, android or web.
	Platform string `json:"platform"`
}

// PresenceLeaveEvent is published when a client is no longer active.
type PresenceLeaveEvent struct {
	// ClientID is the id of the client that left.
	ClientID string `json:"client_id"`
}

// PresenceCountsEvent holds the number of active clients by platform.
type PresenceCountsEvent struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}
