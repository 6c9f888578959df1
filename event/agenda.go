package event

import "time"

// AgendaItem is a scheduled item in AgendaLayoutEvent.
type AgendaItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Start       string `json:"start"`
	End         string `json:"end"`
	DisplayTime string `json:"display_time"`
	Location    string `json:"location,omitempty"`
	Topic       string `json:"topic,omitempty"`
}

// AgendaGroup is a group of items that are rendered side by side.
type AgendaGroup struct {
	HasConflict bool         `json:"has_conflict"`
	Items       []AgendaItem `json:"items"`
}

// AgendaConflict describes a temporal overlap between two items.
type AgendaConflict struct {
	First     string `json:"first"`
	Second    string `json:"second"`
	Kind      string `json:"kind"`
	Container string `json:"container,omitempty"`
}

// AgendaDay is the layout for a single conference day.
type AgendaDay struct {
	Date        string           `json:"date"`
	DisplayDate string           `json:"display_date"`
	Groups      []AgendaGroup    `json:"groups"`
	Conflicts   []AgendaConflict `json:"conflicts"`
}

// AgendaLayoutEvent is published whenever the agenda layout was recomputed.
type AgendaLayoutEvent struct {
	Days       []AgendaDay `json:"days"`
	ComputedAt time.Time   `json:"computed_at"`
}

// SessionReminderEvent is published shortly before a session starts. Push
// dispatchers pick it up and notify the given tokens.
type SessionReminderEvent struct {
	EventID     string   `json:"event_id"`
	Title       string   `json:"title"`
	DisplayTime string   `json:"display_time"`
	Location    string   `json:"location,omitempty"`
	PushTokens  []string `json:"push_tokens"`
}
