package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/lefinal/confcomp-server/agenda"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/event"
	"strings"
	"time"
)

// DateLayout is the layout for event dates.
const DateLayout = "2006-01-02"

// Event is a scheduled conference session like a talk, workshop or break.
type Event struct {
	// ID identifies the event.
	ID uuid.UUID `json:"id"`
	// Title of the event.
	Title string `json:"title"`
	// Description is an optional longer description.
	Description nulls.String `json:"description"`
	// Date is the day of the event at midnight UTC.
	Date time.Time `json:"date"`
	// StartTime is the 24-hour start time in the format HH:MM or HH:MM:SS.
	StartTime string `json:"start_time"`
	// EndTime is the 24-hour end time in the format HH:MM or HH:MM:SS.
	EndTime string `json:"end_time"`
	// Location is the optional room or venue.
	Location nulls.String `json:"location"`
	// Topic is the optional track.
	Topic nulls.String `json:"topic"`
	// Speaker is the optional speaker name.
	Speaker nulls.String `json:"speaker"`
	// CreatedAt is the time the event was created.
	CreatedAt time.Time `json:"created_at"`
}

// ScheduledItem converts the Event to an agenda.ScheduledItem. Events with
// malformed times result in an errors.ErrBadRequest error.
func (e Event) ScheduledItem() (agenda.ScheduledItem, error) {
	item, err := agenda.NewScheduledItem(e.ID.String(), e.Title, e.StartTime, e.EndTime)
	if err != nil {
		return agenda.ScheduledItem{}, err
	}
	item.Location = e.Location
	item.Topic = e.Topic
	return item, nil
}

// validate assures that the event has a title and valid times.
func (e Event) validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return errors.NewBadRequestErr("missing event title", nil, nil)
	}
	if e.Date.IsZero() {
		return errors.NewBadRequestErr("missing event date", nil, nil)
	}
	if _, err := e.ScheduledItem(); err != nil {
		return errors.Wrap(err, "scheduled item", nil)
	}
	return nil
}

var eventColumns = []string{"id", "title", "description", "date", "start_time", "end_time", "location",
	"topic", "speaker", "created_at"}

func scanEvent(rows pgx.Rows) (Event, error) {
	var e Event
	err := rows.Scan(&e.ID,
		&e.Title,
		&e.Description,
		&e.Date,
		&e.StartTime,
		&e.EndTime,
		&e.Location,
		&e.Topic,
		&e.Speaker,
		&e.CreatedAt)
	return e, err
}

func (m *Mall) eventsQuery(query Query) (string, error) {
	return m.buildSelect(TableEvents, eventColumns, query,
		goqu.C("date").Asc(), goqu.C("start_time").Asc(), goqu.C("id").Asc())
}

// Events retrieves all events that match the given Query. By default, they are
// ordered by date and start time.
func (m *Mall) Events(ctx context.Context, query Query) ([]Event, error) {
	q, err := m.eventsQuery(query)
	if err != nil {
		return nil, errors.Wrap(err, "events query", nil)
	}
	events, err := queryAll(ctx, m, q, scanEvent)
	if err != nil {
		return nil, errors.Wrap(err, "query all", nil)
	}
	return events, nil
}

// EventByID retrieves the Event with the given id.
func (m *Mall) EventByID(ctx context.Context, eventID uuid.UUID) (Event, error) {
	q, err := m.eventsQuery(Query{Where: goqu.Ex{"id": eventID.String()}})
	if err != nil {
		return Event{}, errors.Wrap(err, "event query", nil)
	}
	events, err := queryAll(ctx, m, q, scanEvent)
	if err != nil {
		return Event{}, errors.Wrap(err, "query all", nil)
	}
	if len(events) == 0 {
		return Event{}, errors.NewResourceNotFoundError("event not found", errors.Details{"event_id": eventID})
	}
	return events[0], nil
}

func eventRecord(e Event) goqu.Record {
	return goqu.Record{
		"title":       e.Title,
		"description": e.Description,
		"date":        e.Date.Format(DateLayout),
		"start_time":  e.StartTime,
		"end_time":    e.EndTime,
		"location":    e.Location,
		"topic":       e.Topic,
		"speaker":     e.Speaker,
	}
}

func (m *Mall) createEventQuery(e Event) (string, error) {
	record := eventRecord(e)
	record["id"] = e.ID.String()
	record["created_at"] = e.CreatedAt
	q, _, err := m.dialect.Insert(goqu.T(TableEvents)).Rows(record).ToSQL()
	if err != nil {
		return "", errors.NewQueryToSQLError(err, nil)
	}
	return q, nil
}

// CreateEvent creates the given Event with a new id and returns it.
func (m *Mall) CreateEvent(ctx context.Context, e Event) (Event, error) {
	if err := e.validate(); err != nil {
		return Event{}, errors.Wrap(err, "validate event", nil)
	}
	e.ID = uuid.New()
	e.CreatedAt = time.Now().UTC()
	q, err := m.createEventQuery(e)
	if err != nil {
		return Event{}, errors.Wrap(err, "create event query", nil)
	}
	_, err = m.db.Exec(ctx, q)
	if err != nil {
		return Event{}, errors.NewExecQueryError(err, "exec create query", q)
	}
	m.notify(ctx, TableEvents, event.OperationInsert, e.ID.String())
	return e, nil
}

func (m *Mall) updateEventQuery(e Event) (string, error) {
	q, _, err := m.dialect.Update(goqu.T(TableEvents)).
		Set(eventRecord(e)).
		Where(goqu.C("id").Eq(e.ID.String())).ToSQL()
	if err != nil {
		return "", errors.NewQueryToSQLError(err, nil)
	}
	return q, nil
}

// UpdateEvent updates the Event with the id of the given one.
func (m *Mall) UpdateEvent(ctx context.Context, e Event) error {
	if err := e.validate(); err != nil {
		return errors.Wrap(err, "validate event", nil)
	}
	q, err := m.updateEventQuery(e)
	if err != nil {
		return errors.Wrap(err, "update event query", nil)
	}
	err = m.execOne(ctx, q, "event not found")
	if err != nil {
		return errors.Wrap(err, "exec update query", errors.Details{"event_id": e.ID})
	}
	m.notify(ctx, TableEvents, event.OperationUpdate, e.ID.String())
	return nil
}

// DeleteEvent deletes the Event with the given id.
func (m *Mall) DeleteEvent(ctx context.Context, eventID uuid.UUID) error {
	q, _, err := m.dialect.Delete(goqu.T(TableEvents)).Where(goqu.C("id").Eq(eventID.String())).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, nil)
	}
	err = m.execOne(ctx, q, "event not found")
	if err != nil {
		return errors.Wrap(err, "exec delete query", errors.Details{"event_id": eventID})
	}
	m.notify(ctx, TableEvents, event.OperationDelete, eventID.String())
	return nil
}
