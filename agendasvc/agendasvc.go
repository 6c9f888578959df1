// Package agendasvc keeps the conference agenda up to date and publishes its
// conflict-aware layout whenever events change.
package agendasvc

import (
	"context"
	"github.com/lefinal/confcomp-server/agenda"
	"github.com/lefinal/confcomp-server/collection"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/event"
	"github.com/lefinal/confcomp-server/portal"
	"github.com/lefinal/confcomp-server/store"
	"github.com/lefinal/confcomp-server/timefmt"
	"go.uber.org/zap"
	"sort"
	"sync"
	"time"
)

// topicLayout is where the agenda layout is published after each change.
const topicLayout portal.Topic = portal.BaseTopic + "/agenda/layout"

// Store is the persistence needed by Service.
type Store interface {
	// Events retrieves all events that match the given store.Query.
	Events(ctx context.Context, query store.Query) ([]store.Event, error)
}

// Stats are statistics regarding the agenda.
type Stats struct {
	// Events is the number of known events.
	Events int
	// Days is the number of days with events.
	Days int
	// State is the state of the event collection.
	State collection.State
	// CachedLayouts is the number of memoized layouts.
	CachedLayouts int
	// Channel is the change feed channel of the event collection.
	Channel string
}

// Service watches the events table and computes the agenda layout.
type Service struct {
	logger *zap.Logger
	portal portal.Portal
	// layouter computes conflicts and groups.
	layouter *agenda.Layouter
	// events is the realtime collection of all events.
	events *collection.Collection[store.Event]
	// days is the latest computed agenda.
	days []event.AgendaDay
	// daysMutex locks days.
	daysMutex sync.RWMutex
	// now returns the current time.
	now func() time.Time
}

// NewService creates a new Service that reads events from the given Store and
// refetches them on each change reported by the collection.ChangeFeed.
func NewService(logger *zap.Logger, portal portal.Portal, s Store, feed collection.ChangeFeed, layouter *agenda.Layouter) *Service {
	service := &Service{
		logger:   logger,
		portal:   portal,
		layouter: layouter,
		days:     make([]event.AgendaDay, 0),
		now:      time.Now,
	}
	service.events = collection.New[store.Event](logger.Named("events"), collection.Config{
		Table:         store.TableEvents,
		ChannelPrefix: "agenda-events",
	}, func(ctx context.Context) ([]store.Event, error) {
		return s.Events(ctx, store.Query{})
	}, feed, collection.OnUpdate(service.handleUpdate))
	return service
}

// Run the service until the given context.Context is done.
func (s *Service) Run(ctx context.Context) error {
	err := s.events.Run(ctx)
	if err != nil {
		return errors.Wrap(err, "run event collection", nil)
	}
	return nil
}

// Refresh refetches all events and recomputes the layout.
func (s *Service) Refresh(ctx context.Context) error {
	snapshot := s.events.Refresh(ctx)
	if snapshot.Err != nil {
		return errors.Wrap(snapshot.Err, "refresh events", nil)
	}
	return nil
}

// handleUpdate recomputes and publishes the layout for the given snapshot.
func (s *Service) handleUpdate(snapshot collection.Snapshot[store.Event]) {
	if snapshot.State == collection.StateErrored {
		s.logger.Warn("keeping previous agenda as event refresh failed")
		return
	}
	days := s.computeDays(snapshot.Entities)
	s.daysMutex.Lock()
	s.days = days
	s.daysMutex.Unlock()
	s.portal.Publish(context.Background(), topicLayout, event.AgendaLayoutEvent{
		Days:       days,
		ComputedAt: s.now().UTC(),
	})
}

// computeDays groups the events by day and computes the layout for each one.
// Events with malformed times are skipped.
func (s *Service) computeDays(events []store.Event) []event.AgendaDay {
	eventsByDay := make(map[string][]store.Event)
	for _, e := range events {
		date := e.Date.Format(store.DateLayout)
		eventsByDay[date] = append(eventsByDay[date], e)
	}
	dates := make([]string, 0, len(eventsByDay))
	for date := range eventsByDay {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	days := make([]event.AgendaDay, 0, len(dates))
	for _, date := range dates {
		day, err := s.computeDay(date, eventsByDay[date])
		if err != nil {
			errors.Log(s.logger, errors.Wrap(err, "compute day", errors.Details{"date": date}))
			continue
		}
		days = append(days, day)
	}
	return days
}

// computeDay computes the layout for a single day.
func (s *Service) computeDay(date string, events []store.Event) (event.AgendaDay, error) {
	items := make([]agenda.ScheduledItem, 0, len(events))
	eventsByID := make(map[string]store.Event, len(events))
	for _, e := range events {
		item, err := e.ScheduledItem()
		if err != nil {
			s.logger.Warn("skipping event with malformed times",
				zap.String("event_id", e.ID.String()),
				zap.String("start_time", e.StartTime),
				zap.String("end_time", e.EndTime),
				zap.Error(err))
			continue
		}
		items = append(items, item)
		eventsByID[item.ID] = e
	}
	layout, err := s.layouter.Layout(items)
	if err != nil {
		return event.AgendaDay{}, errors.Wrap(err, "layout", nil)
	}
	displayDate, err := timefmt.FormatDate(date)
	if err != nil {
		return event.AgendaDay{}, errors.Wrap(err, "format date", nil)
	}
	day := event.AgendaDay{
		Date:        date,
		DisplayDate: displayDate,
		Groups:      make([]event.AgendaGroup, 0, len(layout.Groups)),
		Conflicts:   make([]event.AgendaConflict, 0, len(layout.Conflicts)),
	}
	for _, group := range layout.Groups {
		agendaGroup := event.AgendaGroup{
			HasConflict: group.HasConflict,
			Items:       make([]event.AgendaItem, 0, len(group.Items)),
		}
		for _, item := range group.Items {
			agendaGroup.Items = append(agendaGroup.Items, agendaItem(eventsByID[item.ID], item))
		}
		day.Groups = append(day.Groups, agendaGroup)
	}
	for _, conflict := range layout.Conflicts {
		day.Conflicts = append(day.Conflicts, event.AgendaConflict{
			First:     conflict.First,
			Second:    conflict.Second,
			Kind:      string(conflict.Kind),
			Container: conflict.Container,
		})
	}
	return day, nil
}

// agendaItem creates the event.AgendaItem for the given event.
func agendaItem(e store.Event, item agenda.ScheduledItem) event.AgendaItem {
	return event.AgendaItem{
		ID:          item.ID,
		Title:       item.Title,
		Start:       item.Start.String(),
		End:         item.End.String(),
		DisplayTime: timefmt.FormatClock(item.Start) + " - " + timefmt.FormatClock(item.End),
		Location:    e.Location.String,
		Topic:       e.Topic.String,
	}
}

// Agenda returns the agenda for the day with the given date in the format
// YYYY-MM-DD. If date is empty, all days are returned.
func (s *Service) Agenda(date string) ([]event.AgendaDay, error) {
	if date != "" {
		if _, err := timefmt.ParseDate(date); err != nil {
			return nil, errors.Wrap(err, "parse date", nil)
		}
	}
	s.daysMutex.RLock()
	defer s.daysMutex.RUnlock()
	days := make([]event.AgendaDay, 0, len(s.days))
	for _, day := range s.days {
		if date == "" || day.Date == date {
			days = append(days, day)
		}
	}
	return days, nil
}

// Events returns all currently known events.
func (s *Service) Events() []store.Event {
	return s.events.Snapshot().Entities
}

// Stats returns the current Stats.
func (s *Service) Stats() Stats {
	snapshot := s.events.Snapshot()
	s.daysMutex.RLock()
	days := len(s.days)
	s.daysMutex.RUnlock()
	return Stats{
		Events:        len(snapshot.Entities),
		Days:          days,
		State:         snapshot.State,
		CachedLayouts: s.layouter.CachedLayouts(),
		Channel:       s.events.Channel(),
	}
}
