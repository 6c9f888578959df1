// Package remindersvc publishes reminders for sessions that are about to
// start.
package remindersvc

import (
	"context"
	"github.com/google/uuid"
	"github.com/lefinal/confcomp-server/agenda"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/event"
	"github.com/lefinal/confcomp-server/portal"
	"github.com/lefinal/confcomp-server/store"
	"github.com/lefinal/confcomp-server/timefmt"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"sync"
	"time"
)

// topicReminder is where session reminders are published.
const topicReminder portal.Topic = portal.BaseTopic + "/notifications/reminder"

// Defaults for Config.
const (
	DefaultSchedule = "* * * * *"
	DefaultLeadTime = 15 * time.Minute
)

// Config for Service.
type Config struct {
	// Schedule is the standard cron spec for checking upcoming sessions.
	Schedule string
	// LeadTime is how long before the start of a session to remind.
	LeadTime time.Duration
	// Location is the time zone of the conference.
	Location *time.Location
}

// EventSource provides the current events.
type EventSource interface {
	Events() []store.Event
}

// Store is the persistence needed by Service.
type Store interface {
	PushTokens(ctx context.Context, query store.Query) ([]store.PushToken, error)
}

// Service publishes an event.SessionReminderEvent for each session that starts
// within the lead time. Each session is reminded once.
type Service struct {
	logger *zap.Logger
	portal portal.Portal
	config Config
	events EventSource
	store  Store
	// reminded holds the ids of events that were already reminded.
	reminded map[uuid.UUID]struct{}
	// remindedMutex locks reminded.
	remindedMutex sync.Mutex
	// now returns the current time.
	now func() time.Time
}

// NewService creates a new Service. The schedule is validated.
func NewService(logger *zap.Logger, portal portal.Portal, config Config, events EventSource, store Store) (*Service, error) {
	if config.Schedule == "" {
		config.Schedule = DefaultSchedule
	}
	if config.LeadTime <= 0 {
		config.LeadTime = DefaultLeadTime
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, errors.NewBadRequestErr("invalid reminder schedule", err, errors.Details{"schedule": config.Schedule})
	}
	return &Service{
		logger:   logger,
		portal:   portal,
		config:   config,
		events:   events,
		store:    store,
		reminded: make(map[uuid.UUID]struct{}),
		now:      time.Now,
	}, nil
}

// Run the cron scheduler until the given context.Context is done.
func (s *Service) Run(ctx context.Context) error {
	c := cron.New(cron.WithLocation(s.config.Location))
	_, err := c.AddFunc(s.config.Schedule, func() {
		s.remind(ctx)
	})
	if err != nil {
		return errors.NewInternalErrorFromErr(err, "add reminder job", errors.Details{"schedule": s.config.Schedule})
	}
	s.logger.Debug("reminder schedule started", zap.String("schedule", s.config.Schedule),
		zap.Duration("lead_time", s.config.LeadTime))
	c.Start()
	<-ctx.Done()
	// Wait for running jobs.
	<-c.Stop().Done()
	return nil
}

// upcoming returns all events that start within the lead time and were not
// reminded yet.
func (s *Service) upcoming(now time.Time) []store.Event {
	now = now.In(s.config.Location)
	today := now.Format(store.DateLayout)
	upcoming := make([]store.Event, 0)
	s.remindedMutex.Lock()
	defer s.remindedMutex.Unlock()
	for _, e := range s.events.Events() {
		if e.Date.Format(store.DateLayout) != today {
			continue
		}
		if _, ok := s.reminded[e.ID]; ok {
			continue
		}
		start, err := agenda.ParseClock(e.StartTime)
		if err != nil {
			continue
		}
		startTime := time.Date(now.Year(), now.Month(), now.Day(), start.Hours(), start.Minutes(), 0, 0, s.config.Location)
		if startTime.After(now) && !startTime.After(now.Add(s.config.LeadTime)) {
			upcoming = append(upcoming, e)
		}
	}
	return upcoming
}

// remind publishes reminders for all upcoming events.
func (s *Service) remind(ctx context.Context) {
	upcoming := s.upcoming(s.now())
	if len(upcoming) == 0 {
		return
	}
	tokens, err := s.store.PushTokens(ctx, store.Query{})
	if err != nil {
		errors.Log(s.logger, errors.Wrap(err, "push tokens", nil))
		return
	}
	tokenStrings := make([]string, 0, len(tokens))
	for _, token := range tokens {
		tokenStrings = append(tokenStrings, token.Token)
	}
	for _, e := range upcoming {
		displayTime, err := timefmt.FormatTimeRange(e.StartTime, e.EndTime)
		if err != nil {
			errors.Log(s.logger, errors.Wrap(err, "format time range", errors.Details{"event_id": e.ID}))
			continue
		}
		s.portal.Publish(ctx, topicReminder, event.SessionReminderEvent{
			EventID:     e.ID.String(),
			Title:       e.Title,
			DisplayTime: displayTime,
			Location:    e.Location.String,
			PushTokens:  tokenStrings,
		})
		s.remindedMutex.Lock()
		s.reminded[e.ID] = struct{}{}
		s.remindedMutex.Unlock()
		s.logger.Debug("session reminder published", zap.String("event_id", e.ID.String()),
			zap.Int("push_tokens", len(tokenStrings)))
	}
}
