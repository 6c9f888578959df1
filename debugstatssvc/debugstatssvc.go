// Package debugstatssvc periodically logs runtime and service stats.
package debugstatssvc

import (
	"context"
	"fmt"
	"github.com/lefinal/confcomp-server/agendasvc"
	"go.uber.org/zap"
	"runtime"
	"time"
)

// DefaultInterval is the default for Config.Interval.
const DefaultInterval = time.Minute

type Config struct {
	// IsEnabled describes whether periodic debug stats logging is desired.
	IsEnabled bool
	// Interval in which to log debug stats.
	Interval time.Duration
	// IncludeStack includes the stack of all goroutines.
	IncludeStack bool
}

// Presence provides presence counts.
type Presence interface {
	Counts() map[string]int
	Total() int
}

// Agenda provides agenda stats.
type Agenda interface {
	Stats() agendasvc.Stats
}

// Hub provides the number of connected websocket clients.
type Hub interface {
	ClientCount() int
}

// ChangeFeed provides the open change feed channels.
type ChangeFeed interface {
	ActiveChannels() []string
}

// Service logs debug stats.
type Service struct {
	logger   *zap.Logger
	config   Config
	presence Presence
	agenda   Agenda
	hub      Hub
	feed     ChangeFeed
}

// NewService creates a new Service.
func NewService(logger *zap.Logger, config Config, presence Presence, agenda Agenda, hub Hub, feed ChangeFeed) *Service {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	return &Service{
		logger:   logger,
		config:   config,
		presence: presence,
		agenda:   agenda,
		hub:      hub,
		feed:     feed,
	}
}

// Run logs stats in the configured interval until the given context.Context
// is done. If not enabled, Run returns immediately.
func (s *Service) Run(ctx context.Context) error {
	if !s.config.IsEnabled {
		return nil
	}
	s.logger.Debug(fmt.Sprintf("logging system state every %gs", s.config.Interval.Seconds()))
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.logStats()
		}
	}
}

// fields collects the current stats as zap fields.
func (s *Service) fields() []zap.Field {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	agendaStats := s.agenda.Stats()
	return []zap.Field{
		zap.Int("num_cpu", runtime.NumCPU()),
		zap.Int("num_goroutine", runtime.NumGoroutine()),
		zap.Uint64("memory_in_use_mb", memStats.Sys/1000/1000),
		zap.Int("presence_total", s.presence.Total()),
		zap.Any("presence_counts", s.presence.Counts()),
		zap.Int("ws_clients", s.hub.ClientCount()),
		zap.Strings("change_feed_channels", s.feed.ActiveChannels()),
		zap.Int("agenda_events", agendaStats.Events),
		zap.Int("agenda_days", agendaStats.Days),
		zap.String("agenda_state", string(agendaStats.State)),
		zap.Int("agenda_cached_layouts", agendaStats.CachedLayouts),
	}
}

// logStats logs the current system state like memory stats, presence and
// collection sizes. The stack is only included if configured.
func (s *Service) logStats() {
	fields := s.fields()
	if s.config.IncludeStack {
		buf := make([]byte, 1<<16)
		stackSize := runtime.Stack(buf, true)
		fields = append(fields, zap.String("stack", string(buf[0:stackSize])))
	}
	s.logger.Debug("debug system stats", fields...)
}
