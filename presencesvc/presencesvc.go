// Package presencesvc tracks which clients are currently active and how many
// there are per platform.
package presencesvc

import (
	"context"
	"github.com/lefinal/confcomp-server/event"
	"github.com/lefinal/confcomp-server/portal"
	"go.uber.org/zap"
	"strings"
	"sync"
)

// Topics.
const (
	// topicJoin is where clients announce that they became active.
	topicJoin portal.Topic = portal.BaseTopic + "/presence/join"
	// topicLeave is where clients announce that they are no longer active.
	topicLeave portal.Topic = portal.BaseTopic + "/presence/leave"
	// topicReport is used for requesting all instances to re-announce their
	// clients to topicJoin.
	topicReport portal.Topic = portal.BaseTopic + "/presence/report"
	// topicCounts is where the current counts are published after each change.
	topicCounts portal.Topic = portal.BaseTopic + "/presence/counts"
)

// unknownPlatform is used for clients that did not name their platform.
const unknownPlatform = "unknown"

// Service keeps track of active clients. Clients of this instance are
// announced via Join and Leave. Clients of other instances are learned from
// the portal.
type Service struct {
	logger *zap.Logger
	// portal to use for communication.
	portal portal.Portal
	// clients holds the platform of all known active clients by client id.
	clients map[string]string
	// local holds the platform of clients that joined via this instance.
	local map[string]string
	// clientsMutex locks clients and local.
	clientsMutex sync.RWMutex
}

// NewService creates a new Service ready to run.
func NewService(logger *zap.Logger, portal portal.Portal) *Service {
	return &Service{
		logger:  logger,
		portal:  portal,
		clients: make(map[string]string),
		local:   make(map[string]string),
	}
}

// normalizePlatform lowercases the platform and falls back to unknownPlatform.
func normalizePlatform(platform string) string {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		return unknownPlatform
	}
	return platform
}

// Run the service, request a report and serve until the given context.Context
// is done. All known clients are forgotten when Run returns.
func (s *Service) Run(ctx context.Context) error {
	defer s.reset()
	var wg sync.WaitGroup
	// Subscribe to report requests.
	reportNewsletter := portal.Subscribe[event.EmptyEvent](ctx, s.portal, topicReport)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range reportNewsletter.Receive {
			s.handleReportEvent(ctx)
		}
	}()
	// Handle joins.
	joinNewsletter := portal.Subscribe[event.PresenceJoinEvent](ctx, s.portal, topicJoin)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for e := range joinNewsletter.Receive {
			s.handleJoinEvent(ctx, e.Payload)
		}
	}()
	// Handle leaves.
	leaveNewsletter := portal.Subscribe[event.PresenceLeaveEvent](ctx, s.portal, topicLeave)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for e := range leaveNewsletter.Receive {
			s.handleLeaveEvent(ctx, e.Payload)
		}
	}()
	// Request report after all handlers up.
	s.portal.Publish(ctx, topicReport, event.EmptyEvent{})
	wg.Wait()
	return nil
}

// reset forgets all clients.
func (s *Service) reset() {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()
	s.clients = make(map[string]string)
	s.local = make(map[string]string)
}

// handleReportEvent re-announces all local clients.
func (s *Service) handleReportEvent(ctx context.Context) {
	s.clientsMutex.RLock()
	joins := make([]event.PresenceJoinEvent, 0, len(s.local))
	for clientID, platform := range s.local {
		joins = append(joins, event.PresenceJoinEvent{
			ClientID: clientID,
			Platform: platform,
		})
	}
	s.clientsMutex.RUnlock()
	for _, join := range joins {
		s.portal.Publish(ctx, topicJoin, join)
	}
}

// handleJoinEvent handles topicJoin.
func (s *Service) handleJoinEvent(ctx context.Context, e event.PresenceJoinEvent) {
	if e.ClientID == "" {
		s.logger.Debug("dropping join event without client id")
		return
	}
	if s.join(e.ClientID, normalizePlatform(e.Platform)) {
		s.publishCounts(ctx)
	}
}

// handleLeaveEvent handles topicLeave.
func (s *Service) handleLeaveEvent(ctx context.Context, e event.PresenceLeaveEvent) {
	if s.leave(e.ClientID) {
		s.publishCounts(ctx)
	}
}

// join adds the client and reports whether anything changed.
func (s *Service) join(clientID string, platform string) bool {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()
	if known, ok := s.clients[clientID]; ok && known == platform {
		return false
	}
	s.clients[clientID] = platform
	return true
}

// leave removes the client and reports whether anything changed.
func (s *Service) leave(clientID string) bool {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()
	if _, ok := s.clients[clientID]; !ok {
		return false
	}
	delete(s.clients, clientID)
	return true
}

// publishCounts publishes the current counts to topicCounts.
func (s *Service) publishCounts(ctx context.Context) {
	counts := s.Counts()
	total := 0
	for _, count := range counts {
		total += count
	}
	s.portal.Publish(ctx, topicCounts, event.PresenceCountsEvent{
		Counts: counts,
		Total:  total,
	})
}

// Join registers a client of this instance as active and announces it.
func (s *Service) Join(ctx context.Context, clientID string, platform string) {
	platform = normalizePlatform(platform)
	s.clientsMutex.Lock()
	s.local[clientID] = platform
	s.clientsMutex.Unlock()
	s.logger.Debug("client joined", zap.String("client_id", clientID), zap.String("platform", platform))
	if s.join(clientID, platform) {
		s.publishCounts(ctx)
	}
	s.portal.Publish(ctx, topicJoin, event.PresenceJoinEvent{
		ClientID: clientID,
		Platform: platform,
	})
}

// Leave unregisters a client of this instance and announces it.
func (s *Service) Leave(ctx context.Context, clientID string) {
	s.clientsMutex.Lock()
	delete(s.local, clientID)
	s.clientsMutex.Unlock()
	s.logger.Debug("client left", zap.String("client_id", clientID))
	if s.leave(clientID) {
		s.publishCounts(ctx)
	}
	s.portal.Publish(ctx, topicLeave, event.PresenceLeaveEvent{ClientID: clientID})
}

// Counts returns the number of active clients by platform.
func (s *Service) Counts() map[string]int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	counts := make(map[string]int)
	for _, platform := range s.clients {
		counts[platform]++
	}
	return counts
}

// Total returns the total number of active clients.
func (s *Service) Total() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}
