package events

import (
	"log/slog"
	"sync"

	"github.com/concord-kg/concord/pkg/logger"
)

// Service fans decision events out to subscribers. A subscriber may filter
// on a correlation id; an empty filter receives everything. Publication
// never blocks on a slow or dead subscriber beyond its callback returning.
type Service struct {
	log *slog.Logger

	mu          sync.RWMutex
	nextID      uint64
	subscribers map[uint64]*subscriber
}

type subscriber struct {
	correlationID string
	callback      func(DecisionEvent)
}

// NewService creates a new decision event service.
func NewService(log *slog.Logger) *Service {
	return &Service{
		log:         log.With(logger.Scope("events")),
		subscribers: make(map[uint64]*subscriber),
	}
}

// Subscribe registers a callback and returns an unsubscribe function.
// correlationID narrows delivery to one correlation; empty means all.
func (s *Service) Subscribe(correlationID string, callback func(DecisionEvent)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = &subscriber{correlationID: correlationID, callback: callback}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Publish delivers the event to every matching subscriber.
func (s *Service) Publish(event DecisionEvent) {
	s.mu.RLock()
	matching := make([]func(DecisionEvent), 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		if sub.correlationID == "" || sub.correlationID == event.CorrelationID {
			matching = append(matching, sub.callback)
		}
	}
	s.mu.RUnlock()

	for _, cb := range matching {
		cb(event)
	}

	s.log.Debug("decision event published",
		slog.String("proposal_id", event.ProposalID.String()),
		slog.String("decision", event.Decision),
		slog.Int("subscribers", len(matching)),
	)
}

// GetSubscriberCount returns the number of subscribers for a correlation id.
func (s *Service) GetSubscriberCount(correlationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, sub := range s.subscribers {
		if sub.correlationID == correlationID {
			count++
		}
	}
	return count
}

// GetTotalSubscriberCount returns the number of subscribers across all
// correlations.
func (s *Service) GetTotalSubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
