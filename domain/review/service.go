package review

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/concord-kg/concord/domain/proposal"
	"github.com/concord-kg/concord/pkg/logger"
)

// Submitter accepts a proposal into the governance pipeline. The pipeline
// implements it; review depends only on this contract.
type Submitter interface {
	Submit(ctx context.Context, p *proposal.Proposal) error
}

// Service coordinates manual review decisions.
type Service struct {
	queue     Queue
	submitter Submitter
	log       *slog.Logger
}

// NewService creates a review service.
func NewService(queue Queue, submitter Submitter, log *slog.Logger) *Service {
	return &Service{
		queue:     queue,
		submitter: submitter,
		log:       log.With(logger.Scope("review")),
	}
}

// Park stores an escalated proposal for manual resolution.
func (s *Service) Park(ctx context.Context, p *proposal.Proposal, conflicts []map[string]any) (*Item, error) {
	item := NewItem(p, conflicts)
	if err := s.queue.Park(ctx, item); err != nil {
		return nil, err
	}
	s.log.Info("proposal parked for manual review",
		slog.String("item_id", item.ID.String()),
		slog.String("proposal_id", p.ID.String()),
		slog.String("correlation_id", p.CorrelationID),
	)
	return item, nil
}

// Approve resolves an item and resubmits its mutation as a new proposal on
// the original correlation id. The resubmission carries the reviewer's
// role and a manual-approval mark that downgrades judgment conflicts to
// automatic resolution.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, reviewer proposal.Role) (*Item, *proposal.Proposal, error) {
	item, err := s.queue.Resolve(ctx, id, StatusApproved, string(reviewer))
	if err != nil {
		return nil, nil, err
	}

	resubmitted := proposal.New(item.Proposal.Operation, item.Proposal.Payload, reviewer, item.CorrelationID)
	resubmitted.Derived = item.Proposal.Derived
	resubmitted.ManuallyApproved = true

	if err := s.submitter.Submit(ctx, resubmitted); err != nil {
		return nil, nil, err
	}

	s.log.Info("review approved",
		slog.String("item_id", item.ID.String()),
		slog.String("resubmitted_proposal_id", resubmitted.ID.String()),
		slog.String("reviewer", string(reviewer)),
	)
	return item, resubmitted, nil
}

// Reject closes an item without resubmission. The original proposal keeps
// its Escalated terminal record; nothing re-enters the pipeline.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reviewer proposal.Role) (*Item, error) {
	item, err := s.queue.Resolve(ctx, id, StatusRejected, string(reviewer))
	if err != nil {
		return nil, err
	}
	s.log.Info("review rejected",
		slog.String("item_id", item.ID.String()),
		slog.String("reviewer", string(reviewer)),
	)
	return item, nil
}

// Get returns one review item.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	return s.queue.Get(ctx, id)
}

// Pending returns the open queue, oldest first.
func (s *Service) Pending(ctx context.Context) ([]*Item, error) {
	return s.queue.Pending(ctx)
}

// ByCorrelation returns every item for one correlation chain.
func (s *Service) ByCorrelation(ctx context.Context, correlationID string) ([]*Item, error) {
	return s.queue.ByCorrelation(ctx, correlationID)
}

// PendingCount returns the queue depth.
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	return s.queue.PendingCount(ctx)
}

// ExpireStale expires pending items older than maxAge.
func (s *Service) ExpireStale(ctx context.Context, maxAge time.Duration) (int, error) {
	expired, err := s.queue.ExpireBefore(ctx, time.Now().UTC().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.log.Warn("expired stale review items", slog.Int("count", expired))
	}
	return expired, nil
}
