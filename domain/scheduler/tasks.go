package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/concord-kg/concord/domain/audit"
	"github.com/concord-kg/concord/domain/review"
	"github.com/concord-kg/concord/pkg/logger"
)

// ReviewExpiryTask rejects escalated review items that have waited past
// the configured maximum age.
type ReviewExpiryTask struct {
	reviews *review.Service
	maxAge  time.Duration
	log     *slog.Logger
}

// NewReviewExpiryTask creates a new review expiry task.
func NewReviewExpiryTask(reviews *review.Service, maxAge time.Duration, log *slog.Logger) *ReviewExpiryTask {
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	return &ReviewExpiryTask{
		reviews: reviews,
		maxAge:  maxAge,
		log:     log.With(logger.Scope("scheduler.review_expiry")),
	}
}

// Run expires review items older than the maximum age.
func (t *ReviewExpiryTask) Run(ctx context.Context) error {
	start := time.Now()
	t.log.Debug("expiring stale review items")

	expired, err := t.reviews.ExpireStale(ctx, t.maxAge)
	if err != nil {
		t.log.Error("failed to expire stale review items",
			slog.String("error", err.Error()))
		return err
	}

	if expired > 0 {
		t.log.Info("expired stale review items",
			slog.Int("count", expired),
			slog.Duration("max_age", t.maxAge),
			slog.Duration("duration", time.Since(start)))
	} else {
		t.log.Debug("no stale review items to expire",
			slog.Duration("duration", time.Since(start)))
	}

	return nil
}

// StatsLogTask periodically logs decision counts and review queue depth
// so operators can watch pipeline throughput without scraping metrics.
type StatsLogTask struct {
	auditLog audit.Log
	reviews  review.Queue
	log      *slog.Logger
}

// NewStatsLogTask creates a new stats logging task.
func NewStatsLogTask(auditLog audit.Log, reviews review.Queue, log *slog.Logger) *StatsLogTask {
	return &StatsLogTask{
		auditLog: auditLog,
		reviews:  reviews,
		log:      log.With(logger.Scope("scheduler.stats")),
	}
}

// Run logs a snapshot of terminal decision counts and pending reviews.
func (t *StatsLogTask) Run(ctx context.Context) error {
	counts, err := t.auditLog.DecisionCounts(ctx)
	if err != nil {
		t.log.Error("failed to load decision counts",
			slog.String("error", err.Error()))
		return err
	}

	pending, err := t.reviews.PendingCount(ctx)
	if err != nil {
		t.log.Error("failed to load pending review count",
			slog.String("error", err.Error()))
		return err
	}

	t.log.Info("pipeline statistics",
		slog.Int("committed", counts[audit.DecisionCommitted]),
		slog.Int("rejected", counts[audit.DecisionRejected]),
		slog.Int("escalated", counts[audit.DecisionEscalated]),
		slog.Int("pending_review", pending))

	return nil
}
