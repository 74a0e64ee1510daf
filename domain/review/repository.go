package review

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/concord-kg/concord/internal/database"
	"github.com/concord-kg/concord/pkg/apperror"
	"github.com/concord-kg/concord/pkg/logger"
)

// Repository is the Postgres-backed review queue.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a Postgres review queue.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("review.repo")),
	}
}

func (r *Repository) Park(ctx context.Context, item *Item) error {
	if _, err := r.db.NewInsert().Model(item).Exec(ctx); err != nil {
		return apperror.ErrStoreUnavailable.WithInternal(err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	item := new(Item)
	err := r.db.NewSelect().Model(item).Where("ri.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	return item, nil
}

func (r *Repository) Pending(ctx context.Context) ([]*Item, error) {
	var items []*Item
	err := r.db.NewSelect().Model(&items).
		Where("ri.status = ?", StatusPending).
		Order("ri.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	return items, nil
}

func (r *Repository) ByCorrelation(ctx context.Context, correlationID string) ([]*Item, error) {
	var items []*Item
	err := r.db.NewSelect().Model(&items).
		Where("ri.correlation_id = ?", correlationID).
		Order("ri.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	return items, nil
}

func (r *Repository) Resolve(ctx context.Context, id uuid.UUID, status Status, resolvedBy string) (*Item, error) {
	tx, err := database.BeginSafeTx(ctx, r.db)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	defer tx.Rollback()

	item := new(Item)
	err = tx.NewSelect().Model(item).Where("ri.id = ?", id).For("UPDATE").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	if item.Status != StatusPending {
		return nil, ErrAlreadyResolved
	}

	now := time.Now().UTC()
	item.Status = status
	item.ResolvedAt = &now
	item.ResolvedBy = resolvedBy

	if _, err := tx.NewUpdate().Model(item).WherePK().Exec(ctx); err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	return item, nil
}

func (r *Repository) ExpireBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.NewUpdate().Model((*Item)(nil)).
		Set("status = ?", StatusExpired).
		Set("resolved_at = now()").
		Set("resolved_by = ?", "governance-engine").
		Where("status = ?", StatusPending).
		Where("created_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *Repository) PendingCount(ctx context.Context) (int, error) {
	count, err := r.db.NewSelect().Model((*Item)(nil)).
		Where("ri.status = ?", StatusPending).
		Count(ctx)
	if err != nil {
		return 0, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	return count, nil
}
