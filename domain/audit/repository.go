package audit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"github.com/concord-kg/concord/pkg/apperror"
	"github.com/concord-kg/concord/pkg/logger"
)

// Repository is the Postgres-backed Log. The one-terminal-record invariant
// is enforced by a partial unique index on (proposal_id) for terminal rows.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a Postgres decision log.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("audit.repo")),
	}
}

func (r *Repository) Append(ctx context.Context, record *Record) error {
	_, err := r.db.NewInsert().Model(record).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrTerminalExists
		}
		return apperror.ErrStoreUnavailable.WithInternal(err)
	}
	return nil
}

func (r *Repository) ByProposal(ctx context.Context, proposalID uuid.UUID) ([]*Record, error) {
	var records []*Record
	err := r.db.NewSelect().Model(&records).
		Where("ar.proposal_id = ?", proposalID).
		Order("ar.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	return records, nil
}

func (r *Repository) ByCorrelation(ctx context.Context, correlationID string) ([]*Record, error) {
	var records []*Record
	err := r.db.NewSelect().Model(&records).
		Where("ar.correlation_id = ?", correlationID).
		Order("ar.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	return records, nil
}

func (r *Repository) Recent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []*Record
	err := r.db.NewSelect().Model(&records).
		Order("ar.created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	return records, nil
}

func (r *Repository) DecisionCounts(ctx context.Context) (map[Decision]int, error) {
	var rows []struct {
		Decision Decision `bun:"decision"`
		Count    int      `bun:"count"`
	}
	err := r.db.NewSelect().Model((*Record)(nil)).
		ColumnExpr("ar.decision").
		ColumnExpr("count(*) AS count").
		Where("ar.decision IS NOT NULL AND ar.decision <> ''").
		GroupExpr("ar.decision").
		Scan(ctx, &rows)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}

	counts := make(map[Decision]int, len(rows))
	for _, row := range rows {
		counts[row.Decision] = row.Count
	}
	return counts, nil
}
