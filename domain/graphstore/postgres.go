package graphstore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/concord-kg/concord/internal/database"
	"github.com/concord-kg/concord/pkg/apperror"
	"github.com/concord-kg/concord/pkg/logger"
)

// PostgresStore is the Postgres-backed Store implementation.
type PostgresStore struct {
	db  bun.IDB
	log *slog.Logger
}

// NewPostgresStore creates a Postgres graph store.
func NewPostgresStore(db bun.IDB, log *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:  db,
		log: log.With(logger.Scope("graphstore.pg")),
	}
}

// Snapshot reads the whole graph inside a repeatable-read transaction so
// validation and conflict detection see one consistent instant.
func (s *PostgresStore) Snapshot(ctx context.Context) (Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	defer tx.Rollback()

	var entities []*Entity
	if err := tx.NewSelect().Model(&entities).Scan(ctx); err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}

	var relationships []*Relationship
	if err := tx.NewSelect().Model(&relationships).Scan(ctx); err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}

	return NewSnapshot(entities, relationships), nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Entity, error) {
	entity := new(Entity)
	err := s.db.NewSelect().Model(entity).Where("ge.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	return entity, nil
}

func (s *PostgresStore) PutEntity(ctx context.Context, e *Entity) (*Entity, error) {
	tx, err := database.BeginSafeTx(ctx, s.db)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	defer tx.Rollback()

	current := new(Entity)
	err = tx.NewSelect().Model(current).Where("ge.id = ?", e.ID).For("UPDATE").Scan(ctx)

	now := time.Now().UTC()
	stored := e.Clone()
	stored.UpdatedAt = now

	switch {
	case errors.Is(err, sql.ErrNoRows):
		stored.Version = 1
		stored.CreatedAt = now
		if _, err := tx.NewInsert().Model(stored).Exec(ctx); err != nil {
			return nil, apperror.ErrStoreUnavailable.WithInternal(err)
		}
	case err != nil:
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	default:
		stored.Version = current.Version + 1
		stored.CreatedAt = current.CreatedAt
		if _, err := tx.NewUpdate().Model(stored).WherePK().Exec(ctx); err != nil {
			return nil, apperror.ErrStoreUnavailable.WithInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	return stored, nil
}

func (s *PostgresStore) DeleteEntity(ctx context.Context, id string) (*Entity, error) {
	tx, err := database.BeginSafeTx(ctx, s.db)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	defer tx.Rollback()

	current := new(Entity)
	err = tx.NewSelect().Model(current).Where("ge.id = ?", id).For("UPDATE").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}

	if _, err := tx.NewDelete().Model((*Entity)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	return current, nil
}

func (s *PostgresStore) PutRelationship(ctx context.Context, r *Relationship) error {
	stored := r.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.NewInsert().
		Model(stored).
		On("CONFLICT (source_id, target_id, type) DO UPDATE").
		Set("properties = EXCLUDED.properties").
		Set("source = EXCLUDED.source").
		Exec(ctx)
	if err != nil {
		return apperror.ErrStoreUnavailable.WithInternal(err)
	}
	return nil
}

func (s *PostgresStore) DeleteRelationship(ctx context.Context, sourceID, targetID, relType string) (*Relationship, error) {
	tx, err := database.BeginSafeTx(ctx, s.db)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	defer tx.Rollback()

	current := new(Relationship)
	err = tx.NewSelect().Model(current).
		Where("gr.source_id = ?", sourceID).
		Where("gr.target_id = ?", targetID).
		Where("gr.type = ?", relType).
		For("UPDATE").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}

	_, err = tx.NewDelete().Model((*Relationship)(nil)).
		Where("source_id = ?", sourceID).
		Where("target_id = ?", targetID).
		Where("type = ?", relType).
		Exec(ctx)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	return current, nil
}

func (s *PostgresStore) RelabelRelationships(ctx context.Context, fromID, toID string) (int, error) {
	tx, err := database.BeginSafeTx(ctx, s.db)
	if err != nil {
		return 0, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	defer tx.Rollback()

	res, err := tx.NewUpdate().Model((*Relationship)(nil)).
		Set("source_id = ?", toID).
		Where("source_id = ?", fromID).
		Exec(ctx)
	if err != nil {
		return 0, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	sources, _ := res.RowsAffected()

	res, err = tx.NewUpdate().Model((*Relationship)(nil)).
		Set("target_id = ?", toID).
		Where("target_id = ?", fromID).
		Exec(ctx)
	if err != nil {
		return 0, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	targets, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, apperror.ErrStoreUnavailable.WithInternal(err)
	}
	return int(sources + targets), nil
}
