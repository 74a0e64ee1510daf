package graphstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutEntityBumpsVersion(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.PutEntity(ctx, &Entity{
		ID:         "server-001",
		Type:       "Server",
		Properties: map[string]any{"cpu_count": 8},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)

	second, err := store.PutEntity(ctx, &Entity{
		ID:         "server-001",
		Type:       "Server",
		Properties: map[string]any{"cpu_count": 16},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	got, err := store.Get(ctx, "server-001")
	require.NoError(t, err)
	assert.Equal(t, 16, got.Properties["cpu_count"])
}

func TestGetUnknownEntity(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.PutEntity(ctx, &Entity{
		ID:         "db-001",
		Type:       "Database",
		Properties: map[string]any{"engine": "postgres"},
	})
	require.NoError(t, err)

	got, err := store.Get(ctx, "db-001")
	require.NoError(t, err)
	got.Properties["engine"] = "mysql"

	again, err := store.Get(ctx, "db-001")
	require.NoError(t, err)
	assert.Equal(t, "postgres", again.Properties["engine"])
}

func TestDeleteEntityReturnsPriorState(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.PutEntity(ctx, &Entity{ID: "app-001", Type: "Application"})
	require.NoError(t, err)

	prior, err := store.DeleteEntity(ctx, "app-001")
	require.NoError(t, err)
	assert.Equal(t, "app-001", prior.ID)
	assert.Equal(t, 1, prior.Version)

	_, err = store.Get(ctx, "app-001")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.DeleteEntity(ctx, "app-001")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRelationshipLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rel := &Relationship{SourceID: "app-001", TargetID: "db-001", Type: "depends_on"}
	require.NoError(t, store.PutRelationship(ctx, rel))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.HasRelationship("app-001", "db-001", "depends_on"))
	assert.False(t, snap.HasRelationship("db-001", "app-001", "depends_on"))

	prior, err := store.DeleteRelationship(ctx, "app-001", "db-001", "depends_on")
	require.NoError(t, err)
	assert.Equal(t, "depends_on", prior.Type)

	_, err = store.DeleteRelationship(ctx, "app-001", "db-001", "depends_on")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRelabelRelationships(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.PutRelationship(ctx, &Relationship{SourceID: "dup-001", TargetID: "db-001", Type: "depends_on"}))
	require.NoError(t, store.PutRelationship(ctx, &Relationship{SourceID: "app-001", TargetID: "dup-001", Type: "hosts"}))
	require.NoError(t, store.PutRelationship(ctx, &Relationship{SourceID: "app-001", TargetID: "db-001", Type: "depends_on"}))

	n, err := store.RelabelRelationships(ctx, "dup-001", "srv-001")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.HasRelationship("srv-001", "db-001", "depends_on"))
	assert.True(t, snap.HasRelationship("app-001", "srv-001", "hosts"))
	assert.False(t, snap.HasRelationship("dup-001", "db-001", "depends_on"))
	assert.True(t, snap.HasRelationship("app-001", "db-001", "depends_on"))
}

func TestSnapshotIsDetachedFromStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.PutEntity(ctx, &Entity{ID: "srv-001", Type: "Server"})
	require.NoError(t, err)

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)

	_, err = store.PutEntity(ctx, &Entity{ID: "srv-002", Type: "Server"})
	require.NoError(t, err)

	assert.Len(t, snap.Entities(), 1)
	_, ok := snap.Entity("srv-002")
	assert.False(t, ok)
}

func TestSnapshotIndexes(t *testing.T) {
	snap := NewSnapshot(
		[]*Entity{
			{ID: "srv-001", Type: "Server"},
			{ID: "srv-002", Type: "Server"},
			{ID: "db-001", Type: "Database"},
		},
		[]*Relationship{
			{SourceID: "srv-001", TargetID: "db-001", Type: "hosts"},
			{SourceID: "srv-002", TargetID: "db-001", Type: "hosts"},
		},
	)

	assert.Len(t, snap.EntitiesByType("Server"), 2)
	assert.Len(t, snap.EntitiesByType("Network"), 0)
	assert.Len(t, snap.RelationshipsFrom("srv-001"), 1)
	assert.Len(t, snap.RelationshipsTo("db-001"), 2)
	assert.Len(t, snap.RelationshipsTo("srv-001"), 0)

	entities := snap.Entities()
	require.Len(t, entities, 3)
	assert.Equal(t, "db-001", entities[0].ID)
}
