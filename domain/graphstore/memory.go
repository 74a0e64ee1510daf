package graphstore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in standalone mode and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[string]*Entity
	edges    map[string]*Relationship
}

// NewMemoryStore creates an empty in-memory graph store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities: make(map[string]*Entity),
		edges:    make(map[string]*Relationship),
	}
}

func (m *MemoryStore) Snapshot(ctx context.Context) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entities := make([]*Entity, 0, len(m.entities))
	for _, e := range m.entities {
		entities = append(entities, e)
	}
	relationships := make([]*Relationship, 0, len(m.edges))
	for _, r := range m.edges {
		relationships = append(relationships, r)
	}
	return NewSnapshot(entities, relationships), nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entities[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.Clone(), nil
}

func (m *MemoryStore) PutEntity(ctx context.Context, e *Entity) (*Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	stored := e.Clone()

	if current, ok := m.entities[e.ID]; ok {
		stored.Version = current.Version + 1
		stored.CreatedAt = current.CreatedAt
	} else {
		stored.Version = 1
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	m.entities[stored.ID] = stored
	return stored.Clone(), nil
}

func (m *MemoryStore) DeleteEntity(ctx context.Context, id string) (*Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.entities[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.entities, id)
	return current, nil
}

func (m *MemoryStore) PutRelationship(ctx context.Context, r *Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := r.Clone()
	if existing, ok := m.edges[stored.Key()]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	m.edges[stored.Key()] = stored
	return nil
}

func (m *MemoryStore) DeleteRelationship(ctx context.Context, sourceID, targetID, relType string) (*Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := (&Relationship{SourceID: sourceID, TargetID: targetID, Type: relType}).Key()
	current, ok := m.edges[key]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.edges, key)
	return current, nil
}

func (m *MemoryStore) RelabelRelationships(ctx context.Context, fromID, toID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rewritten := 0
	for key, r := range m.edges {
		if r.SourceID != fromID && r.TargetID != fromID {
			continue
		}
		updated := r.Clone()
		if updated.SourceID == fromID {
			updated.SourceID = toID
		}
		if updated.TargetID == fromID {
			updated.TargetID = toID
		}
		delete(m.edges, key)
		m.edges[updated.Key()] = updated
		rewritten++
	}
	return rewritten, nil
}
