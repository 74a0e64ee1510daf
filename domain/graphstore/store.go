package graphstore

import (
	"context"
	"errors"
	"sort"
)

// ErrNotFound is returned when an entity or relationship does not exist.
var ErrNotFound = errors.New("graphstore: not found")

// Store is the graph-store contract consumed by the governance engine.
// Implementations must report the true current version of any entity they
// return.
type Store interface {
	// Snapshot returns a logically consistent read of the whole graph.
	Snapshot(ctx context.Context) (Snapshot, error)

	// Get returns the current state of an entity, or ErrNotFound.
	Get(ctx context.Context, id string) (*Entity, error)

	// PutEntity creates the entity (version 1) or replaces its properties
	// (version bumped by the store). Returns the stored state.
	PutEntity(ctx context.Context, e *Entity) (*Entity, error)

	// DeleteEntity removes an entity and returns its prior state, or
	// ErrNotFound.
	DeleteEntity(ctx context.Context, id string) (*Entity, error)

	// PutRelationship creates or replaces an edge.
	PutRelationship(ctx context.Context, r *Relationship) error

	// DeleteRelationship removes an edge and returns its prior state, or
	// ErrNotFound.
	DeleteRelationship(ctx context.Context, sourceID, targetID, relType string) (*Relationship, error)

	// RelabelRelationships re-points every edge endpoint equal to fromID at
	// toID, used when a duplicate entity is merged away. Returns the number
	// of edges rewritten.
	RelabelRelationships(ctx context.Context, fromID, toID string) (int, error)
}

// Snapshot is an immutable, consistent view of the graph used by
// validation, conflict detection, and reasoning.
type Snapshot interface {
	Entity(id string) (*Entity, bool)
	Entities() []*Entity
	EntitiesByType(entityType string) []*Entity
	Relationships() []*Relationship
	RelationshipsFrom(sourceID string) []*Relationship
	RelationshipsTo(targetID string) []*Relationship
	HasRelationship(sourceID, targetID, relType string) bool
}

// snapshot is the shared Snapshot implementation: plain indexed copies of
// the graph at one instant.
type snapshot struct {
	entities map[string]*Entity
	byType   map[string][]*Entity
	edges    map[string]*Relationship
	from     map[string][]*Relationship
	to       map[string][]*Relationship
}

// NewSnapshot builds a Snapshot from copies of the given records. Callers
// must not retain the passed slices' elements after the call.
func NewSnapshot(entities []*Entity, relationships []*Relationship) Snapshot {
	s := &snapshot{
		entities: make(map[string]*Entity, len(entities)),
		byType:   make(map[string][]*Entity),
		edges:    make(map[string]*Relationship, len(relationships)),
		from:     make(map[string][]*Relationship),
		to:       make(map[string][]*Relationship),
	}
	for _, e := range entities {
		clone := e.Clone()
		s.entities[clone.ID] = clone
		s.byType[clone.Type] = append(s.byType[clone.Type], clone)
	}
	for _, r := range relationships {
		clone := r.Clone()
		s.edges[clone.Key()] = clone
		s.from[clone.SourceID] = append(s.from[clone.SourceID], clone)
		s.to[clone.TargetID] = append(s.to[clone.TargetID], clone)
	}
	return s
}

func (s *snapshot) Entity(id string) (*Entity, bool) {
	e, ok := s.entities[id]
	return e, ok
}

func (s *snapshot) Entities() []*Entity {
	result := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *snapshot) EntitiesByType(entityType string) []*Entity {
	return s.byType[entityType]
}

func (s *snapshot) Relationships() []*Relationship {
	result := make([]*Relationship, 0, len(s.edges))
	for _, r := range s.edges {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key() < result[j].Key() })
	return result
}

func (s *snapshot) RelationshipsFrom(sourceID string) []*Relationship {
	return s.from[sourceID]
}

func (s *snapshot) RelationshipsTo(targetID string) []*Relationship {
	return s.to[targetID]
}

func (s *snapshot) HasRelationship(sourceID, targetID, relType string) bool {
	_, ok := s.edges[(&Relationship{SourceID: sourceID, TargetID: targetID, Type: relType}).Key()]
	return ok
}
