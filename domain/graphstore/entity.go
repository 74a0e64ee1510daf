// Package graphstore defines the graph-store boundary: the entity and
// relationship records owned by the store, a consistent-read Snapshot, and
// the Store contract the governance engine commits through. The engine
// never holds mutable references to graph data; all reads go through a
// snapshot and all writes through explicit store calls.
package graphstore

import (
	"time"

	"github.com/uptrace/bun"
)

// Entity is a knowledge-graph node. The store owns the record; the engine
// only requests changes. Version is a monotonic per-entity counter bumped
// by the store on every write.
type Entity struct {
	bun.BaseModel `bun:"table:gov.graph_entities,alias:ge"`

	ID         string         `bun:"id,pk" json:"id"`
	Type       string         `bun:"type,notnull" json:"type"`
	Properties map[string]any `bun:"properties,type:jsonb,notnull,default:'{}'" json:"properties"`
	Domain     string         `bun:"domain" json:"domain,omitempty"`
	Source     string         `bun:"source" json:"source,omitempty"`
	Version    int            `bun:"version,notnull,default:1" json:"version"`

	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:now()" json:"updated_at"`
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Properties = cloneProperties(e.Properties)
	return &clone
}

// Relationship is a typed, directed edge between two entities. Endpoint ids
// must resolve to existing entities at commit time; the validation engine,
// not the store, enforces that invariant.
type Relationship struct {
	bun.BaseModel `bun:"table:gov.graph_relationships,alias:gr"`

	SourceID   string         `bun:"source_id,pk" json:"source_id"`
	TargetID   string         `bun:"target_id,pk" json:"target_id"`
	Type       string         `bun:"type,pk" json:"type"`
	Properties map[string]any `bun:"properties,type:jsonb,notnull,default:'{}'" json:"properties"`
	Source     string         `bun:"source" json:"source,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// Clone returns a deep copy of the relationship.
func (r *Relationship) Clone() *Relationship {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Properties = cloneProperties(r.Properties)
	return &clone
}

// Key returns the identity triple of the edge.
func (r *Relationship) Key() string {
	return r.SourceID + "\x00" + r.Type + "\x00" + r.TargetID
}

func cloneProperties(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	clone := make(map[string]any, len(props))
	for k, v := range props {
		clone[k] = v
	}
	return clone
}
