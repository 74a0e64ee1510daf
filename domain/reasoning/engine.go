package reasoning

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/concord-kg/concord/domain/graphstore"
	"github.com/concord-kg/concord/domain/proposal"
	"github.com/concord-kg/concord/domain/rules"
	"github.com/concord-kg/concord/pkg/logger"
)

// Similarity thresholds for relationship suggestion.
const (
	similarityMinSharedKeys = 3
	similarityMinRatio      = 0.8
)

// Engine runs the inference rules over a committed mutation and a
// post-commit snapshot. It is read-only over the snapshot.
type Engine struct {
	rules *rules.Set
	log   *slog.Logger
}

// NewEngine creates a reasoning engine.
func NewEngine(set *rules.Set, log *slog.Logger) *Engine {
	return &Engine{
		rules: set,
		log:   log.With(logger.Scope("reasoning")),
	}
}

// Infer derives facts from a committed mutation. Derived proposals produce
// no facts, which bounds inference cascades to one generation.
func (e *Engine) Infer(p *proposal.Proposal, snap graphstore.Snapshot) InferredFacts {
	if p.Derived {
		return InferredFacts{}
	}

	var facts InferredFacts
	switch p.Operation {
	case proposal.OpCreateEntity, proposal.OpUpdateEntity:
		entity, ok := snap.Entity(p.Payload.EntityID)
		if !ok {
			return facts
		}
		facts.Properties = e.inferProperties(entity)
		facts.Classifications = e.classifyEntity(entity, snap)
		facts.SuggestedRelationships = e.suggestSimilar(entity, snap)
	case proposal.OpCreateRelationship:
		facts.SuggestedRelationships = e.suggestInverse(p.Payload, snap)
		facts.ClosureEdges = e.transitiveClosure(p.Payload, snap)
	}

	if !facts.Empty() {
		e.log.Debug("inference produced facts",
			slog.String("proposal_id", p.ID.String()),
			slog.Int("properties", len(facts.Properties)),
			slog.Int("classifications", len(facts.Classifications)),
			slog.Int("suggestions", len(facts.SuggestedRelationships)),
			slog.Int("closure_edges", len(facts.ClosureEdges)),
		)
	}
	return facts
}

// inferProperties fills derivable properties from existing ones. A property
// already present on the entity is authored and is never touched.
func (e *Engine) inferProperties(entity *graphstore.Entity) []InferredProperty {
	props := entity.Properties
	var inferred []InferredProperty

	if _, ok := props["email"]; ok {
		if _, authored := props["has_contact_info"]; !authored {
			inferred = append(inferred, InferredProperty{
				EntityID:   entity.ID,
				Property:   "has_contact_info",
				Value:      true,
				Confidence: 0.9,
				Reason:     "entity has an email property",
			})
		}
	}

	if _, ok := props["created_date"]; ok {
		if _, authored := props["is_temporal"]; !authored {
			inferred = append(inferred, InferredProperty{
				EntityID:   entity.ID,
				Property:   "is_temporal",
				Value:      true,
				Confidence: 0.8,
				Reason:     "entity has temporal properties",
			})
		}
	}

	return inferred
}

// classifyEntity assigns a semantic category from the entity's property
// shape and relationship neighborhood. An authored category is confirmed,
// never replaced.
func (e *Engine) classifyEntity(entity *graphstore.Entity, snap graphstore.Snapshot) []Classification {
	if _, authored := entity.Properties["category"]; authored {
		return nil
	}

	props := entity.Properties
	var result []Classification

	_, hasName := props["name"]
	_, hasEmail := props["email"]
	if hasName && hasEmail {
		result = append(result, Classification{
			EntityID:   entity.ID,
			Category:   "person",
			Confidence: 0.8,
			Reason:     "has name and email properties",
		})
	}

	_, hasAmount := props["amount"]
	_, hasPrice := props["price"]
	if hasAmount || hasPrice {
		result = append(result, Classification{
			EntityID:   entity.ID,
			Category:   "financial",
			Confidence: 0.7,
			Reason:     "has financial properties",
		})
	}

	_, hasStatus := props["status"]
	_, hasCreated := props["created_date"]
	if hasStatus && hasCreated {
		result = append(result, Classification{
			EntityID:   entity.ID,
			Category:   "process",
			Confidence: 0.6,
			Reason:     "has status and temporal properties",
		})
	}

	// Neighborhood signal: anything other entities declare themselves an
	// instance of is a category.
	for _, rel := range snap.RelationshipsTo(entity.ID) {
		if rel.Type == "is_a" {
			result = append(result, Classification{
				EntityID:   entity.ID,
				Category:   "category",
				Confidence: 0.6,
				Reason:     "entity is the target of is_a relationships",
			})
			break
		}
	}

	return result
}

// suggestSimilar proposes edges between the entity and same-type entities
// whose property shape strongly overlaps. Suggestions are published only.
func (e *Engine) suggestSimilar(entity *graphstore.Entity, snap graphstore.Snapshot) []SuggestedRelationship {
	if len(entity.Properties) < similarityMinSharedKeys {
		return nil
	}

	var suggestions []SuggestedRelationship
	for _, other := range snap.EntitiesByType(entity.Type) {
		if other.ID == entity.ID {
			continue
		}
		shared, union := keyOverlap(entity.Properties, other.Properties)
		if shared < similarityMinSharedKeys || union == 0 {
			continue
		}
		ratio := float64(shared) / float64(union)
		if ratio < similarityMinRatio {
			continue
		}
		if snap.HasRelationship(entity.ID, other.ID, "similar_to") ||
			snap.HasRelationship(other.ID, entity.ID, "similar_to") {
			continue
		}
		suggestions = append(suggestions, SuggestedRelationship{
			SourceID:   entity.ID,
			TargetID:   other.ID,
			Type:       "similar_to",
			Confidence: ratio,
			Reason:     fmt.Sprintf("shares %d of %d property keys with %s", shared, union, other.ID),
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		return suggestions[i].TargetID < suggestions[j].TargetID
	})
	return suggestions
}

// suggestInverse proposes the mirror edge for relationship types with a
// configured inverse.
func (e *Engine) suggestInverse(payload proposal.Payload, snap graphstore.Snapshot) []SuggestedRelationship {
	inverse, ok := e.rules.Inverse[payload.RelType]
	if !ok || payload.SourceID == payload.TargetID {
		return nil
	}
	if snap.HasRelationship(payload.TargetID, payload.SourceID, inverse) {
		return nil
	}
	return []SuggestedRelationship{{
		SourceID:   payload.TargetID,
		TargetID:   payload.SourceID,
		Type:       inverse,
		Confidence: 0.8,
		Reason:     fmt.Sprintf("standard inverse of %q relationship", payload.RelType),
	}}
}

// transitiveClosure materializes derived edges for transitive relationship
// types, bounded by the configured depth so closure cannot grow the graph
// without limit. For a new edge s->t it derives s->descendant(t) and
// ancestor(s)->t, skipping edges already present.
func (e *Engine) transitiveClosure(payload proposal.Payload, snap graphstore.Snapshot) []ClosureEdge {
	rule, ok := e.rules.Transitive[payload.RelType]
	if !ok || payload.SourceID == payload.TargetID {
		return nil
	}

	relType := payload.RelType
	var edges []ClosureEdge

	add := func(src, dst string, depth int) {
		if src == dst {
			return
		}
		if snap.HasRelationship(src, dst, relType) {
			return
		}
		edges = append(edges, ClosureEdge{SourceID: src, TargetID: dst, Type: relType, Depth: depth})
	}

	for dst, depth := range walk(snap, payload.TargetID, relType, rule.MaxDepth-1, forward) {
		add(payload.SourceID, dst, depth+1)
	}
	for src, depth := range walk(snap, payload.SourceID, relType, rule.MaxDepth-1, backward) {
		add(src, payload.TargetID, depth+1)
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].SourceID != edges[j].SourceID {
			return edges[i].SourceID < edges[j].SourceID
		}
		return edges[i].TargetID < edges[j].TargetID
	})
	return edges
}

type direction int

const (
	forward direction = iota
	backward
)

// walk returns every node reachable from start along relType within
// maxHops, mapped to its distance from start.
func walk(snap graphstore.Snapshot, start, relType string, maxHops int, dir direction) map[string]int {
	visited := map[string]int{}
	if maxHops <= 0 {
		return visited
	}

	frontier := []string{start}
	for depth := 1; depth <= maxHops && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			var rels []*graphstore.Relationship
			if dir == forward {
				rels = snap.RelationshipsFrom(id)
			} else {
				rels = snap.RelationshipsTo(id)
			}
			for _, rel := range rels {
				if rel.Type != relType {
					continue
				}
				neighbor := rel.TargetID
				if dir == backward {
					neighbor = rel.SourceID
				}
				if neighbor == start {
					continue
				}
				if _, seen := visited[neighbor]; seen {
					continue
				}
				visited[neighbor] = depth
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return visited
}

func keyOverlap(a, b map[string]any) (shared, union int) {
	seen := make(map[string]bool, len(a)+len(b))
	for k := range a {
		seen[k] = true
		if _, ok := b[k]; ok {
			shared++
		}
	}
	for k := range b {
		seen[k] = true
	}
	return shared, len(seen)
}
