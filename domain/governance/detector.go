package governance

import (
	"fmt"

	"github.com/concord-kg/concord/domain/graphstore"
	"github.com/concord-kg/concord/domain/proposal"
	"github.com/concord-kg/concord/domain/rules"
)

// Detector scans a proposal against a consistent snapshot plus the set of
// proposals currently past validation but not yet committed, so conflicts
// between concurrently in-flight proposals are caught, not just conflicts
// against committed state.
type Detector struct {
	rules *rules.Set
}

// NewDetector creates a conflict detector.
func NewDetector(set *rules.Set) *Detector {
	return &Detector{rules: set}
}

// Detect returns every conflict the proposal raises. Checks run in order:
// duplicate entity, circular and duplicate relationship, orphan
// relationship, contradictory cardinality, stale version.
func (d *Detector) Detect(p *proposal.Proposal, snap graphstore.Snapshot, inFlight []*proposal.Proposal) []Conflict {
	var conflicts []Conflict

	switch p.Operation {
	case proposal.OpCreateEntity:
		conflicts = append(conflicts, d.detectDuplicateEntity(p, snap, inFlight)...)
	case proposal.OpCreateRelationship:
		conflicts = append(conflicts, d.detectRelationshipConflicts(p, snap, inFlight)...)
	case proposal.OpUpdateEntity, proposal.OpDeleteEntity:
		conflicts = append(conflicts, d.detectStaleVersion(p, snap)...)
	}

	return conflicts
}

func (d *Detector) detectDuplicateEntity(p *proposal.Proposal, snap graphstore.Snapshot, inFlight []*proposal.Proposal) []Conflict {
	var conflicts []Conflict

	// Creating an id that already exists is a duplicate regardless of
	// natural keys.
	if _, exists := snap.Entity(p.Payload.EntityID); exists {
		conflicts = append(conflicts, newConflict(ConflictDuplicateEntity,
			[]string{p.Payload.EntityID},
			fmt.Sprintf("entity %q already exists", p.Payload.EntityID)))
		return conflicts
	}

	key := d.rules.NaturalKey(p.Payload.EntityType, p.Payload.Properties)
	if key == "" {
		return conflicts
	}

	for _, existing := range snap.EntitiesByType(p.Payload.EntityType) {
		if existing.ID == p.Payload.EntityID {
			continue
		}
		if d.rules.NaturalKey(existing.Type, existing.Properties) == key {
			conflicts = append(conflicts, newConflict(ConflictDuplicateEntity,
				[]string{existing.ID, p.Payload.EntityID},
				fmt.Sprintf("entity %q shares natural key %q", existing.ID, key)))
			return conflicts
		}
	}

	for _, other := range inFlight {
		if other.ID == p.ID || other.Operation != proposal.OpCreateEntity {
			continue
		}
		if other.Payload.EntityID == p.Payload.EntityID {
			continue
		}
		if d.rules.NaturalKey(other.Payload.EntityType, other.Payload.Properties) == key {
			conflicts = append(conflicts, newConflict(ConflictDuplicateEntity,
				[]string{other.Payload.EntityID, p.Payload.EntityID},
				fmt.Sprintf("in-flight proposal %s creates the same natural key %q", other.ID, key)))
			return conflicts
		}
	}

	return conflicts
}

func (d *Detector) detectRelationshipConflicts(p *proposal.Proposal, snap graphstore.Snapshot, inFlight []*proposal.Proposal) []Conflict {
	payload := p.Payload
	var conflicts []Conflict

	if payload.SourceID == payload.TargetID {
		conflicts = append(conflicts, newConflict(ConflictCircularRelationship,
			[]string{payload.SourceID},
			fmt.Sprintf("relationship %q loops %q onto itself", payload.RelType, payload.SourceID)))
	}

	if snap.HasRelationship(payload.SourceID, payload.TargetID, payload.RelType) {
		conflicts = append(conflicts, newConflict(ConflictDuplicateRelationship,
			[]string{payload.SourceID, payload.TargetID},
			fmt.Sprintf("relationship %s-[%s]->%s already exists", payload.SourceID, payload.RelType, payload.TargetID)))
	}

	conflicts = append(conflicts, d.detectOrphans(p, snap, inFlight)...)
	conflicts = append(conflicts, d.detectCardinality(p, snap, inFlight)...)
	return conflicts
}

// detectOrphans flags endpoints that will not exist after all currently
// committing proposals are applied: missing from the snapshot and not
// created in-flight, or present but deleted in-flight.
func (d *Detector) detectOrphans(p *proposal.Proposal, snap graphstore.Snapshot, inFlight []*proposal.Proposal) []Conflict {
	createdInFlight := make(map[string]bool)
	deletedInFlight := make(map[string]bool)
	for _, other := range inFlight {
		if other.ID == p.ID {
			continue
		}
		switch other.Operation {
		case proposal.OpCreateEntity:
			createdInFlight[other.Payload.EntityID] = true
		case proposal.OpDeleteEntity:
			deletedInFlight[other.Payload.EntityID] = true
		}
	}

	var conflicts []Conflict
	for _, endpoint := range []string{p.Payload.SourceID, p.Payload.TargetID} {
		_, exists := snap.Entity(endpoint)
		switch {
		case !exists && !createdInFlight[endpoint]:
			conflicts = append(conflicts, newConflict(ConflictOrphanRelationship,
				[]string{endpoint},
				fmt.Sprintf("endpoint %q does not exist", endpoint)))
		case exists && deletedInFlight[endpoint]:
			conflicts = append(conflicts, newConflict(ConflictOrphanRelationship,
				[]string{endpoint},
				fmt.Sprintf("endpoint %q is being deleted by an in-flight proposal", endpoint)))
		}
	}
	return conflicts
}

// ConflictingEdges returns the committed edges that contradict the
// proposal's declared cardinality. The pipeline uses it when a
// manually approved edge replaces the edges it contradicts.
func (d *Detector) ConflictingEdges(p *proposal.Proposal, snap graphstore.Snapshot) []*graphstore.Relationship {
	conflicting := d.cardinalityPredicate(p.Payload)
	if conflicting == nil {
		return nil
	}
	var edges []*graphstore.Relationship
	for _, r := range snap.Relationships() {
		if conflicting(r) {
			edges = append(edges, r)
		}
	}
	return edges
}

// detectCardinality enforces declared multiplicities: a 1:1 type allows at
// most one edge touching either endpoint; a 1:N type allows at most one
// incoming edge per target.
func (d *Detector) detectCardinality(p *proposal.Proposal, snap graphstore.Snapshot, inFlight []*proposal.Proposal) []Conflict {
	payload := p.Payload
	card, declared := d.rules.Cardinality[payload.RelType]
	if !declared {
		return nil
	}

	conflicting := d.cardinalityPredicate(payload)

	var conflicts []Conflict
	report := func(existing string) {
		conflicts = append(conflicts, newConflict(ConflictContradictoryCardinality,
			[]string{payload.SourceID, payload.TargetID},
			fmt.Sprintf("relationship type %q is declared %s and conflicts with %s", payload.RelType, card, existing)))
	}

	for _, r := range snap.Relationships() {
		if conflicting(r) {
			report(fmt.Sprintf("edge %s-[%s]->%s", r.SourceID, r.Type, r.TargetID))
			return conflicts
		}
	}

	for _, other := range inFlight {
		if other.ID == p.ID || other.Operation != proposal.OpCreateRelationship {
			continue
		}
		candidate := &graphstore.Relationship{
			SourceID: other.Payload.SourceID,
			TargetID: other.Payload.TargetID,
			Type:     other.Payload.RelType,
		}
		if conflicting(candidate) {
			report(fmt.Sprintf("in-flight proposal %s", other.ID))
			return conflicts
		}
	}

	return conflicts
}

// cardinalityPredicate returns a predicate matching edges that contradict
// the payload's edge under its declared cardinality, or nil when the
// relationship type has no declared cardinality.
func (d *Detector) cardinalityPredicate(payload proposal.Payload) func(*graphstore.Relationship) bool {
	card, declared := d.rules.Cardinality[payload.RelType]
	if !declared {
		return nil
	}
	return func(r *graphstore.Relationship) bool {
		if r.Type != payload.RelType {
			return false
		}
		if r.SourceID == payload.SourceID && r.TargetID == payload.TargetID {
			// The identical edge is a duplicate, not a contradiction.
			return false
		}
		switch card {
		case rules.CardinalityOneToOne:
			return r.SourceID == payload.SourceID || r.TargetID == payload.TargetID ||
				r.SourceID == payload.TargetID || r.TargetID == payload.SourceID
		case rules.CardinalityOneToMany:
			return r.TargetID == payload.TargetID
		}
		return false
	}
}

func (d *Detector) detectStaleVersion(p *proposal.Proposal, snap graphstore.Snapshot) []Conflict {
	if p.Payload.BaseVersion <= 0 {
		return nil
	}
	current, ok := snap.Entity(p.Payload.EntityID)
	if !ok {
		return nil
	}
	if p.Payload.BaseVersion < current.Version {
		return []Conflict{newConflict(ConflictStaleVersion,
			[]string{p.Payload.EntityID},
			fmt.Sprintf("base version %d is older than current version %d", p.Payload.BaseVersion, current.Version))}
	}
	return nil
}
