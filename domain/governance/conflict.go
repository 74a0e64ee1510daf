// Package governance is the mutation governance engine: escalation
// classification, validation, conflict detection and resolution, commit
// serialization, and the command/event pipeline tying them together.
package governance

import (
	"time"

	"github.com/google/uuid"

	"github.com/concord-kg/concord/domain/events"
)

// ConflictKind identifies what kind of inconsistency was detected.
type ConflictKind string

const (
	ConflictDuplicateEntity          ConflictKind = "duplicate_entity"
	ConflictOrphanRelationship       ConflictKind = "orphan_relationship"
	ConflictContradictoryCardinality ConflictKind = "contradictory_cardinality"
	ConflictStaleVersion             ConflictKind = "stale_version"
	ConflictCircularRelationship     ConflictKind = "circular_relationship"
	ConflictDuplicateRelationship    ConflictKind = "duplicate_relationship"
)

// ConflictStatus tracks how a conflict was settled.
type ConflictStatus string

const (
	ConflictOpen             ConflictStatus = "open"
	ConflictAutoResolved     ConflictStatus = "auto_resolved"
	ConflictEscalated        ConflictStatus = "escalated"
	ConflictManuallyResolved ConflictStatus = "manually_resolved"
)

// Conflict is a detected inconsistency between a proposal and existing or
// in-flight graph state.
type Conflict struct {
	ID         uuid.UUID      `json:"id"`
	Kind       ConflictKind   `json:"kind"`
	SubjectIDs []string       `json:"subject_ids"`
	Detail     string         `json:"detail"`
	DetectedAt time.Time      `json:"detected_at"`
	Status     ConflictStatus `json:"status"`
}

func newConflict(kind ConflictKind, subjects []string, detail string) Conflict {
	return Conflict{
		ID:         uuid.New(),
		Kind:       kind,
		SubjectIDs: subjects,
		Detail:     detail,
		DetectedAt: time.Now().UTC(),
		Status:     ConflictOpen,
	}
}

// Strategy is a deterministic conflict-settlement policy.
type Strategy string

const (
	StrategyMerge              Strategy = "merge"
	StrategyPreferNewest       Strategy = "prefer_newest"
	StrategyPreferHighestTrust Strategy = "prefer_highest_trust"
	StrategyRejectIncoming     Strategy = "reject_incoming"
	StrategyManualReview       Strategy = "manual_review"
)

// ResolutionPlan is the resolver's verdict for one conflict.
type ResolutionPlan struct {
	ConflictID uuid.UUID    `json:"conflict_id"`
	Kind       ConflictKind `json:"kind"`
	Strategy   Strategy     `json:"strategy"`
	Automatic  bool         `json:"automatic"`
	Outcome    string       `json:"outcome"`

	// KeepID/DropID are set for merge plans: the surviving entity id and
	// the id whose edges get relabeled onto it.
	KeepID string `json:"keep_id,omitempty"`
	DropID string `json:"drop_id,omitempty"`
}

// eventConflicts renders conflicts with their plans for the decision event.
func eventConflicts(conflicts []Conflict, plans []ResolutionPlan) []events.ConflictInfo {
	planByConflict := make(map[uuid.UUID]ResolutionPlan, len(plans))
	for _, plan := range plans {
		planByConflict[plan.ConflictID] = plan
	}

	infos := make([]events.ConflictInfo, 0, len(conflicts))
	for _, c := range conflicts {
		info := events.ConflictInfo{Kind: string(c.Kind)}
		if len(c.SubjectIDs) > 0 {
			info.EntityID = c.SubjectIDs[0]
		}
		if plan, ok := planByConflict[c.ID]; ok {
			info.Strategy = string(plan.Strategy)
			info.Outcome = plan.Outcome
		}
		infos = append(infos, info)
	}
	return infos
}

// auditConflicts renders conflicts with their plans for audit detail and
// review items.
func auditConflicts(conflicts []Conflict, plans []ResolutionPlan) []map[string]any {
	planByConflict := make(map[uuid.UUID]ResolutionPlan, len(plans))
	for _, plan := range plans {
		planByConflict[plan.ConflictID] = plan
	}

	result := make([]map[string]any, 0, len(conflicts))
	for _, c := range conflicts {
		entry := map[string]any{
			"kind":        string(c.Kind),
			"subject_ids": c.SubjectIDs,
			"detail":      c.Detail,
			"status":      string(c.Status),
		}
		if plan, ok := planByConflict[c.ID]; ok {
			entry["strategy"] = string(plan.Strategy)
			entry["outcome"] = plan.Outcome
		}
		result = append(result, entry)
	}
	return result
}
