package governance

import (
	"fmt"

	"github.com/concord-kg/concord/domain/graphstore"
	"github.com/concord-kg/concord/domain/proposal"
	"github.com/concord-kg/concord/domain/rules"
)

// Resolver maps detected conflicts to deterministic resolution plans. A
// resolver run is all-or-nothing per proposal: one ManualReview plan
// escalates the whole proposal; automatic plans commit atomically with it.
type Resolver struct {
	rules *rules.Set
}

// NewResolver creates a conflict resolver.
func NewResolver(set *rules.Set) *Resolver {
	return &Resolver{rules: set}
}

// Resolve produces one plan per conflict.
func (r *Resolver) Resolve(p *proposal.Proposal, conflicts []Conflict, snap graphstore.Snapshot) []ResolutionPlan {
	plans := make([]ResolutionPlan, 0, len(conflicts))
	for _, c := range conflicts {
		plans = append(plans, r.plan(p, c, snap))
	}
	return plans
}

// RequiresManualReview reports whether any plan parks the proposal.
func RequiresManualReview(plans []ResolutionPlan) bool {
	for _, plan := range plans {
		if plan.Strategy == StrategyManualReview {
			return true
		}
	}
	return false
}

// Rejections returns the plans that reject the incoming proposal.
func Rejections(plans []ResolutionPlan) []ResolutionPlan {
	var rejecting []ResolutionPlan
	for _, plan := range plans {
		if plan.Strategy == StrategyRejectIncoming {
			rejecting = append(rejecting, plan)
		}
	}
	return rejecting
}

// retryableRejection reports whether any rejecting plan depends on
// contested state that a later snapshot could clear. Orphan, circular,
// and duplicate-relationship rejections are properties of the proposal
// itself and never change on retry.
func retryableRejection(rejecting []ResolutionPlan) bool {
	for _, plan := range rejecting {
		if plan.Kind == ConflictStaleVersion || plan.Kind == ConflictDuplicateEntity {
			return true
		}
	}
	return false
}

func (r *Resolver) plan(p *proposal.Proposal, c Conflict, snap graphstore.Snapshot) ResolutionPlan {
	plan := ResolutionPlan{ConflictID: c.ID, Kind: c.Kind, Automatic: true}

	switch c.Kind {
	case ConflictDuplicateEntity:
		keep := c.SubjectIDs[0]
		drop := ""
		if len(c.SubjectIDs) > 1 && c.SubjectIDs[1] != keep {
			drop = c.SubjectIDs[1]
		}
		plan.Strategy = r.mergeStrategy(p, keep, snap)
		plan.KeepID = keep
		plan.DropID = drop
		plan.Outcome = fmt.Sprintf("merge into %s", keep)

	case ConflictStaleVersion:
		if r.monotonicMergeSafe(p, snap) {
			plan.Strategy = StrategyMerge
			plan.KeepID = p.Payload.EntityID
			plan.Outcome = "merge: update adds only new properties"
		} else {
			plan.Strategy = StrategyRejectIncoming
			plan.Outcome = "resubmit against the current version"
		}

	case ConflictOrphanRelationship:
		plan.Strategy = StrategyRejectIncoming
		plan.Outcome = "endpoint missing"

	case ConflictContradictoryCardinality:
		if p.ManuallyApproved {
			plan.Strategy = StrategyPreferNewest
			plan.Outcome = "incoming edge replaces the conflicting edge"
		} else {
			plan.Strategy = StrategyManualReview
			plan.Automatic = false
			plan.Outcome = "no safe automatic choice"
		}

	case ConflictCircularRelationship:
		plan.Strategy = StrategyRejectIncoming
		plan.Outcome = "self-referential relationship"

	case ConflictDuplicateRelationship:
		plan.Strategy = StrategyRejectIncoming
		plan.Outcome = "already_exists"

	default:
		plan.Strategy = StrategyManualReview
		plan.Automatic = false
		plan.Outcome = "unknown conflict kind"
	}

	return plan
}

// mergeStrategy picks how a duplicate entity merge settles property
// conflicts: when the existing and incoming sources carry different
// configured trust ranks, the higher-trust side wins wholesale; otherwise
// properties union with the newest value per key.
func (r *Resolver) mergeStrategy(p *proposal.Proposal, keepID string, snap graphstore.Snapshot) Strategy {
	existing, ok := snap.Entity(keepID)
	if !ok {
		return StrategyMerge
	}
	existingRank := r.rules.TrustRank(existing.Source)
	incomingRank := r.rules.TrustRank(p.Payload.Source)
	if existingRank != incomingRank {
		return StrategyPreferHighestTrust
	}
	return StrategyMerge
}

// monotonicMergeSafe reports whether a stale update only adds property
// keys the current entity does not have, which merges safely under any
// interleaving.
func (r *Resolver) monotonicMergeSafe(p *proposal.Proposal, snap graphstore.Snapshot) bool {
	if p.Operation != proposal.OpUpdateEntity || len(p.Payload.Properties) == 0 {
		return false
	}
	current, ok := snap.Entity(p.Payload.EntityID)
	if !ok {
		return false
	}
	for key := range p.Payload.Properties {
		if _, taken := current.Properties[key]; taken {
			return false
		}
	}
	return true
}

// mergedProperties computes the surviving property set for a duplicate
// merge under the chosen strategy.
func mergedProperties(strategy Strategy, existing *graphstore.Entity, incoming proposal.Payload, set *rules.Set) map[string]any {
	merged := make(map[string]any, len(existing.Properties)+len(incoming.Properties))
	for k, v := range existing.Properties {
		merged[k] = v
	}

	incomingWins := true
	if strategy == StrategyPreferHighestTrust {
		incomingWins = set.TrustRank(incoming.Source) > set.TrustRank(existing.Source)
	}

	for k, v := range incoming.Properties {
		if _, taken := merged[k]; taken && !incomingWins {
			continue
		}
		merged[k] = v
	}
	return merged
}
