package governance

import (
	"strings"

	"github.com/concord-kg/concord/domain/proposal"
	"github.com/concord-kg/concord/domain/rules"
)

// Escalation is the classifier's routing decision.
type Escalation string

const (
	// EscalationLocal commits through the store-write path directly,
	// skipping validation, conflict detection, and reasoning.
	EscalationLocal Escalation = "local"

	// EscalationGoverned routes through the full governance pipeline.
	EscalationGoverned Escalation = "governed"
)

// Classifier decides whether a proposal may commit directly or must route
// through governance. The decision is a pure function of the operation,
// the submitter role, and the payload shape; it reads no graph state.
type Classifier struct {
	rules *rules.Set
}

// NewClassifier creates an escalation classifier.
func NewClassifier(set *rules.Set) *Classifier {
	return &Classifier{rules: set}
}

// Classify routes a proposal. Local is reserved for mutations that only
// add new leaf data: entity creates inside the submitter's declared
// domain, of a type outside duplicate detection, whose payload carries no
// cross-references. Everything that deletes, touches relationships, or
// could collide with other agents' data is Governed.
func (c *Classifier) Classify(p *proposal.Proposal) Escalation {
	if p.Operation != proposal.OpCreateEntity {
		return EscalationGoverned
	}
	if p.ManuallyApproved || p.Derived {
		return EscalationGoverned
	}
	if p.Payload.Domain == "" {
		return EscalationGoverned
	}
	if c.rules.HasNaturalKey(p.Payload.EntityType) {
		return EscalationGoverned
	}
	if hasCrossReferences(p.Payload) {
		return EscalationGoverned
	}
	return EscalationLocal
}

// hasCrossReferences reports whether the payload shape points at other
// graph data: explicit endpoints or properties that look like id
// references.
func hasCrossReferences(payload proposal.Payload) bool {
	if payload.SourceID != "" || payload.TargetID != "" || payload.RelType != "" {
		return true
	}
	for key := range payload.Properties {
		lower := strings.ToLower(key)
		if lower == "source" || lower == "target" || strings.HasSuffix(lower, "_id") {
			return true
		}
	}
	return false
}
