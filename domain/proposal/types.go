// Package proposal defines the mutation proposal model shared by every
// stage of the governance pipeline.
package proposal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Operation identifies the kind of graph mutation a proposal requests.
type Operation string

const (
	OpCreateEntity       Operation = "create_entity"
	OpUpdateEntity       Operation = "update_entity"
	OpDeleteEntity       Operation = "delete_entity"
	OpCreateRelationship Operation = "create_relationship"
	OpDeleteRelationship Operation = "delete_relationship"
)

// Operations lists all supported operations.
var Operations = []Operation{
	OpCreateEntity,
	OpUpdateEntity,
	OpDeleteEntity,
	OpCreateRelationship,
	OpDeleteRelationship,
}

// Known reports whether op is a supported operation.
func (op Operation) Known() bool {
	switch op {
	case OpCreateEntity, OpUpdateEntity, OpDeleteEntity, OpCreateRelationship, OpDeleteRelationship:
		return true
	}
	return false
}

// OnRelationship reports whether op targets a relationship.
func (op Operation) OnRelationship() bool {
	return op == OpCreateRelationship || op == OpDeleteRelationship
}

// Deletes reports whether op removes graph data.
func (op Operation) Deletes() bool {
	return op == OpDeleteEntity || op == OpDeleteRelationship
}

// Role identifies the submitting agent's role. The set is closed; agent
// behavior differs in what each role submits, not in how roles are modeled.
type Role string

const (
	RoleDataArchitect    Role = "data_architect"
	RoleDataEngineer     Role = "data_engineer"
	RoleKnowledgeManager Role = "knowledge_manager"
	RoleSystemAdmin      Role = "system_admin"
)

// Roles lists all supported roles.
var Roles = []Role{RoleDataArchitect, RoleDataEngineer, RoleKnowledgeManager, RoleSystemAdmin}

// Known reports whether r is a supported role.
func (r Role) Known() bool {
	switch r {
	case RoleDataArchitect, RoleDataEngineer, RoleKnowledgeManager, RoleSystemAdmin:
		return true
	}
	return false
}

// State is a proposal's position in the governance lifecycle.
type State string

const (
	StateSubmitted       State = "submitted"
	StateClassified      State = "classified"
	StateValidated       State = "validated"
	StateConflictChecked State = "conflict_checked"
	StateCommitted       State = "committed"
	StateRejected        State = "rejected"
	StateEscalated       State = "escalated"
)

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRejected || s == StateEscalated
}

// Payload carries the entity or relationship fields of a proposal.
// Entity operations use EntityID/EntityType/Properties/Domain; relationship
// operations use SourceID/TargetID/RelType/Properties. BaseVersion is the
// entity version an update or delete was authored against.
type Payload struct {
	EntityID   string         `json:"entity_id,omitempty"`
	EntityType string         `json:"entity_type,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Domain     string         `json:"domain,omitempty"`
	Source     string         `json:"source,omitempty"`
	BaseVersion int           `json:"base_version,omitempty"`

	SourceID string `json:"source_id,omitempty"`
	TargetID string `json:"target_id,omitempty"`
	RelType  string `json:"rel_type,omitempty"`
}

// Proposal is a requested graph mutation awaiting a governance decision.
// Proposals are immutable once created; stages communicate through audit
// records and events, never by mutating the proposal.
type Proposal struct {
	ID            uuid.UUID `json:"id"`
	Operation     Operation `json:"operation"`
	Payload       Payload   `json:"payload"`
	SubmitterRole Role      `json:"submitter_role"`
	SubmittedAt   time.Time `json:"submitted_at"`
	CorrelationID string    `json:"correlation_id"`

	// Derived marks proposals authored by the reasoning engine. Derived
	// proposals flow through the same pipeline but do not trigger further
	// inference, which bounds inference cascades.
	Derived bool `json:"derived,omitempty"`

	// ManuallyApproved marks proposals re-entering the pipeline from an
	// approved manual review. Only the review service sets it; transport
	// DTOs cannot.
	ManuallyApproved bool `json:"-"`
}

// New creates a proposal with a fresh id and submission timestamp. An empty
// correlation id gets a generated one, so every proposal belongs to exactly
// one correlation chain.
func New(op Operation, payload Payload, role Role, correlationID string) *Proposal {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return &Proposal{
		ID:            uuid.New(),
		Operation:     op,
		Payload:       payload,
		SubmitterRole: role,
		SubmittedAt:   time.Now().UTC(),
		CorrelationID: correlationID,
	}
}

// CheckShape verifies the structural minimum for a proposal: a known
// operation, a known role, and the payload fields that operation requires.
// A failure here means the proposal is malformed and is rejected before
// classification.
func (p *Proposal) CheckShape() error {
	if p.ID == uuid.Nil {
		return fmt.Errorf("proposal id is required")
	}
	if !p.Operation.Known() {
		return fmt.Errorf("unknown operation %q", p.Operation)
	}
	if !p.SubmitterRole.Known() {
		return fmt.Errorf("unknown submitter role %q", p.SubmitterRole)
	}

	switch p.Operation {
	case OpCreateEntity:
		if p.Payload.EntityID == "" {
			return fmt.Errorf("entity_id is required for %s", p.Operation)
		}
		if p.Payload.EntityType == "" {
			return fmt.Errorf("entity_type is required for %s", p.Operation)
		}
	case OpUpdateEntity, OpDeleteEntity:
		if p.Payload.EntityID == "" {
			return fmt.Errorf("entity_id is required for %s", p.Operation)
		}
	case OpCreateRelationship, OpDeleteRelationship:
		if p.Payload.SourceID == "" || p.Payload.TargetID == "" {
			return fmt.Errorf("source_id and target_id are required for %s", p.Operation)
		}
		if p.Payload.RelType == "" {
			return fmt.Errorf("rel_type is required for %s", p.Operation)
		}
	}

	return nil
}

// TouchedIDs returns the entity ids the proposal reads or writes. The
// commit token is scoped to exactly this set.
func (p *Proposal) TouchedIDs() []string {
	switch p.Operation {
	case OpCreateEntity, OpUpdateEntity, OpDeleteEntity:
		return []string{p.Payload.EntityID}
	case OpCreateRelationship, OpDeleteRelationship:
		if p.Payload.SourceID == p.Payload.TargetID {
			return []string{p.Payload.SourceID}
		}
		return []string{p.Payload.SourceID, p.Payload.TargetID}
	}
	return nil
}
