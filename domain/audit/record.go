// Package audit is the append-only decision log. Every proposal state
// transition appends exactly one record, and every proposal ends with
// exactly one terminal record carrying its decision.
package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/concord-kg/concord/domain/proposal"
)

// Decision is the terminal outcome of a proposal.
type Decision string

const (
	DecisionCommitted Decision = "committed"
	DecisionRejected  Decision = "rejected"
	DecisionEscalated Decision = "escalated"
)

// Record is one entry in the decision log. Stage is the proposal state
// being entered; Decision is set only on terminal records. Detail carries
// stage-specific context: violations and warnings for validation records,
// conflicts and resolutions for conflict records, the prior entity state
// for commit records, and the error code for rejections.
type Record struct {
	bun.BaseModel `bun:"table:gov.audit_records,alias:ar"`

	ID            uuid.UUID          `bun:"id,pk,type:uuid" json:"id"`
	ProposalID    uuid.UUID          `bun:"proposal_id,notnull,type:uuid" json:"proposal_id"`
	CorrelationID string             `bun:"correlation_id,notnull" json:"correlation_id"`
	Stage         proposal.State     `bun:"stage,notnull" json:"stage"`
	Decision      Decision           `bun:"decision" json:"decision,omitempty"`
	Operation     proposal.Operation `bun:"operation,notnull" json:"operation"`
	Actor         string             `bun:"actor,notnull" json:"actor"`
	Detail        map[string]any     `bun:"detail,type:jsonb" json:"detail,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// NewRecord builds a non-terminal log entry for a state transition.
func NewRecord(p *proposal.Proposal, stage proposal.State, detail map[string]any) *Record {
	return &Record{
		ID:            uuid.New(),
		ProposalID:    p.ID,
		CorrelationID: p.CorrelationID,
		Stage:         stage,
		Operation:     p.Operation,
		Actor:         string(p.SubmitterRole),
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}
}

// NewTerminalRecord builds the final log entry for a proposal.
func NewTerminalRecord(p *proposal.Proposal, decision Decision, detail map[string]any) *Record {
	r := NewRecord(p, stageFor(decision), detail)
	r.Decision = decision
	return r
}

// Terminal reports whether the record closes the proposal.
func (r *Record) Terminal() bool {
	return r.Decision != ""
}

func stageFor(d Decision) proposal.State {
	switch d {
	case DecisionCommitted:
		return proposal.StateCommitted
	case DecisionRejected:
		return proposal.StateRejected
	case DecisionEscalated:
		return proposal.StateEscalated
	default:
		return proposal.StateSubmitted
	}
}
