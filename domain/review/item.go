// Package review holds proposals escalated for manual resolution. An
// approved item re-enters the pipeline as a new proposal referencing the
// original correlation id, so the audit trail stays truthful.
package review

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/concord-kg/concord/domain/proposal"
)

// Status is the review state of a parked item.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Item is one escalated proposal awaiting a human decision.
type Item struct {
	bun.BaseModel `bun:"table:gov.review_items,alias:ri"`

	ID            uuid.UUID         `bun:"id,pk,type:uuid" json:"id"`
	ProposalID    uuid.UUID         `bun:"proposal_id,notnull,type:uuid" json:"proposal_id"`
	CorrelationID string            `bun:"correlation_id,notnull" json:"correlation_id"`
	Proposal      proposal.Proposal `bun:"proposal,type:jsonb,notnull" json:"proposal"`
	Conflicts     []map[string]any  `bun:"conflicts,type:jsonb" json:"conflicts,omitempty"`
	Status        Status            `bun:"status,notnull,default:'pending'" json:"status"`

	CreatedAt  time.Time  `bun:"created_at,notnull,default:now()" json:"created_at"`
	ResolvedAt *time.Time `bun:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy string     `bun:"resolved_by" json:"resolved_by,omitempty"`
}

// NewItem parks a proposal with the conflicts that escalated it.
func NewItem(p *proposal.Proposal, conflicts []map[string]any) *Item {
	return &Item{
		ID:            uuid.New(),
		ProposalID:    p.ID,
		CorrelationID: p.CorrelationID,
		Proposal:      *p,
		Conflicts:     conflicts,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
}
