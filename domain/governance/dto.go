package governance

import (
	"github.com/google/uuid"

	"github.com/concord-kg/concord/domain/proposal"
	"github.com/concord-kg/concord/pkg/apperror"
)

// ProposalRequest is the transport shape of one mutation proposal.
type ProposalRequest struct {
	Operation     string           `json:"operation"`
	SubmitterRole string           `json:"submitter_role"`
	CorrelationID string           `json:"correlation_id,omitempty"`
	Payload       proposal.Payload `json:"payload"`
}

// ToProposal builds the domain proposal. Shape checking happens in the
// pipeline, not here; the DTO only carries fields.
func (r ProposalRequest) ToProposal() *proposal.Proposal {
	return proposal.New(
		proposal.Operation(r.Operation),
		r.Payload,
		proposal.Role(r.SubmitterRole),
		r.CorrelationID,
	)
}

// BatchRequest submits several proposals sharing one correlation id. Each
// proposal still flows through the pipeline independently.
type BatchRequest struct {
	CorrelationID string            `json:"correlation_id,omitempty"`
	Proposals     []ProposalRequest `json:"proposals"`
}

// SubmitResponse acknowledges an accepted proposal.
type SubmitResponse struct {
	ProposalID    uuid.UUID      `json:"proposal_id"`
	CorrelationID string         `json:"correlation_id"`
	State         proposal.State `json:"state"`
}

// BatchItemResponse is the per-proposal outcome of a batch submission.
type BatchItemResponse struct {
	ProposalID    uuid.UUID      `json:"proposal_id"`
	State         proposal.State `json:"state,omitempty"`
	ErrorCode     string         `json:"error_code,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
}

// BatchResponse acknowledges a batch submission.
type BatchResponse struct {
	CorrelationID string              `json:"correlation_id"`
	Accepted      int                 `json:"accepted"`
	Rejected      int                 `json:"rejected"`
	Items         []BatchItemResponse `json:"items"`
}

// StatusResponse reports where a proposal is in its lifecycle.
type StatusResponse struct {
	ProposalID uuid.UUID      `json:"proposal_id"`
	State      proposal.State `json:"state"`
}

// StatsResponse summarizes pipeline health for operators.
type StatsResponse struct {
	Decisions     map[string]int `json:"decisions"`
	PendingReview int            `json:"pending_review"`
	QueueDepth    int            `json:"queue_depth"`
	InFlight      int            `json:"in_flight"`
}

func submitError(err error) *BatchItemResponse {
	item := &BatchItemResponse{}
	if appErr, ok := err.(*apperror.Error); ok {
		item.ErrorCode = appErr.Code
		item.ErrorMessage = appErr.Message
	} else {
		item.ErrorCode = "internal_error"
		item.ErrorMessage = err.Error()
	}
	return item
}
