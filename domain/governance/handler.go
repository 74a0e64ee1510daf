package governance

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/concord-kg/concord/domain/audit"
	"github.com/concord-kg/concord/domain/proposal"
	"github.com/concord-kg/concord/domain/review"
	"github.com/concord-kg/concord/internal/config"
	"github.com/concord-kg/concord/pkg/apperror"
)

// Handler exposes proposal submission and pipeline introspection over HTTP.
// Transport is a boundary adapter; every decision lives in the pipeline.
type Handler struct {
	pipeline *Pipeline
	auditLog audit.Log
	reviews  review.Queue
	inFlight *InFlightRegistry
	limiter  *rate.Limiter
}

// NewHandler creates the governance HTTP handler.
func NewHandler(pl *Pipeline, auditLog audit.Log, reviews review.Queue, registry *InFlightRegistry, cfg *config.Config) *Handler {
	return &Handler{
		pipeline: pl,
		auditLog: auditLog,
		reviews:  reviews,
		inFlight: registry,
		limiter:  rate.NewLimiter(rate.Limit(cfg.Governance.SubmitRate), cfg.Governance.SubmitBurst),
	}
}

// Submit accepts one proposal.
// POST /api/proposals
func (h *Handler) Submit(c echo.Context) error {
	if !h.limiter.Allow() {
		return apperror.New(http.StatusTooManyRequests, "rate_limited", "Submission rate limit exceeded")
	}

	var req ProposalRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	p := req.ToProposal()
	if err := h.pipeline.Submit(c.Request().Context(), p); err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, SubmitResponse{
		ProposalID:    p.ID,
		CorrelationID: p.CorrelationID,
		State:         proposal.StateSubmitted,
	})
}

// SubmitBatch accepts a list of proposals sharing one correlation id.
// POST /api/proposals/batch
func (h *Handler) SubmitBatch(c echo.Context) error {
	if !h.limiter.Allow() {
		return apperror.New(http.StatusTooManyRequests, "rate_limited", "Submission rate limit exceeded")
	}

	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	if len(req.Proposals) == 0 {
		return apperror.ErrBadRequest.WithMessage("proposals list is empty")
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	resp := BatchResponse{CorrelationID: correlationID}
	for _, pr := range req.Proposals {
		pr.CorrelationID = correlationID
		p := pr.ToProposal()

		item := BatchItemResponse{ProposalID: p.ID}
		if err := h.pipeline.Submit(c.Request().Context(), p); err != nil {
			failed := submitError(err)
			item.ErrorCode = failed.ErrorCode
			item.ErrorMessage = failed.ErrorMessage
			resp.Rejected++
		} else {
			item.State = proposal.StateSubmitted
			resp.Accepted++
		}
		resp.Items = append(resp.Items, item)
	}

	return c.JSON(http.StatusAccepted, resp)
}

// Status reports a proposal's lifecycle state, falling back to the decision
// log for proposals this process no longer tracks.
// GET /api/proposals/:id
func (h *Handler) Status(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid proposal id")
	}

	if state, ok := h.pipeline.State(id); ok {
		return c.JSON(http.StatusOK, StatusResponse{ProposalID: id, State: state})
	}

	records, err := h.auditLog.ByProposal(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperror.NewNotFound("proposal", id.String())
	}
	return c.JSON(http.StatusOK, StatusResponse{
		ProposalID: id,
		State:      records[len(records)-1].Stage,
	})
}

// Withdraw cancels a proposal still waiting for validation.
// DELETE /api/proposals/:id
func (h *Handler) Withdraw(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid proposal id")
	}
	if err := h.pipeline.Withdraw(id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"proposal_id": id, "withdrawn": true})
}

// Stats summarizes pipeline state for operators.
// GET /api/governance/stats
func (h *Handler) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	counts, err := h.auditLog.DecisionCounts(ctx)
	if err != nil {
		return err
	}
	decisions := make(map[string]int, len(counts))
	for decision, n := range counts {
		decisions[string(decision)] = n
	}

	pending, err := h.reviews.PendingCount(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, StatsResponse{
		Decisions:     decisions,
		PendingReview: pending,
		QueueDepth:    h.pipeline.QueueDepth(),
		InFlight:      h.inFlight.Count(),
	})
}
