package review

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/concord-kg/concord/domain/proposal"
	"github.com/concord-kg/concord/pkg/apperror"
)

// Handler handles HTTP requests for the manual-review queue.
type Handler struct {
	svc *Service
}

// NewHandler creates a new review handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// ResolveRequest carries the reviewer identity for approve/reject.
type ResolveRequest struct {
	ReviewerRole string `json:"reviewer_role"`
}

// ListPending returns the open review queue.
// GET /api/review
func (h *Handler) ListPending(c echo.Context) error {
	items, err := h.svc.Pending(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// GetItem returns one review item.
// GET /api/review/:id
func (h *Handler) GetItem(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid review item id")
	}

	item, err := h.svc.Get(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return apperror.ErrNotFound.WithMessage("review item not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

// ByCorrelation returns all items for a correlation chain.
// GET /api/review/correlations/:id
func (h *Handler) ByCorrelation(c echo.Context) error {
	correlationID := c.Param("id")
	if correlationID == "" {
		return apperror.ErrBadRequest.WithMessage("correlation id is required")
	}

	items, err := h.svc.ByCorrelation(c.Request().Context(), correlationID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// Approve approves an item and resubmits it through the pipeline.
// POST /api/review/:id/approve
func (h *Handler) Approve(c echo.Context) error {
	id, reviewer, err := h.bindResolve(c)
	if err != nil {
		return err
	}

	item, resubmitted, err := h.svc.Approve(c.Request().Context(), id, reviewer)
	if err != nil {
		return mapResolveError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"item":                    item,
		"resubmitted_proposal_id": resubmitted.ID,
		"resubmitted_correlation": resubmitted.CorrelationID,
	})
}

// Reject closes an item without resubmission.
// POST /api/review/:id/reject
func (h *Handler) Reject(c echo.Context) error {
	id, reviewer, err := h.bindResolve(c)
	if err != nil {
		return err
	}

	item, err := h.svc.Reject(c.Request().Context(), id, reviewer)
	if err != nil {
		return mapResolveError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) bindResolve(c echo.Context) (uuid.UUID, proposal.Role, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, "", apperror.ErrBadRequest.WithMessage("invalid review item id")
	}

	var req ResolveRequest
	if err := c.Bind(&req); err != nil {
		return uuid.Nil, "", apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	reviewer := proposal.Role(req.ReviewerRole)
	if !reviewer.Known() {
		return uuid.Nil, "", apperror.ErrBadRequest.WithMessage("unknown reviewer_role")
	}
	return id, reviewer, nil
}

func mapResolveError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperror.ErrNotFound.WithMessage("review item not found")
	case errors.Is(err, ErrAlreadyResolved):
		return apperror.ErrBadRequest.WithMessage("review item already resolved")
	default:
		return err
	}
}
