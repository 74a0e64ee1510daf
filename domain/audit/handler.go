package audit

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/concord-kg/concord/pkg/apperror"
)

// Handler handles HTTP requests for the decision log.
type Handler struct {
	log Log
}

// NewHandler creates a new audit handler.
func NewHandler(log Log) *Handler {
	return &Handler{log: log}
}

// ByProposal returns the full decision trail of one proposal.
// GET /api/audit/proposals/:id
func (h *Handler) ByProposal(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid proposal id")
	}

	records, err := h.log.ByProposal(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"records": records})
}

// ByCorrelation returns every record sharing a correlation id, including
// derived proposals spawned by the reasoning engine.
// GET /api/audit/correlations/:id
func (h *Handler) ByCorrelation(c echo.Context) error {
	correlationID := c.Param("id")
	if correlationID == "" {
		return apperror.ErrBadRequest.WithMessage("correlation id is required")
	}

	records, err := h.log.ByCorrelation(c.Request().Context(), correlationID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"records": records})
}

// Recent returns the newest records.
// GET /api/audit/recent?limit=50
func (h *Handler) Recent(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			return apperror.ErrBadRequest.WithMessage("limit must be between 1 and 500")
		}
		limit = parsed
	}

	records, err := h.log.Recent(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"records": records})
}
