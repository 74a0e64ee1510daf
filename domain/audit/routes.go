package audit

import "github.com/labstack/echo/v4"

// RegisterRoutes registers decision-log routes.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api/audit")
	g.GET("/proposals/:id", h.ByProposal)
	g.GET("/correlations/:id", h.ByCorrelation)
	g.GET("/recent", h.Recent)
}
