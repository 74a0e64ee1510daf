package governance

import "github.com/labstack/echo/v4"

// RegisterRoutes registers proposal submission and pipeline introspection
// routes.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	proposals := e.Group("/api/proposals")
	proposals.POST("", h.Submit)
	proposals.POST("/batch", h.SubmitBatch)
	proposals.GET("/:id", h.Status)
	proposals.DELETE("/:id", h.Withdraw)

	e.GET("/api/governance/stats", h.Stats)
}
