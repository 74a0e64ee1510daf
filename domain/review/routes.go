package review

import "github.com/labstack/echo/v4"

// RegisterRoutes registers manual-review routes.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api/review")
	g.GET("", h.ListPending)
	g.GET("/correlations/:id", h.ByCorrelation)
	g.GET("/:id", h.GetItem)
	g.POST("/:id/approve", h.Approve)
	g.POST("/:id/reject", h.Reject)
}
