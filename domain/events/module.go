package events

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

// Module provides the events domain.
var Module = fx.Module("events",
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(RegisterLifecycle),
)

// RegisterRoutes registers the events routes.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api/events")
	g.GET("/stream", h.HandleStream)
	g.GET("/connections/count", h.HandleConnectionsCount)
}

// LifecycleParams are the dependencies for lifecycle hooks.
type LifecycleParams struct {
	fx.In

	LC      fx.Lifecycle
	Handler *Handler
	Log     *slog.Logger
}

// RegisterLifecycle registers lifecycle hooks for cleanup.
func RegisterLifecycle(p LifecycleParams) {
	p.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			p.Log.Info("stopping events handler")
			p.Handler.Stop()
			return nil
		},
	})
}
