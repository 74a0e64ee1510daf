package review

import "go.uber.org/fx"

// PostgresModule wires the Postgres-backed review queue.
var PostgresModule = fx.Module("review",
	fx.Provide(
		fx.Annotate(
			NewRepository,
			fx.As(new(Queue)),
		),
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)

// MemoryModule wires the in-memory review queue for standalone mode.
var MemoryModule = fx.Module("review",
	fx.Provide(
		fx.Annotate(
			NewMemoryQueue,
			fx.As(new(Queue)),
		),
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
