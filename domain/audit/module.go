package audit

import "go.uber.org/fx"

// PostgresModule wires the Postgres-backed decision log.
var PostgresModule = fx.Module("audit",
	fx.Provide(
		fx.Annotate(
			NewRepository,
			fx.As(new(Log)),
		),
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)

// MemoryModule wires the in-memory decision log for standalone mode.
var MemoryModule = fx.Module("audit",
	fx.Provide(
		fx.Annotate(
			NewMemoryLog,
			fx.As(new(Log)),
		),
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
