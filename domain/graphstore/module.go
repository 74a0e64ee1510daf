package graphstore

import "go.uber.org/fx"

// PostgresModule wires the Postgres-backed store. Used in server mode.
var PostgresModule = fx.Module("graphstore",
	fx.Provide(
		fx.Annotate(
			NewPostgresStore,
			fx.As(new(Store)),
		),
	),
)

// MemoryModule wires the in-memory store. Used in standalone mode.
var MemoryModule = fx.Module("graphstore",
	fx.Provide(
		fx.Annotate(
			NewMemoryStore,
			fx.As(new(Store)),
		),
	),
)
