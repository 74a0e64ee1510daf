// Package main provides the entry point for the Concord governance server
//
// @title Concord API
// @version 0.3.0
// @description Mutation governance engine for a shared knowledge graph
// @host localhost:3004
// @BasePath /
// @schemes http https
package main

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/concord-kg/concord/domain/audit"
	"github.com/concord-kg/concord/domain/events"
	"github.com/concord-kg/concord/domain/governance"
	"github.com/concord-kg/concord/domain/graphstore"
	"github.com/concord-kg/concord/domain/health"
	"github.com/concord-kg/concord/domain/reasoning"
	"github.com/concord-kg/concord/domain/review"
	"github.com/concord-kg/concord/domain/scheduler"
	"github.com/concord-kg/concord/internal/config"
	"github.com/concord-kg/concord/internal/database"
	"github.com/concord-kg/concord/internal/migrate"
	"github.com/concord-kg/concord/internal/server"
	"github.com/concord-kg/concord/pkg/logger"
)

func main() {
	// Load .env files if present (for local development)
	// Load() won't overwrite existing vars, Overload() will
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		server.Module,

		// Storage backends: standalone mode keeps everything in memory,
		// otherwise Postgres with embedded migrations.
		storageModules(),

		// Domain modules
		events.Module,
		reasoning.Module,
		governance.Module,
		health.Module,

		// Scheduler module (cron-based scheduled tasks)
		scheduler.Module,
	).Run()
}

// storageModules selects the persistence stack. The choice has to happen
// before the fx graph is built, so STANDALONE_MODE is read directly here
// rather than through config.Config.
func storageModules() fx.Option {
	if standalone() {
		return fx.Options(
			graphstore.MemoryModule,
			audit.MemoryModule,
			review.MemoryModule,
		)
	}
	return fx.Options(
		database.Module,
		migrate.Module,
		graphstore.PostgresModule,
		audit.PostgresModule,
		review.PostgresModule,
	)
}

func standalone() bool {
	v, err := strconv.ParseBool(os.Getenv("STANDALONE_MODE"))
	return err == nil && v
}
