package scheduler

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/concord-kg/concord/domain/audit"
	"github.com/concord-kg/concord/domain/review"
	appconfig "github.com/concord-kg/concord/internal/config"
)

// Module provides scheduled task functionality.
var Module = fx.Module("scheduler",
	fx.Provide(
		NewConfig,
		NewScheduler,
	),
	fx.Invoke(
		RegisterTasks,
		RegisterSchedulerLifecycle,
	),
)

// TaskParams contains dependencies for creating scheduled tasks.
type TaskParams struct {
	fx.In
	Scheduler *Scheduler
	Reviews   *review.Service
	Queue     review.Queue
	AuditLog  audit.Log
	AppCfg    *appconfig.Config
	Log       *slog.Logger
	Cfg       *Config
}

// RegisterTasks registers all scheduled tasks.
func RegisterTasks(p TaskParams) error {
	if !p.Cfg.Enabled {
		p.Log.Info("scheduler disabled, skipping task registration")
		return nil
	}

	expiryTask := NewReviewExpiryTask(p.Reviews, p.AppCfg.Governance.ReviewMaxAge, p.Log)
	if err := addScheduledTask(p.Scheduler, p.Log, "review_expiry",
		p.Cfg.ReviewExpirySchedule, p.Cfg.ReviewExpiryInterval, expiryTask.Run); err != nil {
		p.Log.Error("failed to register review expiry task",
			slog.String("error", err.Error()))
	}

	statsTask := NewStatsLogTask(p.AuditLog, p.Queue, p.Log)
	if err := addScheduledTask(p.Scheduler, p.Log, "stats_log",
		p.Cfg.StatsLogSchedule, p.Cfg.StatsLogInterval, statsTask.Run); err != nil {
		p.Log.Error("failed to register stats log task",
			slog.String("error", err.Error()))
	}

	p.Log.Info("registered scheduled tasks",
		slog.Any("tasks", p.Scheduler.ListTasks()))

	return nil
}

// addScheduledTask registers a task using the cron schedule when one is
// set, falling back to the interval otherwise.
func addScheduledTask(s *Scheduler, log *slog.Logger, name, schedule string, interval time.Duration, task TaskFunc) error {
	if schedule != "" {
		return s.AddCronTask(name, schedule, task)
	}
	return s.AddIntervalTask(name, interval, task)
}

// RegisterSchedulerLifecycle registers the scheduler with fx lifecycle.
func RegisterSchedulerLifecycle(lc fx.Lifecycle, scheduler *Scheduler, cfg *Config) {
	if !cfg.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}
