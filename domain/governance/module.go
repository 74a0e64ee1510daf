package governance

import (
	"context"

	"go.uber.org/fx"

	"github.com/concord-kg/concord/domain/policy"
	"github.com/concord-kg/concord/domain/review"
	"github.com/concord-kg/concord/domain/rules"
	"github.com/concord-kg/concord/internal/config"
)

// Module wires the governance engine: rule and policy loading, the pipeline
// stages, the worker pool lifecycle, and the HTTP surface. The pipeline is
// also bound as the review queue's resubmission path.
var Module = fx.Module("governance",
	fx.Provide(
		NewRuleSet,
		NewRolePolicy,
		NewClassifier,
		NewValidator,
		NewDetector,
		NewResolver,
		NewTokenTable,
		NewInFlightRegistry,
		NewPipeline,
		func(pl *Pipeline) review.Submitter { return pl },
		NewHandler,
	),
	fx.Invoke(
		RegisterRoutes,
		registerLifecycle,
	),
)

// NewRuleSet loads the governance rule set from the configured path, or the
// built-in defaults when none is configured.
func NewRuleSet(cfg *config.Config) (*rules.Set, error) {
	return rules.Load(cfg.Governance.RulesPath)
}

// NewRolePolicy loads the role policy from the configured path, or the
// built-in defaults when none is configured.
func NewRolePolicy(cfg *config.Config) (*policy.Policy, error) {
	return policy.Load(cfg.Governance.PolicyPath)
}

func registerLifecycle(lc fx.Lifecycle, pl *Pipeline) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pl.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			pl.Stop()
			return nil
		},
	})
}
