package reasoning

import "go.uber.org/fx"

// Module provides the reasoning engine.
var Module = fx.Module("reasoning",
	fx.Provide(NewEngine),
)
