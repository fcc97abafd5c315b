package config

import "go.uber.org/fx"

// Module provides environment configuration and the hot-reloadable access
// policy to the rest of the application.
var Module = fx.Module("config",
	fx.Provide(
		Load,
		NewPolicyHolder,
	),
)
