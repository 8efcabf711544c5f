package countdown

import (
	"tablerewards-client/pkg/clock"

	"go.uber.org/fx"
)

var Module = fx.Module("countdown.engine",
	fx.Provide(
		clock.System,
		NewEngine,
	),
)
