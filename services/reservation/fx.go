package reservation

import (
	"go.uber.org/fx"
)

var Module = fx.Module("reservation.service",
	fx.Provide(NewClient),
)
