package tracker

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("tracker.service",
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)

type lifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Tracker   *Tracker
}

func registerLifecycle(p lifecycleParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Tracker.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Tracker.Stop()
			return nil
		},
	})
}
