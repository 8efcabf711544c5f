package balance

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("balance.service",
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)

type lifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Watcher   *Watcher
}

func registerLifecycle(p lifecycleParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Watcher.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Watcher.Stop()
			return nil
		},
	})
}
