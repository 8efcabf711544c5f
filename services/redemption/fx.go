package redemption

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("redemption.service",
	fx.Provide(
		NewPendingStore,
		NewClient,
	),
	fx.Invoke(resumePending),
)

type resumeParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Client    *Client
}

func resumePending(p resumeParams) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				p.Client.ResumePending(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			// Interrupted resumes keep their pending rows; the next start
			// re-drives them with the same idempotency keys.
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
