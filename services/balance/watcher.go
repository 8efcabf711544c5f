package balance

import (
	"context"
	"slices"
	"sync"
	"time"

	"tablerewards-client/pkg/config"
	"tablerewards-client/pkg/errutil"
	"tablerewards-client/pkg/metrics"
	"tablerewards-client/services/feed"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Watcher follows the user's points balance from its own push feed. The
// balance is display-only state here: redemption flows never write to it,
// they wait for the server-driven update like everyone else.
//
// Until the first delivery arrives the balance is unknown, and unknown is
// surfaced as unknown. Absence of a delivery is never rendered as zero.
type Watcher struct {
	source feed.BalanceSource
	userID string

	resubInitial time.Duration
	resubMax     time.Duration

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	known     bool
	balance   int64
	listeners []func(int64)
}

type Params struct {
	fx.In

	Cfg    *config.Config
	Source feed.BalanceSource
}

func New(p Params) *Watcher {
	return &Watcher{
		source:       p.Source,
		userID:       p.Cfg.User.ID,
		resubInitial: p.Cfg.Feed.ResubscribeInitial,
		resubMax:     p.Cfg.Feed.ResubscribeMax,
	}
}

// Current returns the latest delivered balance. ok is false until the feed
// has delivered at least once.
func (w *Watcher) Current() (balance int64, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance, w.known
}

// OnChange registers a listener invoked on every delivered balance change.
func (w *Watcher) OnChange(fn func(int64)) {
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// Start subscribes the balance feed and follows it until Stop. Starting a
// running watcher is a no-op.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stop, done := w.stopCh, w.doneCh
	w.mu.Unlock()

	go w.run(stop, done)
}

// Stop ends the subscription. The last known balance stays readable, and a
// later Start picks the feed back up. Stopping twice is a no-op.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stop, done := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stop)
	<-done
}

func (w *Watcher) run(stop, done chan struct{}) {
	defer close(done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	for {
		sub, err := w.subscribeWithBackoff(ctx, stop)
		if err != nil {
			return
		}

		w.consume(sub, stop)
		_ = sub.Close()

		select {
		case <-stop:
			return
		default:
		}
	}
}

func (w *Watcher) subscribeWithBackoff(ctx context.Context, stop <-chan struct{}) (feed.BalanceSubscription, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.resubInitial
	bo.MaxInterval = w.resubMax
	bo.MaxElapsedTime = 0

	for {
		sub, err := w.source.SubscribeBalance(ctx, w.userID)
		if err == nil {
			return sub, nil
		}

		metrics.FeedResubscribes.Inc()
		wait := bo.NextBackOff()
		zap.L().Warn("balance feed subscribe failed, backing off",
			zap.String("user_id", w.userID),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)

		select {
		case <-time.After(wait):
		case <-stop:
			return nil, errutil.Subscription("balance watcher stopped", errutil.WithErr(err))
		}
	}
}

func (w *Watcher) consume(sub feed.BalanceSubscription, stop <-chan struct{}) {
	for {
		select {
		case v, ok := <-sub.Updates():
			if !ok {
				zap.L().Warn("balance subscription ended", zap.Error(sub.Err()))
				return
			}
			w.apply(v)
		case <-stop:
			return
		}
	}
}

func (w *Watcher) apply(v int64) {
	w.mu.Lock()
	changed := !w.known || w.balance != v
	w.known = true
	w.balance = v
	listeners := slices.Clone(w.listeners)
	w.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range listeners {
		fn(v)
	}
}
