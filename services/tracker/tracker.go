package tracker

import (
	"context"
	"slices"
	"sync"
	"time"

	"tablerewards-client/pkg/clock"
	"tablerewards-client/pkg/config"
	"tablerewards-client/pkg/errutil"
	"tablerewards-client/pkg/metrics"
	"tablerewards-client/services/countdown"
	"tablerewards-client/services/feed"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Tracker owns the locally known set of active redemptions for the signed-in
// user. All state lives on a single goroutine; feed batches, countdown
// expiries, and user actions arrive as events on one channel, so there is no
// cross-thread mutation of the active set. The UI and the countdown engine
// read projections and request transitions; they never mutate directly.
type Tracker struct {
	source feed.Source
	engine *countdown.Engine
	clk    clock.Clock
	userID string

	resubInitial time.Duration
	resubMax     time.Duration

	events chan event

	// loop-owned while running; Stop reclaims it after the loop exits
	active map[string]feed.Snapshot

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	visible   []ActiveRedemption
	listeners []func([]ActiveRedemption)
	onExpired func(ActiveRedemption)
	onRemoved func(Removal)
}

type eventKind int

const (
	evBatch eventKind = iota
	evExpiry
	evTransition
)

type event struct {
	kind   eventKind
	batch  []feed.Snapshot
	code   string
	target State
}

type Params struct {
	fx.In

	Cfg    *config.Config
	Source feed.Source
	Engine *countdown.Engine
	Clock  clock.Clock
}

func New(p Params) *Tracker {
	return &Tracker{
		source:       p.Source,
		engine:       p.Engine,
		clk:          p.Clock,
		userID:       p.Cfg.User.ID,
		resubInitial: p.Cfg.Feed.ResubscribeInitial,
		resubMax:     p.Cfg.Feed.ResubscribeMax,
		events:       make(chan event, 64),
		active:       make(map[string]feed.Snapshot),
	}
}

// OnChange registers a listener for the visible set. Invoked from the
// tracker goroutine whenever the rendered list actually changes.
func (t *Tracker) OnChange(fn func([]ActiveRedemption)) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// OnExpired registers the expiry callback driving the expired interstitial.
// Fired at most once per record.
func (t *Tracker) OnExpired(fn func(ActiveRedemption)) {
	t.mu.Lock()
	t.onExpired = fn
	t.mu.Unlock()
}

// OnRemoved registers the terminal-state callback for the refund-
// notification path.
func (t *Tracker) OnRemoved(fn func(Removal)) {
	t.mu.Lock()
	t.onRemoved = fn
	t.mu.Unlock()
}

// Active returns the currently visible redemptions, redeemedAt descending.
func (t *Tracker) Active() []ActiveRedemption {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.visible)
}

// Complete records that the user finished redemption in the UI (staff took
// the code). The record leaves the visible set as Used.
func (t *Tracker) Complete(code string) {
	t.post(event{kind: evTransition, code: code, target: StateUsed})
}

// Cancel removes a redemption the backend confirmed as cancelled.
func (t *Tracker) Cancel(code string) {
	t.post(event{kind: evTransition, code: code, target: StateCancelled})
}

func (t *Tracker) post(ev event) {
	t.mu.Lock()
	stop := t.stopCh
	t.mu.Unlock()

	select {
	case t.events <- ev:
	case <-stop:
	}
}

// Start subscribes the push feed and runs the tracker loop until Stop. The
// tracker alternates Start and Stop with the owning screen; calling Start on
// a running tracker is a no-op.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	stop, done := t.stopCh, t.doneCh
	t.mu.Unlock()

	go t.run(stop, done)
}

// Stop cancels all timers, unsubscribes, and discards local state. A later
// Start rehydrates purely from the server's current truth. Stopping an
// already stopped tracker is a no-op.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	stop, done := t.stopCh, t.doneCh
	t.mu.Unlock()

	close(stop)
	<-done
	t.engine.DetachAll()

	// The loop has exited; local state is a cache of the feed, so the next
	// Start rebuilds it from scratch.
	t.active = make(map[string]feed.Snapshot)
	t.mu.Lock()
	t.visible = nil
	t.mu.Unlock()
}

func (t *Tracker) run(stop, done chan struct{}) {
	defer close(done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	for {
		sub, err := t.subscribeWithBackoff(ctx, stop)
		if err != nil {
			return
		}

		t.consume(sub, stop)
		_ = sub.Close()

		select {
		case <-stop:
			return
		default:
			// Feed dropped: never show stale data while reconnecting.
			t.clearAll()
		}
	}
}

func (t *Tracker) subscribeWithBackoff(ctx context.Context, stop <-chan struct{}) (feed.Subscription, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.resubInitial
	bo.MaxInterval = t.resubMax
	bo.MaxElapsedTime = 0

	for {
		sub, err := t.source.Subscribe(ctx, feed.Filter{UserID: t.userID})
		if err == nil {
			return sub, nil
		}

		metrics.FeedResubscribes.Inc()
		wait := bo.NextBackOff()
		zap.L().Warn("reward feed subscribe failed, backing off",
			zap.String("user_id", t.userID),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)

		select {
		case <-time.After(wait):
		case <-stop:
			return nil, errutil.Subscription("tracker stopped", errutil.WithErr(err))
		}
	}
}

func (t *Tracker) consume(sub feed.Subscription, stop <-chan struct{}) {
	for {
		select {
		case batch, ok := <-sub.Snapshots():
			if !ok {
				zap.L().Warn("reward feed subscription ended", zap.Error(sub.Err()))
				return
			}
			t.applyBatch(batch)
		case ev := <-t.events:
			switch ev.kind {
			case evExpiry:
				t.handleExpiry(ev.code)
			case evTransition:
				t.handleTransition(ev.code, ev.target)
			}
		case <-stop:
			return
		}
	}
}

// applyBatch reconciles one full-document snapshot delivery against the
// active set. Redelivering an identical batch is a no-op. Records transition
// independently; one record's terminal state never delays another's.
func (t *Tracker) applyBatch(batch []feed.Snapshot) {
	now := t.clk.Now()

	// De-duplicate on redemption code: a cache replay with a fresh document
	// identity must not become a second banner.
	incoming := make(map[string]feed.Snapshot, len(batch))
	for _, snap := range batch {
		if snap.RedemptionCode == "" {
			continue
		}
		if _, seen := incoming[snap.RedemptionCode]; seen {
			continue
		}
		incoming[snap.RedemptionCode] = snap
	}

	for code, snap := range incoming {
		if !snap.Active(now) {
			continue
		}
		if _, ok := t.active[code]; ok {
			// expiresAt is immutable after creation; nothing to refresh.
			continue
		}

		// Pending → Active. This same path re-admits a record the local
		// countdown removed early when the server still reports it active.
		t.active[code] = snap
		expiresAt := snap.ExpiresAt.Time
		t.engine.Attach(code, expiresAt, func(c string) {
			t.post(event{kind: evExpiry, code: c})
		})
	}

	for code, snap := range t.active {
		current, present := incoming[code]
		if present && current.Active(now) {
			continue
		}

		reason := t.terminalReason(current, present, snap, now)
		t.remove(code, reason)
	}

	t.publish()
}

// terminalReason maps a record's disappearance from the matching set onto a
// terminal state. Server flags are authoritative; a vanished document is
// classified by whether its window had elapsed.
func (t *Tracker) terminalReason(current feed.Snapshot, present bool, prev feed.Snapshot, now time.Time) State {
	if present {
		if current.IsUsed {
			return StateUsed
		}
		if current.IsExpired {
			return StateExpired
		}
	}
	if !prev.ExpiresAt.After(now) {
		return StateExpired
	}
	return StateUsed
}

func (t *Tracker) handleExpiry(code string) {
	snap, ok := t.active[code]
	if !ok {
		// Straggler from an already detached timer; firing is idempotent.
		return
	}

	// Optimistic removal pending server confirmation. If the next snapshot
	// still reports the record active (clock skew), applyBatch re-admits it.
	delete(t.active, code)
	t.engine.Detach(code)

	proj := project(snap)
	t.mu.Lock()
	onExpired := t.onExpired
	onRemoved := t.onRemoved
	t.mu.Unlock()

	if onExpired != nil {
		onExpired(proj)
	}
	if onRemoved != nil {
		onRemoved(Removal{Redemption: proj, Reason: StateExpired})
	}

	t.publish()
}

func (t *Tracker) handleTransition(code string, target State) {
	snap, ok := t.active[code]
	if !ok {
		return
	}

	delete(t.active, code)
	t.engine.Detach(code)

	t.mu.Lock()
	onRemoved := t.onRemoved
	t.mu.Unlock()
	if onRemoved != nil {
		onRemoved(Removal{Redemption: project(snap), Reason: target})
	}

	t.publish()
}

func (t *Tracker) remove(code string, reason State) {
	snap := t.active[code]
	delete(t.active, code)
	t.engine.Detach(code)

	t.mu.Lock()
	onRemoved := t.onRemoved
	t.mu.Unlock()
	if onRemoved != nil {
		onRemoved(Removal{Redemption: project(snap), Reason: reason})
	}
}

func (t *Tracker) clearAll() {
	for code := range t.active {
		delete(t.active, code)
		t.engine.Detach(code)
	}
	t.publish()
}

// publish recomputes the visible list and notifies listeners only when the
// rendered set actually changed.
func (t *Tracker) publish() {
	next := make([]ActiveRedemption, 0, len(t.active))
	for _, snap := range t.active {
		next = append(next, project(snap))
	}
	slices.SortFunc(next, func(a, b ActiveRedemption) int {
		return b.RedeemedAt.Compare(a.RedeemedAt)
	})

	t.mu.Lock()
	changed := !slices.Equal(t.visible, next)
	if changed {
		t.visible = next
	}
	listeners := slices.Clone(t.listeners)
	t.mu.Unlock()

	if !changed {
		return
	}

	metrics.ActiveRedemptions.Set(float64(len(next)))
	for _, fn := range listeners {
		fn(slices.Clone(next))
	}
}

func project(snap feed.Snapshot) ActiveRedemption {
	return ActiveRedemption{
		RewardID:       snap.RewardID,
		RewardTitle:    snap.RewardTitle,
		RedemptionCode: snap.RedemptionCode,
		PointsDeducted: snap.PointsDeducted,
		RedeemedAt:     snap.RedeemedAt.Time,
		ExpiresAt:      snap.ExpiresAt.Time,
	}
}
