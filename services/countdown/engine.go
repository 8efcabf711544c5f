package countdown

import (
	"fmt"
	"sync"
	"time"

	"tablerewards-client/pkg/clock"
	"tablerewards-client/pkg/metrics"
)

// ExpiryFunc is invoked exactly once when a record's countdown reaches zero.
type ExpiryFunc func(redemptionCode string)

// Engine schedules one countdown per active redemption, keyed by redemption
// code. It is a pure scheduler: it holds record identity and expiry only,
// never a copy of the record that could go stale. The surrounding layer
// attaches on activation and detaches on removal.
type Engine struct {
	clk      clock.Clock
	interval time.Duration

	mu     sync.Mutex
	timers map[string]*timer
}

type timer struct {
	code      string
	expiresAt time.Time
	stop      chan struct{}
	fired     bool
}

func NewEngine(clk clock.Clock) *Engine {
	return newEngine(clk, time.Second)
}

func newEngine(clk clock.Clock, interval time.Duration) *Engine {
	if clk == nil {
		clk = clock.System()
	}
	return &Engine{
		clk:      clk,
		interval: interval,
		timers:   make(map[string]*timer),
	}
}

// Attach starts a 1 Hz countdown for the record. If the deadline already
// passed, the expiry fires immediately and no timer is started. Attaching an
// already attached code is a no-op.
func (e *Engine) Attach(code string, expiresAt time.Time, fn ExpiryFunc) {
	e.mu.Lock()
	if _, ok := e.timers[code]; ok {
		e.mu.Unlock()
		return
	}

	if !e.clk.Now().Before(expiresAt) {
		e.mu.Unlock()
		metrics.CountdownExpiries.Inc()
		fn(code)
		return
	}

	t := &timer{code: code, expiresAt: expiresAt, stop: make(chan struct{})}
	e.timers[code] = t
	e.mu.Unlock()

	go e.run(t, fn)
}

func (e *Engine) run(t *timer, fn ExpiryFunc) {
	tick := time.NewTicker(e.interval)
	defer tick.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-tick.C:
			// Remaining time is always recomputed from the wall clock, so a
			// suspend/resume gap collapses to a single late tick instead of
			// a drifted display.
			if e.clk.Now().Before(t.expiresAt) {
				continue
			}

			// Claim the firing under the lock; once a timer was detached it
			// can never claim, however many ticks are still queued.
			e.mu.Lock()
			cur, ok := e.timers[t.code]
			if !ok || cur != t || t.fired {
				e.mu.Unlock()
				return
			}
			t.fired = true
			delete(e.timers, t.code)
			e.mu.Unlock()

			metrics.CountdownExpiries.Inc()
			fn(t.code)
			return
		}
	}
}

// Detach cancels the record's timer. After Detach returns the timer cannot
// claim its expiry anymore.
func (e *Engine) Detach(code string) {
	e.mu.Lock()
	if t, ok := e.timers[code]; ok {
		delete(e.timers, code)
		close(t.stop)
	}
	e.mu.Unlock()
}

// DetachAll cancels every timer, e.g. when the owning screen disappears.
func (e *Engine) DetachAll() {
	e.mu.Lock()
	for code, t := range e.timers {
		delete(e.timers, code)
		close(t.stop)
	}
	e.mu.Unlock()
}

// Remaining reports the current remaining time of an attached record.
func (e *Engine) Remaining(code string) (time.Duration, bool) {
	e.mu.Lock()
	t, ok := e.timers[code]
	e.mu.Unlock()
	if !ok {
		return 0, false
	}

	remaining := t.expiresAt.Sub(e.clk.Now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Urgency is display emphasis only; it has no effect on correctness.
type Urgency int

const (
	UrgencyNormal Urgency = iota
	UrgencyWarning
	UrgencyUrgent
	UrgencyCritical
)

func (u Urgency) String() string {
	switch u {
	case UrgencyWarning:
		return "warning"
	case UrgencyUrgent:
		return "urgent"
	case UrgencyCritical:
		return "critical"
	default:
		return "normal"
	}
}

// UrgencyFor buckets remaining time for display emphasis. Boundaries belong
// to the calmer bucket: exactly five minutes is still normal, exactly one
// minute is still urgent.
func UrgencyFor(remaining time.Duration) Urgency {
	switch {
	case remaining < time.Minute:
		return UrgencyCritical
	case remaining < 2*time.Minute:
		return UrgencyUrgent
	case remaining < 5*time.Minute:
		return UrgencyWarning
	default:
		return UrgencyNormal
	}
}

// Format renders remaining time as minutes:seconds, clamped at 0:00.
func Format(remaining time.Duration) string {
	if remaining < 0 {
		remaining = 0
	}
	secs := int(remaining / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
