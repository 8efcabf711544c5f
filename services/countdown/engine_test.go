package countdown

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAttachAlreadyExpiredFiresImmediately(t *testing.T) {
	clk := newFakeClock(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	engine := newEngine(clk, time.Millisecond)

	var fired atomic.Int32
	engine.Attach("A1B2", clk.Now().Add(-time.Second), func(string) { fired.Add(1) })

	require.Equal(t, int32(1), fired.Load())
	_, ok := engine.Remaining("A1B2")
	require.False(t, ok, "no timer should exist for an already expired record")
}

func TestExpiryFiresExactlyOncePastDeadline(t *testing.T) {
	clk := newFakeClock(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	engine := newEngine(clk, time.Millisecond)

	var fired atomic.Int32
	done := make(chan struct{})
	engine.Attach("A1B2", clk.Now().Add(50*time.Millisecond), func(string) {
		fired.Add(1)
		close(done)
	})

	// Jump well past the deadline; subsequent ticks observe remaining at
	// -1s, -2s, -3s and must not fire again.
	clk.Advance(time.Second)
	<-done
	clk.Advance(time.Second)
	clk.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, int32(1), fired.Load())
}

func TestDetachPreventsCallback(t *testing.T) {
	clk := newFakeClock(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	engine := newEngine(clk, time.Millisecond)

	var fired atomic.Int32
	engine.Attach("A1B2", clk.Now().Add(time.Hour), func(string) { fired.Add(1) })
	engine.Detach("A1B2")

	clk.Advance(2 * time.Hour)
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, int32(0), fired.Load())
}

func TestAttachTwiceIsNoOp(t *testing.T) {
	clk := newFakeClock(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	engine := newEngine(clk, time.Millisecond)

	engine.Attach("A1B2", clk.Now().Add(10*time.Minute), func(string) {})
	engine.Attach("A1B2", clk.Now().Add(20*time.Minute), func(string) {})

	remaining, ok := engine.Remaining("A1B2")
	require.True(t, ok)
	require.LessOrEqual(t, remaining, 10*time.Minute)
}

func TestDetachAll(t *testing.T) {
	clk := newFakeClock(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	engine := newEngine(clk, time.Millisecond)

	var fired atomic.Int32
	engine.Attach("A1B2", clk.Now().Add(time.Minute), func(string) { fired.Add(1) })
	engine.Attach("C3D4", clk.Now().Add(time.Minute), func(string) { fired.Add(1) })
	engine.DetachAll()

	clk.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, int32(0), fired.Load())
	_, ok := engine.Remaining("A1B2")
	require.False(t, ok)
}

func TestIndependentTimers(t *testing.T) {
	clk := newFakeClock(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	engine := newEngine(clk, time.Millisecond)

	firedA := make(chan struct{})
	var firedB atomic.Int32
	engine.Attach("A1B2", clk.Now().Add(30*time.Second), func(string) { close(firedA) })
	engine.Attach("C3D4", clk.Now().Add(time.Hour), func(string) { firedB.Add(1) })

	clk.Advance(time.Minute)
	<-firedA
	time.Sleep(10 * time.Millisecond)

	require.Equal(t, int32(0), firedB.Load(), "expiring A must not expire B")
	_, ok := engine.Remaining("C3D4")
	require.True(t, ok)
}

func TestFormat(t *testing.T) {
	require.Equal(t, "15:00", Format(15*time.Minute))
	require.Equal(t, "0:30", Format(30*time.Second))
	require.Equal(t, "0:00", Format(0))
	require.Equal(t, "0:00", Format(-3*time.Second))
	require.Equal(t, "1:05", Format(65*time.Second))
}

func TestUrgencyBuckets(t *testing.T) {
	require.Equal(t, UrgencyNormal, UrgencyFor(10*time.Minute))
	require.Equal(t, UrgencyWarning, UrgencyFor(4*time.Minute))
	require.Equal(t, UrgencyUrgent, UrgencyFor(90*time.Second))
	require.Equal(t, UrgencyCritical, UrgencyFor(30*time.Second))
	require.Equal(t, "critical", UrgencyFor(30*time.Second).String())

	// Boundaries fall into the calmer bucket.
	require.Equal(t, UrgencyNormal, UrgencyFor(5*time.Minute))
	require.Equal(t, UrgencyWarning, UrgencyFor(2*time.Minute))
	require.Equal(t, UrgencyUrgent, UrgencyFor(time.Minute))
	require.Equal(t, UrgencyCritical, UrgencyFor(time.Minute-time.Second))
}
