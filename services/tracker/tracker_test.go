package tracker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"tablerewards-client/pkg/config"
	"tablerewards-client/pkg/timeparse"
	"tablerewards-client/services/countdown"
	"tablerewards-client/services/feed"
	"tablerewards-client/services/testutil"

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
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.User.ID = "user-1"
	cfg.User.Token = "token"
	cfg.Feed.ResubscribeInitial = 5 * time.Millisecond
	cfg.Feed.ResubscribeMax = 20 * time.Millisecond
	return cfg
}

func newTestTracker(t *testing.T, clk *fakeClock, src feed.Source) *Tracker {
	t.Helper()

	tr := New(Params{
		Cfg:    testConfig(),
		Source: src,
		Engine: countdown.NewEngine(clk),
		Clock:  clk,
	})
	tr.Start()
	t.Cleanup(tr.Stop)
	return tr
}

func snapshot(code string, redeemedAt, expiresAt time.Time) feed.Snapshot {
	return feed.Snapshot{
		DocID:          "doc-" + code,
		UserID:         "user-1",
		RedemptionCode: code,
		RewardID:       "reward-" + code,
		RewardTitle:    "Free Appetizer",
		PointsDeducted: 250,
		RedeemedAt:     timeparse.Time{Time: redeemedAt},
		ExpiresAt:      timeparse.Time{Time: expiresAt},
	}
}

func TestTrackerAdmitsActiveRecords(t *testing.T) {
	now := time.Now()
	clk := newFakeClock(now)
	src := testutil.NewFakeFeed()
	tr := newTestTracker(t, clk, src)

	<-src.Subscribed()
	src.Push([]feed.Snapshot{
		snapshot("AAA-111", now.Add(-time.Minute), now.Add(15*time.Minute)),
		snapshot("BBB-222", now.Add(-2*time.Minute), now.Add(14*time.Minute)),
	})

	require.Eventually(t, func() bool {
		return len(tr.Active()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	active := tr.Active()
	require.Equal(t, "AAA-111", active[0].RedemptionCode, "most recent redemption first")
	require.Equal(t, "BBB-222", active[1].RedemptionCode)
}

func TestTrackerDeduplicatesByRedemptionCode(t *testing.T) {
	now := time.Now()
	clk := newFakeClock(now)
	src := testutil.NewFakeFeed()
	tr := newTestTracker(t, clk, src)

	<-src.Subscribed()
	first := snapshot("AAA-111", now.Add(-time.Minute), now.Add(15*time.Minute))
	replay := first
	replay.DocID = "doc-replayed"

	src.Push([]feed.Snapshot{first, replay})

	require.Eventually(t, func() bool {
		return len(tr.Active()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "AAA-111", tr.Active()[0].RedemptionCode)
}

func TestTrackerRedeliveryIsIdempotent(t *testing.T) {
	now := time.Now()
	clk := newFakeClock(now)
	src := testutil.NewFakeFeed()
	tr := newTestTracker(t, clk, src)

	var mu sync.Mutex
	changes := 0
	tr.OnChange(func([]ActiveRedemption) {
		mu.Lock()
		changes++
		mu.Unlock()
	})

	<-src.Subscribed()
	batch := []feed.Snapshot{snapshot("AAA-111", now.Add(-time.Minute), now.Add(15*time.Minute))}

	src.Push(batch)
	require.Eventually(t, func() bool {
		return len(tr.Active()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Identical redelivery must not re-notify.
	src.Push(batch)

	// A genuinely different batch proves the redelivery above was consumed.
	src.Push([]feed.Snapshot{
		batch[0],
		snapshot("BBB-222", now, now.Add(10*time.Minute)),
	})
	require.Eventually(t, func() bool {
		return len(tr.Active()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, changes)
}

func TestTrackerRemovesUsedRecord(t *testing.T) {
	now := time.Now()
	clk := newFakeClock(now)
	src := testutil.NewFakeFeed()
	tr := newTestTracker(t, clk, src)

	var mu sync.Mutex
	var removals []Removal
	expired := 0
	tr.OnRemoved(func(r Removal) {
		mu.Lock()
		removals = append(removals, r)
		mu.Unlock()
	})
	tr.OnExpired(func(ActiveRedemption) {
		mu.Lock()
		expired++
		mu.Unlock()
	})

	<-src.Subscribed()
	snap := snapshot("AAA-111", now.Add(-time.Minute), now.Add(15*time.Minute))
	src.Push([]feed.Snapshot{snap})
	require.Eventually(t, func() bool {
		return len(tr.Active()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	used := snap
	used.IsUsed = true
	src.Push([]feed.Snapshot{used})

	require.Eventually(t, func() bool {
		return len(tr.Active()) == 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, removals, 1)
	require.Equal(t, StateUsed, removals[0].Reason)
	require.Equal(t, "AAA-111", removals[0].Redemption.RedemptionCode)
	require.Zero(t, expired, "a used record must not trigger the expiry callback")
}

func TestTrackerLocalExpiryThenReadmission(t *testing.T) {
	now := time.Now()
	clk := newFakeClock(now)
	src := testutil.NewFakeFeed()
	tr := newTestTracker(t, clk, src)

	var mu sync.Mutex
	expiredCodes := []string{}
	tr.OnExpired(func(r ActiveRedemption) {
		mu.Lock()
		expiredCodes = append(expiredCodes, r.RedemptionCode)
		mu.Unlock()
	})

	<-src.Subscribed()
	snap := snapshot("AAA-111", now, now.Add(30*time.Second))
	src.Push([]feed.Snapshot{snap})
	require.Eventually(t, func() bool {
		return len(tr.Active()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Local clock passes the deadline; the record is removed optimistically.
	clk.Advance(31 * time.Second)
	require.Eventually(t, func() bool {
		return len(tr.Active()) == 0
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Equal(t, []string{"AAA-111"}, expiredCodes)
	mu.Unlock()

	// Server disagrees (clock skew): the next delivery still reports the
	// record active and its deadline in the future. It comes back.
	clk.Set(now)
	src.Push([]feed.Snapshot{snap})
	require.Eventually(t, func() bool {
		return len(tr.Active()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTrackerFeedDropClearsThenResubscribes(t *testing.T) {
	now := time.Now()
	clk := newFakeClock(now)
	src := testutil.NewFakeFeed()
	tr := newTestTracker(t, clk, src)

	<-src.Subscribed()
	snap := snapshot("AAA-111", now, now.Add(15*time.Minute))
	src.Push([]feed.Snapshot{snap})
	require.Eventually(t, func() bool {
		return len(tr.Active()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	src.Drop(errors.New("connection reset"))

	// Stale data must never survive a dropped subscription.
	require.Eventually(t, func() bool {
		return len(tr.Active()) == 0
	}, 2*time.Second, 10*time.Millisecond)

	<-src.Subscribed()
	src.Push([]feed.Snapshot{snap})
	require.Eventually(t, func() bool {
		return len(tr.Active()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTrackerStopThenStartRehydrates(t *testing.T) {
	now := time.Now()
	clk := newFakeClock(now)
	src := testutil.NewFakeFeed()
	tr := newTestTracker(t, clk, src)

	<-src.Subscribed()
	snap := snapshot("AAA-111", now, now.Add(15*time.Minute))
	src.Push([]feed.Snapshot{snap})
	require.Eventually(t, func() bool {
		return len(tr.Active()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	tr.Stop()
	require.Empty(t, tr.Active(), "leaving the screen discards local state")

	// Re-entering re-subscribes and rebuilds from the feed's current truth.
	tr.Start()
	<-src.Subscribed()
	src.Push([]feed.Snapshot{snap})
	require.Eventually(t, func() bool {
		return len(tr.Active()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Stop is idempotent; the deferred cleanup stop is a second call.
	tr.Stop()
	tr.Stop()
}

func TestTrackerCompleteRemovesAsUsed(t *testing.T) {
	now := time.Now()
	clk := newFakeClock(now)
	src := testutil.NewFakeFeed()
	tr := newTestTracker(t, clk, src)

	var mu sync.Mutex
	var removals []Removal
	tr.OnRemoved(func(r Removal) {
		mu.Lock()
		removals = append(removals, r)
		mu.Unlock()
	})

	<-src.Subscribed()
	src.Push([]feed.Snapshot{snapshot("AAA-111", now, now.Add(15*time.Minute))})
	require.Eventually(t, func() bool {
		return len(tr.Active()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	tr.Complete("AAA-111")

	require.Eventually(t, func() bool {
		return len(tr.Active()) == 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, removals, 1)
	require.Equal(t, StateUsed, removals[0].Reason)
}
