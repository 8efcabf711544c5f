package balance

import (
	"errors"
	"sync"
	"testing"
	"time"

	"tablerewards-client/pkg/config"
	"tablerewards-client/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestWatcher(t *testing.T, src *testutil.FakeBalanceFeed) *Watcher {
	t.Helper()

	cfg := &config.Config{}
	cfg.User.ID = "user-1"
	cfg.Feed.ResubscribeInitial = 5 * time.Millisecond
	cfg.Feed.ResubscribeMax = 20 * time.Millisecond

	w := New(Params{Cfg: cfg, Source: src})
	w.Start()
	t.Cleanup(w.Stop)
	return w
}

func TestWatcherUnknownUntilFirstDelivery(t *testing.T) {
	src := testutil.NewFakeBalanceFeed()
	w := newTestWatcher(t, src)

	_, ok := w.Current()
	require.False(t, ok, "no delivery yet, balance must be unknown")

	require.Eventually(t, func() bool {
		src.Push(1250)
		v, ok := w.Current()
		return ok && v == 1250
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherZeroIsAValidBalance(t *testing.T) {
	src := testutil.NewFakeBalanceFeed()
	w := newTestWatcher(t, src)

	require.Eventually(t, func() bool {
		src.Push(0)
		v, ok := w.Current()
		return ok && v == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherNotifiesOnChangeOnly(t *testing.T) {
	src := testutil.NewFakeBalanceFeed()
	w := newTestWatcher(t, src)

	var mu sync.Mutex
	var seen []int64
	w.OnChange(func(v int64) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		src.Push(500)
		v, ok := w.Current()
		return ok && v == 500
	}, 2*time.Second, 10*time.Millisecond)

	src.Push(500)
	src.Push(250)

	require.Eventually(t, func() bool {
		v, ok := w.Current()
		return ok && v == 250
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int64{500, 250}, seen, "redelivered value must not re-notify")
}

func TestWatcherStopThenStartResumes(t *testing.T) {
	src := testutil.NewFakeBalanceFeed()
	w := newTestWatcher(t, src)

	require.Eventually(t, func() bool {
		src.Push(800)
		v, ok := w.Current()
		return ok && v == 800
	}, 2*time.Second, 10*time.Millisecond)

	w.Stop()

	// The last known balance survives a stop.
	v, ok := w.Current()
	require.True(t, ok)
	require.Equal(t, int64(800), v)

	w.Start()
	require.Eventually(t, func() bool {
		src.Push(650)
		cur, ok := w.Current()
		return ok && cur == 650
	}, 2*time.Second, 10*time.Millisecond)

	w.Stop()
	w.Stop()
}

func TestWatcherResubscribesAfterDrop(t *testing.T) {
	src := testutil.NewFakeBalanceFeed()
	w := newTestWatcher(t, src)

	require.Eventually(t, func() bool {
		src.Push(800)
		v, ok := w.Current()
		return ok && v == 800
	}, 2*time.Second, 10*time.Millisecond)

	src.Drop(errors.New("connection reset"))

	// The last known balance survives a dropped subscription.
	v, ok := w.Current()
	require.True(t, ok)
	require.Equal(t, int64(800), v)

	require.Eventually(t, func() bool {
		src.Push(650)
		cur, ok := w.Current()
		return ok && cur == 650
	}, 2*time.Second, 10*time.Millisecond)
}
