package testutil

import (
	"context"
	"sync"

	"tablerewards-client/services/feed"
)

// FakeFeed is a scriptable feed.Source for tests. Push delivers a batch to
// every open subscription; Drop terminates them the way a broken transport
// would, so resubscribe paths can be exercised.
type FakeFeed struct {
	mu          sync.Mutex
	subs        []*fakeSub
	subscribeCh chan struct{}
	failNext    error
}

// NewFakeFeed returns an empty fake source.
func NewFakeFeed() *FakeFeed {
	return &FakeFeed{subscribeCh: make(chan struct{}, 16)}
}

// FailNext makes the next Subscribe call return err instead of a subscription.
func (f *FakeFeed) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = err
}

// Subscribe implements feed.Source.
func (f *FakeFeed) Subscribe(ctx context.Context, _ feed.Filter) (feed.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}

	sub := &fakeSub{ch: make(chan []feed.Snapshot, 16)}
	f.subs = append(f.subs, sub)
	select {
	case f.subscribeCh <- struct{}{}:
	default:
	}
	return sub, nil
}

// Subscribed signals once per successful Subscribe call.
func (f *FakeFeed) Subscribed() <-chan struct{} {
	return f.subscribeCh
}

// Push delivers a full-set batch to all open subscriptions.
func (f *FakeFeed) Push(batch []feed.Snapshot) {
	f.mu.Lock()
	subs := make([]*fakeSub, len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	for _, sub := range subs {
		sub.push(batch)
	}
}

// Drop fails every open subscription with the given error and closes their
// channels, mimicking a severed connection.
func (f *FakeFeed) Drop(err error) {
	f.mu.Lock()
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()

	for _, sub := range subs {
		sub.fail(err)
	}
}

type fakeSub struct {
	mu     sync.Mutex
	ch     chan []feed.Snapshot
	err    error
	closed bool
}

func (s *fakeSub) push(batch []feed.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	cloned := make([]feed.Snapshot, len(batch))
	copy(cloned, batch)
	s.ch <- cloned
}

func (s *fakeSub) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.ch)
}

func (s *fakeSub) Snapshots() <-chan []feed.Snapshot { return s.ch }

func (s *fakeSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.ch)
	return nil
}

// FakeBalanceFeed is a scriptable feed.BalanceSource.
type FakeBalanceFeed struct {
	mu       sync.Mutex
	subs     []*fakeBalanceSub
	failNext error
}

// NewFakeBalanceFeed returns an empty fake balance source.
func NewFakeBalanceFeed() *FakeBalanceFeed {
	return &FakeBalanceFeed{}
}

// FailNext makes the next SubscribeBalance call fail with err.
func (f *FakeBalanceFeed) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = err
}

// SubscribeBalance implements feed.BalanceSource.
func (f *FakeBalanceFeed) SubscribeBalance(ctx context.Context, _ string) (feed.BalanceSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}

	sub := &fakeBalanceSub{ch: make(chan int64, 16)}
	f.subs = append(f.subs, sub)
	return sub, nil
}

// Push delivers a balance value to all open subscriptions.
func (f *FakeBalanceFeed) Push(balance int64) {
	f.mu.Lock()
	subs := make([]*fakeBalanceSub, len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	for _, sub := range subs {
		sub.push(balance)
	}
}

// Drop fails every open subscription.
func (f *FakeBalanceFeed) Drop(err error) {
	f.mu.Lock()
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()

	for _, sub := range subs {
		sub.fail(err)
	}
}

type fakeBalanceSub struct {
	mu     sync.Mutex
	ch     chan int64
	err    error
	closed bool
}

func (s *fakeBalanceSub) push(v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- v
}

func (s *fakeBalanceSub) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.ch)
}

func (s *fakeBalanceSub) Updates() <-chan int64 { return s.ch }

func (s *fakeBalanceSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeBalanceSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.ch)
	return nil
}

var _ feed.Source = (*FakeFeed)(nil)
var _ feed.BalanceSource = (*FakeBalanceFeed)(nil)
