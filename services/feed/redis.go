package feed

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"

	"tablerewards-client/pkg/errutil"
	"tablerewards-client/pkg/metrics"
	"tablerewards-client/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisSource consumes the backend's live mirror of the redeemedRewards
// query: hash "rewards:active:{userID}" holds the current matching documents
// keyed by redemption code, and "rewards:events:{userID}" receives a publish
// on every change. Each publish triggers a full re-read, so every delivery is
// a full-document snapshot of the matching set.
type RedisSource struct {
	rdb *redis.Client
}

func NewRedisSource(rdb *redis.Client) *RedisSource {
	return &RedisSource{rdb: rdb}
}

func (s *RedisSource) Subscribe(ctx context.Context, f Filter) (Subscription, error) {
	if f.UserID == "" {
		return nil, errutil.BadRequest("user id required for feed subscription")
	}

	ps := s.rdb.Subscribe(ctx, rediskey.BuildEventsChannel(f.UserID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errutil.Subscription("failed to subscribe to reward feed", errutil.WithErr(err))
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{
		ch:     make(chan []Snapshot, 8),
		ps:     ps,
		cancel: cancel,
	}

	go sub.run(ctx, s.rdb, f.UserID)

	return sub, nil
}

type redisSubscription struct {
	ch     chan []Snapshot
	ps     *redis.PubSub
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (s *redisSubscription) Snapshots() <-chan []Snapshot { return s.ch }

func (s *redisSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *redisSubscription) Close() error {
	s.cancel()
	return s.ps.Close()
}

func (s *redisSubscription) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *redisSubscription) run(ctx context.Context, rdb *redis.Client, userID string) {
	defer close(s.ch)

	deliver := func() bool {
		batch, err := readActiveSet(ctx, rdb, userID)
		if err != nil {
			s.fail(errutil.Subscription("reward feed read failed", errutil.WithErr(err)))
			return false
		}

		metrics.FeedBatches.Inc()

		select {
		case s.ch <- batch:
			return true
		case <-ctx.Done():
			s.fail(ctx.Err())
			return false
		}
	}

	// Initial hydration, then one full re-read per change notification.
	if !deliver() {
		return
	}

	msgs := s.ps.Channel()
	for {
		select {
		case _, ok := <-msgs:
			if !ok {
				s.fail(errutil.Subscription("reward feed channel closed"))
				return
			}
			if !deliver() {
				return
			}
		case <-ctx.Done():
			s.fail(ctx.Err())
			return
		}
	}
}

func readActiveSet(ctx context.Context, rdb *redis.Client, userID string) ([]Snapshot, error) {
	docs, err := rdb.HGetAll(ctx, rediskey.BuildActiveKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	batch := make([]Snapshot, 0, len(docs))
	for code, raw := range docs {
		var snap Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			zap.L().Warn("dropping malformed feed document",
				zap.String("user_id", userID),
				zap.String("redemption_code", code),
				zap.Error(err),
			)
			continue
		}
		if snap.RedemptionCode == "" {
			snap.RedemptionCode = code
		}
		batch = append(batch, snap)
	}

	// Same ordering the backend query promises: redeemedAt descending.
	sort.Slice(batch, func(i, j int) bool {
		return batch[i].RedeemedAt.After(batch[j].RedeemedAt.Time)
	})

	return batch, nil
}

// SubscribeBalance delivers the current balance immediately, then again on
// every balance change publish.
func (s *RedisSource) SubscribeBalance(ctx context.Context, userID string) (BalanceSubscription, error) {
	if userID == "" {
		return nil, errutil.BadRequest("user id required for balance subscription")
	}

	ps := s.rdb.Subscribe(ctx, rediskey.BuildBalanceEventsChannel(userID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errutil.Subscription("failed to subscribe to balance feed", errutil.WithErr(err))
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &balanceSubscription{
		ch:     make(chan int64, 8),
		ps:     ps,
		cancel: cancel,
	}

	go sub.run(ctx, s.rdb, userID)

	return sub, nil
}

type balanceSubscription struct {
	ch     chan int64
	ps     *redis.PubSub
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (s *balanceSubscription) Updates() <-chan int64 { return s.ch }

func (s *balanceSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *balanceSubscription) Close() error {
	s.cancel()
	return s.ps.Close()
}

func (s *balanceSubscription) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *balanceSubscription) run(ctx context.Context, rdb *redis.Client, userID string) {
	defer close(s.ch)

	deliver := func() bool {
		raw, err := rdb.Get(ctx, rediskey.BuildBalanceKey(userID)).Result()
		if err == redis.Nil {
			// No balance written yet. Absence stays absent; it must not
			// decay into a delivered zero.
			return true
		}
		if err != nil {
			s.fail(errutil.Subscription("balance feed read failed", errutil.WithErr(err)))
			return false
		}

		balance, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			zap.L().Warn("dropping malformed balance value", zap.String("user_id", userID), zap.Error(err))
			return true
		}

		select {
		case s.ch <- balance:
			return true
		case <-ctx.Done():
			s.fail(ctx.Err())
			return false
		}
	}

	if !deliver() {
		return
	}

	msgs := s.ps.Channel()
	for {
		select {
		case _, ok := <-msgs:
			if !ok {
				s.fail(errutil.Subscription("balance feed channel closed"))
				return
			}
			if !deliver() {
				return
			}
		case <-ctx.Done():
			s.fail(ctx.Err())
			return
		}
	}
}
