package feed

import (
	"context"
	"time"

	"tablerewards-client/pkg/timeparse"
)

// Snapshot is the full-document projection of one redeemed-reward record as
// delivered by the push feed. The display fields are a snapshot taken at
// redemption time; they are never recomputed from current menu state.
type Snapshot struct {
	DocID             string         `json:"docId"`
	UserID            string         `json:"userId"`
	RedemptionCode    string         `json:"redemptionCode"`
	RewardID          string         `json:"rewardId"`
	RewardTitle       string         `json:"rewardTitle"`
	RewardDescription string         `json:"rewardDescription"`
	RewardCategory    string         `json:"rewardCategory"`
	PointsDeducted    int64          `json:"pointsDeducted"`
	SelectedItemName  string         `json:"selectedItemName,omitempty"`
	RedeemedAt        timeparse.Time `json:"redeemedAt"`
	ExpiresAt         timeparse.Time `json:"expiresAt"`
	IsUsed            bool           `json:"isUsed"`
	IsExpired         bool           `json:"isExpired"`
}

// Active reports whether the record satisfies the active predicate at the
// given instant. The server-maintained flags win over the timestamp.
func (s Snapshot) Active(now time.Time) bool {
	return !s.IsUsed && !s.IsExpired && s.ExpiresAt.After(now)
}

// Filter selects the records a subscription delivers.
type Filter struct {
	UserID string
}

// Subscription is a live stream of snapshot batches. Every delivery carries
// the full current matching set, ordered by redeemedAt descending. The
// channel closes when the subscription ends; Err reports why.
type Subscription interface {
	Snapshots() <-chan []Snapshot
	Err() error
	Close() error
}

// Source is the push-feed collaborator: deliver snapshots, support
// cancellation. Nothing more is assumed about the backing store.
type Source interface {
	Subscribe(ctx context.Context, f Filter) (Subscription, error)
}

// BalanceSubscription streams the user's current points balance. The balance
// feed is the sole source of truth for displayed points; redemption state
// never writes to it.
type BalanceSubscription interface {
	Updates() <-chan int64
	Err() error
	Close() error
}

// BalanceSource provides the independent points-balance feed.
type BalanceSource interface {
	SubscribeBalance(ctx context.Context, userID string) (BalanceSubscription, error)
}
