package tracker

import (
	"time"
)

// State is the per-record lifecycle. Terminal states are all removed from
// the visible set; the distinction matters only for the refund-notification
// path, not for rendering.
type State string

const (
	StatePending   State = "pending"
	StateActive    State = "active"
	StateUsed      State = "used"
	StateExpired   State = "expired"
	StateCancelled State = "cancelled"
)

// ActiveRedemption is the view-facing projection of one redeemed-but-
// unconsumed reward. Identity is the redemption code, the value a staff
// member would type or scan, never a feed document id.
type ActiveRedemption struct {
	RewardID       string    `json:"rewardId"`
	RewardTitle    string    `json:"rewardTitle"`
	RedemptionCode string    `json:"redemptionCode"`
	PointsDeducted int64     `json:"pointsDeducted"`
	RedeemedAt     time.Time `json:"redeemedAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Removal reports a record leaving the visible set with its terminal state.
type Removal struct {
	Redemption ActiveRedemption
	Reason     State
}
