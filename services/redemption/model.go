package redemption

import (
	"time"

	"tablerewards-client/pkg/timeparse"

	"gorm.io/datatypes"
)

// defaultExpiryWindow is the last-resort expiry applied when the backend
// omits or garbles expiresAt. The real window is server-issued data; this
// constant only keeps a redemption from being born already expired.
const defaultExpiryWindow = 15 * time.Minute

// EligibleItem is one selectable menu item for a reward tier.
type EligibleItem struct {
	ItemID     string `json:"itemId"`
	ItemName   string `json:"itemName"`
	CategoryID string `json:"categoryId,omitempty"`
	ImageURL   string `json:"imageURL,omitempty"`
}

type eligibleItemsResponse struct {
	PointsRequired int64          `json:"pointsRequired"`
	TierName       string         `json:"tierName,omitempty"`
	EligibleItems  []EligibleItem `json:"eligibleItems"`
}

// RedeemRequest captures one user-initiated redemption intent. The display
// fields are snapshotted into the resulting record server-side.
type RedeemRequest struct {
	UserID            string `json:"userId"`
	RewardTitle       string `json:"rewardTitle"`
	RewardDescription string `json:"rewardDescription"`
	PointsRequired    int64  `json:"pointsRequired"`
	RewardCategory    string `json:"rewardCategory"`

	SelectedItemID        string `json:"selectedItemId,omitempty"`
	SelectedItemName      string `json:"selectedItemName,omitempty"`
	SelectedToppingID     string `json:"selectedToppingId,omitempty"`
	SelectedToppingName   string `json:"selectedToppingName,omitempty"`
	SelectedItemID2       string `json:"selectedItemId2,omitempty"`
	SelectedItemName2     string `json:"selectedItemName2,omitempty"`
	CookingMethod         string `json:"cookingMethod,omitempty"`
	DrinkType             string `json:"drinkType,omitempty"`
	SelectedDrinkItemID   string `json:"selectedDrinkItemId,omitempty"`
	SelectedDrinkItemName string `json:"selectedDrinkItemName,omitempty"`
}

type redeemPayload struct {
	RedeemRequest
	IdempotencyKey string `json:"idempotencyKey"`
}

type redeemResponse struct {
	Success          bool           `json:"success"`
	RedemptionCode   string         `json:"redemptionCode"`
	NewPointsBalance int64          `json:"newPointsBalance"`
	PointsDeducted   int64          `json:"pointsDeducted"`
	RewardTitle      string         `json:"rewardTitle"`
	SelectedItemName string         `json:"selectedItemName,omitempty"`
	ExpiresAt        timeparse.Time `json:"expiresAt"`
	Message          string         `json:"message,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// RedemptionResult is the authoritative outcome of one redemption: the
// server-issued code, the post-deduction balance, and the expiry window.
type RedemptionResult struct {
	RedemptionCode   string
	NewPointsBalance int64
	PointsDeducted   int64
	RewardTitle      string
	SelectedItemName string
	ExpiresAt        time.Time
	Message          string
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// PendingRedemption is the locally persisted bookkeeping for one logical
// redemption attempt. The row exists from just before the first wire attempt
// until a definitive success or terminal failure is observed, so an app
// killed mid-request resumes with the same idempotency key instead of
// minting a new one.
type PendingRedemption struct {
	ID             string         `gorm:"column:id;primaryKey"`
	IdempotencyKey string         `gorm:"column:idempotency_key;uniqueIndex;not null"`
	UserID         string         `gorm:"column:user_id;index;not null"`
	Payload        datatypes.JSON `gorm:"column:payload;type:text"`
	Attempts       int            `gorm:"column:attempts;not null;default:0"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (PendingRedemption) TableName() string { return "pending_redemptions" }
