package redemption

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PendingStore persists in-flight redemption attempts in the on-device
// SQLite store.
type PendingStore struct {
	db   *gorm.DB
	node *snowflake.Node
}

type PendingStoreParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewPendingStore(p PendingStoreParams) (*PendingStore, error) {
	if err := p.DB.AutoMigrate(&PendingRedemption{}); err != nil {
		return nil, fmt.Errorf("failed to migrate pending redemptions: %w", err)
	}

	return &PendingStore{db: p.DB, node: p.Node}, nil
}

// Create mints a fresh idempotency key for one user tap and persists the
// attempt before anything touches the wire.
func (s *PendingStore) Create(ctx context.Context, req RedeemRequest) (*PendingRedemption, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode redeem request: %w", err)
	}

	row := &PendingRedemption{
		ID:             s.node.Generate().String(),
		IdempotencyKey: uuid.NewString(),
		UserID:         req.UserID,
		Payload:        datatypes.JSON(payload),
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to persist pending redemption: %w", err)
	}

	return row, nil
}

// Touch bumps the wire-attempt counter for a pending row.
func (s *PendingStore) Touch(ctx context.Context, idempotencyKey string) error {
	return s.db.WithContext(ctx).Model(&PendingRedemption{}).
		Where("idempotency_key = ?", idempotencyKey).
		Update("attempts", gorm.Expr("attempts + 1")).
		Error
}

// Resolve removes a pending row once a definitive outcome was observed.
func (s *PendingStore) Resolve(ctx context.Context, idempotencyKey string) error {
	return s.db.WithContext(ctx).
		Where("idempotency_key = ?", idempotencyKey).
		Delete(&PendingRedemption{}).
		Error
}

// List returns the attempts whose outcome was never observed, oldest first.
func (s *PendingStore) List(ctx context.Context, userID string) ([]*PendingRedemption, error) {
	var rows []*PendingRedemption
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Request decodes the persisted redeem request of a pending row.
func (r *PendingRedemption) Request() (RedeemRequest, error) {
	var req RedeemRequest
	if err := json.Unmarshal(r.Payload, &req); err != nil {
		return RedeemRequest{}, fmt.Errorf("failed to decode pending payload: %w", err)
	}
	return req, nil
}
