package feed

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestSnapshotDecodeMixedExpiryShapes(t *testing.T) {
	docs := []string{
		`{"docId":"d1","userId":"u1","redemptionCode":"A1B2","rewardTitle":"Free Dessert","pointsDeducted":150,"redeemedAt":"2026-08-30T12:00:00Z","expiresAt":"2026-08-30T12:15:00.250Z","isUsed":false,"isExpired":false}`,
		`{"docId":"d2","userId":"u1","redemptionCode":"C3D4","rewardTitle":"Free Drink","pointsDeducted":100,"redeemedAt":"2026-08-30T12:05:00Z","expiresAt":1787660100,"isUsed":false,"isExpired":false}`,
	}

	for _, raw := range docs {
		var snap Snapshot
		require.NoError(t, json.Unmarshal([]byte(raw), &snap))
		require.NotEmpty(t, snap.RedemptionCode)
		require.False(t, snap.ExpiresAt.IsZero())
	}
}

func TestSnapshotActivePredicate(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	snap := Snapshot{RedemptionCode: "A1B2"}
	snap.ExpiresAt.Time = now.Add(10 * time.Minute)
	require.True(t, snap.Active(now))

	used := snap
	used.IsUsed = true
	require.False(t, used.Active(now))

	expired := snap
	expired.IsExpired = true
	require.False(t, expired.Active(now))

	past := snap
	past.ExpiresAt.Time = now.Add(-time.Second)
	require.False(t, past.Active(now))
}

func TestSnapshotFlagsWinOverTimestamp(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	// Server says expired even though the local clock disagrees.
	snap := Snapshot{RedemptionCode: "A1B2", IsExpired: true}
	snap.ExpiresAt.Time = now.Add(time.Hour)
	require.False(t, snap.Active(now))
}
