package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedeemDuration tracks the latency of redemption round-trips.
	RedeemDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redemption_redeem_duration_seconds",
			Help:    "Duration of redeem requests in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"status"}, // success or failure
	)

	// RedeemRetries counts wire retries of a single logical attempt.
	RedeemRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redemption_redeem_retries_total",
		Help: "Retried redeem attempts reusing the same idempotency key",
	})

	// ActiveRedemptions tracks the size of the visible active set.
	ActiveRedemptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redemption_active_total",
		Help: "Active redemptions currently tracked",
	})

	// CountdownExpiries counts locally fired countdown expiries.
	CountdownExpiries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redemption_countdown_expiries_total",
		Help: "Countdown expiry notifications fired",
	})

	// FeedResubscribes counts push-feed reconnect attempts.
	FeedResubscribes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redemption_feed_resubscribes_total",
		Help: "Push feed resubscription attempts after a drop",
	})

	// FeedBatches counts delivered snapshot batches.
	FeedBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redemption_feed_batches_total",
		Help: "Snapshot batches delivered by the push feed",
	})
)

// RecordRedeemDuration records the duration of one logical redeem attempt.
func RecordRedeemDuration(status string, duration float64) {
	RedeemDuration.WithLabelValues(status).Observe(duration)
}
