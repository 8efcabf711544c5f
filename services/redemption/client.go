package redemption

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tablerewards-client/pkg/clock"
	"tablerewards-client/pkg/config"
	"tablerewards-client/pkg/errutil"
	"tablerewards-client/pkg/metrics"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Client performs the redemption side effect exactly once per user intent
// against the loyalty backend, and fetches the item choices for a reward
// tier. It never touches timers or the active set; results are handed to the
// tracker through the feed.
type Client struct {
	httpc   *http.Client
	baseURL string
	token   string
	userID  string

	maxRetries   int
	retryBackoff time.Duration

	pending *PendingStore
	clk     clock.Clock
	group   singleflight.Group
}

type ClientParams struct {
	fx.In
	Cfg     *config.Config
	Pending *PendingStore
}

func NewClient(p ClientParams) *Client {
	return &Client{
		httpc:        &http.Client{Timeout: p.Cfg.API.Timeout},
		baseURL:      strings.TrimRight(p.Cfg.API.BaseURL, "/"),
		token:        p.Cfg.User.Token,
		userID:       p.Cfg.User.ID,
		maxRetries:   p.Cfg.API.MaxRetries,
		retryBackoff: p.Cfg.API.RetryBackoff,
		pending:      p.Pending,
		clk:          clock.System(),
	}
}

// FetchEligibleItems lists the selectable items for a reward tier. The tier
// id takes precedence over the points threshold when both are present. An
// empty list with HTTP 200 is a valid outcome, not an error; the caller
// falls back to a generic confirmation.
func (c *Client) FetchEligibleItems(ctx context.Context, pointsRequired int64, tierID string) ([]EligibleItem, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	path := fmt.Sprintf("/reward-tier-items/%d", pointsRequired)
	if tierID != "" {
		path = "/reward-tier-items/by-id/" + url.PathEscape(tierID)
	}

	var out eligibleItemsResponse
	if err := c.getJSON(ctx, path, &out); err != nil {
		zap.L().Error("failed to fetch eligible items",
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	if out.EligibleItems == nil {
		return []EligibleItem{}, nil
	}
	return out.EligibleItems, nil
}

// Redeem performs one logical redemption attempt. A fresh idempotency key is
// generated per user tap and persisted before the first wire attempt;
// automatic retries of the same attempt reuse that key, so the backend
// deducts points at most once however many physical requests arrive.
// Concurrent duplicate taps collapse into a single in-flight attempt.
func (c *Client) Redeem(ctx context.Context, req RedeemRequest) (*RedemptionResult, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if req.UserID == "" {
		req.UserID = c.userID
	}
	if req.UserID == "" || c.token == "" {
		return nil, errutil.Unauthorized("Please sign in to redeem rewards")
	}

	v, err, _ := c.group.Do(flightKey(req), func() (interface{}, error) {
		row, err := c.pending.Create(ctx, req)
		if err != nil {
			return nil, errutil.Internal("failed to persist redemption attempt", errutil.WithErr(err))
		}
		return c.drive(ctx, row.IdempotencyKey, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*RedemptionResult), nil
}

// ResumePending re-drives attempts whose outcome was never observed, e.g.
// because the app was killed mid-request. Each resumes with its persisted
// idempotency key.
func (c *Client) ResumePending(ctx context.Context) {
	rows, err := c.pending.List(ctx, c.userID)
	if err != nil {
		zap.L().Error("failed to list pending redemptions", zap.Error(err))
		return
	}

	for _, row := range rows {
		req, err := row.Request()
		if err != nil {
			zap.L().Error("discarding undecodable pending redemption",
				zap.String("idempotency_key", row.IdempotencyKey),
				zap.Error(err),
			)
			_ = c.pending.Resolve(ctx, row.IdempotencyKey)
			continue
		}

		zap.L().Info("resuming interrupted redemption",
			zap.String("idempotency_key", row.IdempotencyKey),
			zap.String("reward_title", req.RewardTitle),
		)

		if _, err := c.drive(ctx, row.IdempotencyKey, req); err != nil {
			zap.L().Warn("resumed redemption did not complete",
				zap.String("idempotency_key", row.IdempotencyKey),
				zap.Error(err),
			)
		}
	}
}

// CancelRedemption asks the backend to cancel an unconsumed redemption.
// Cancellability is reward-type-dependent; the backend's answer is final.
func (c *Client) CancelRedemption(ctx context.Context, redemptionCode string) error {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	payload := map[string]string{
		"userId":         c.userID,
		"redemptionCode": redemptionCode,
	}

	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message,omitempty"`
		Error   string `json:"error,omitempty"`
	}
	if err := c.postJSON(ctx, "/cancel-redemption", payload, &out); err != nil {
		return err
	}

	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = out.Message
		}
		if msg == "" {
			msg = "This reward cannot be cancelled"
		}
		return errutil.TerminalServer(msg)
	}

	return nil
}

func (c *Client) drive(ctx context.Context, idempotencyKey string, req RedeemRequest) (*RedemptionResult, error) {
	start := time.Now()
	status := "failure"
	defer func() {
		metrics.RecordRedeemDuration(status, time.Since(start).Seconds())
	}()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryBackoff
	bo.MaxInterval = 10 * time.Second

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.RedeemRetries.Inc()
			select {
			case <-time.After(bo.NextBackOff()):
			case <-ctx.Done():
				return nil, errutil.Transient("redeem interrupted", errutil.WithErr(ctx.Err()))
			}
		}

		if err := c.pending.Touch(ctx, idempotencyKey); err != nil {
			zap.L().Warn("failed to record redeem attempt", zap.Error(err))
		}

		res, err := c.postRedeem(ctx, idempotencyKey, req)
		if err == nil {
			status = "success"
			if rerr := c.pending.Resolve(ctx, idempotencyKey); rerr != nil {
				zap.L().Warn("failed to resolve pending redemption", zap.Error(rerr))
			}
			return res, nil
		}

		lastErr = err
		if !errutil.Retryable(err) {
			// Definitive rejection; this key will never deduct points.
			_ = c.pending.Resolve(ctx, idempotencyKey)
			return nil, err
		}

		zap.L().Warn("redeem attempt failed, will retry with same idempotency key",
			zap.String("idempotency_key", idempotencyKey),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	// Outcome unknown: the pending row stays so a later resume reuses the key.
	return nil, lastErr
}

func (c *Client) postRedeem(ctx context.Context, idempotencyKey string, req RedeemRequest) (*RedemptionResult, error) {
	var out redeemResponse
	if err := c.postJSON(ctx, "/redeem-reward", redeemPayload{RedeemRequest: req, IdempotencyKey: idempotencyKey}, &out); err != nil {
		return nil, err
	}

	if !out.Success || out.RedemptionCode == "" {
		msg := out.Error
		if msg == "" {
			msg = out.Message
		}
		if msg != "" {
			return nil, errutil.TerminalServer(msg)
		}
		return nil, errutil.MalformedResponse("redeem response missing code")
	}

	expiresAt := out.ExpiresAt.Time
	if expiresAt.IsZero() {
		expiresAt = c.clk.Now().Add(defaultExpiryWindow)
		zap.L().Warn("redeem response missing expiry, applying default window",
			zap.String("redemption_code", out.RedemptionCode),
			zap.Duration("window", defaultExpiryWindow),
		)
	}

	return &RedemptionResult{
		RedemptionCode:   out.RedemptionCode,
		NewPointsBalance: out.NewPointsBalance,
		PointsDeducted:   out.PointsDeducted,
		RewardTitle:      out.RewardTitle,
		SelectedItemName: out.SelectedItemName,
		ExpiresAt:        expiresAt,
		Message:          out.Message,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errutil.Internal("failed to build request", errutil.WithErr(err))
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errutil.Internal("failed to encode request", errutil.WithErr(err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errutil.Internal("failed to build request", errutil.WithErr(err))
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errutil.Transient("backend unreachable", errutil.WithErr(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errutil.MalformedResponse("unexpected response payload", errutil.WithErr(err))
	}
	return nil
}

func classifyStatus(resp *http.Response) error {
	msg := serverMessage(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errutil.Unauthorized("Please sign in to redeem rewards")
	case resp.StatusCode >= 500:
		if msg == "" {
			msg = fmt.Sprintf("backend returned %d", resp.StatusCode)
		}
		return errutil.Transient(msg)
	default:
		if msg == "" {
			msg = "The backend rejected this request"
		}
		return errutil.TerminalServer(msg)
	}
}

func serverMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 1<<16))
	if err != nil {
		return ""
	}

	var er errorResponse
	if err := json.Unmarshal(raw, &er); err != nil {
		return ""
	}
	if er.Error != "" {
		return er.Error
	}
	return er.Message
}

func flightKey(req RedeemRequest) string {
	return strings.Join([]string{
		req.UserID,
		req.RewardTitle,
		req.RewardCategory,
		req.SelectedItemID,
		req.SelectedDrinkItemID,
	}, "|")
}
