package reservation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"tablerewards-client/pkg/config"
	"tablerewards-client/pkg/errutil"
	"tablerewards-client/pkg/timeparse"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Reservation is one table booking owned by the signed-in user.
type Reservation struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	PartySize  int            `json:"partySize"`
	Status     string         `json:"status"`
	ReservedAt timeparse.Time `json:"reservedAt"`
}

// Client manages the user's own reservations. Cancelling is a status patch,
// not a delete; the backend keeps the record for its own bookkeeping.
type Client struct {
	httpc   *http.Client
	baseURL string
	token   string
	userID  string
}

type ClientParams struct {
	fx.In
	Cfg *config.Config
}

func NewClient(p ClientParams) *Client {
	return &Client{
		httpc:   &http.Client{Timeout: p.Cfg.API.Timeout},
		baseURL: strings.TrimRight(p.Cfg.API.BaseURL, "/"),
		token:   p.Cfg.User.Token,
		userID:  p.Cfg.User.ID,
	}
}

// ListMine fetches the user's reservations.
func (c *Client) ListMine(ctx context.Context) ([]Reservation, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reservations/mine", nil)
	if err != nil {
		return nil, errutil.Internal("failed to build request", errutil.WithErr(err))
	}

	var out struct {
		Reservations []Reservation `json:"reservations"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if out.Reservations == nil {
		return []Reservation{}, nil
	}
	return out.Reservations, nil
}

// Cancel marks one of the user's reservations cancelled.
func (c *Client) Cancel(ctx context.Context, reservationID string) error {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if c.token == "" {
		return errutil.Unauthorized("Please sign in to manage reservations")
	}
	if reservationID == "" {
		return errutil.BadRequest("reservation id is required")
	}

	body, err := json.Marshal(map[string]string{"status": "cancelled"})
	if err != nil {
		return errutil.Internal("failed to encode request", errutil.WithErr(err))
	}

	path := "/reservations/mine/" + url.PathEscape(reservationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errutil.Internal("failed to build request", errutil.WithErr(err))
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, nil); err != nil {
		zap.L().Error("failed to cancel reservation",
			zap.String("reservation_id", reservationID),
			zap.Error(err),
		)
		return err
	}

	zap.L().Info("reservation cancelled", zap.String("reservation_id", reservationID))
	return nil
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
		return errutil.Unauthorized("Please sign in to manage reservations")
	case resp.StatusCode == http.StatusNotFound:
		return errutil.NotFound("Reservation not found")
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

	var er struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &er); err != nil {
		return ""
	}
	if er.Error != "" {
		return er.Error
	}
	return er.Message
}
