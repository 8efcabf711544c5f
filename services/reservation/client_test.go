package reservation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tablerewards-client/pkg/config"
	"tablerewards-client/pkg/errutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestClient(baseURL string) *Client {
	cfg := &config.Config{}
	cfg.API.BaseURL = baseURL
	cfg.API.Timeout = 2 * time.Second
	cfg.User.ID = "user-1"
	cfg.User.Token = "test-token"
	return NewClient(ClientParams{Cfg: cfg})
}

func TestCancelPatchesStatus(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.Cancel(context.Background(), "res-42"))

	require.Equal(t, http.MethodPatch, gotMethod)
	require.Equal(t, "/reservations/mine/res-42", gotPath)
	require.Equal(t, "Bearer test-token", gotAuth)
	require.Equal(t, map[string]string{"status": "cancelled"}, gotBody)
}

func TestCancelRequiresToken(t *testing.T) {
	cfg := &config.Config{}
	cfg.API.BaseURL = "http://127.0.0.1:0"
	cfg.API.Timeout = time.Second
	c := NewClient(ClientParams{Cfg: cfg})

	err := c.Cancel(context.Background(), "res-42")
	require.Equal(t, errutil.StatusUnauthorized, errutil.StatusOf(err))
}

func TestCancelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Cancel(context.Background(), "missing")
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}

func TestCancelServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Cancel(context.Background(), "res-42")
	require.True(t, errutil.Retryable(err))
}

func TestCancelRejectionSurfacesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": "Reservation starts in under an hour and can no longer be cancelled",
		})
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Cancel(context.Background(), "res-42")
	require.Equal(t, errutil.StatusTerminalServer, errutil.StatusOf(err))
	require.Equal(t, "Reservation starts in under an hour and can no longer be cancelled", errutil.UserMessage(err))
}

func TestListMineEmptyIsNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/reservations/mine", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"reservations": nil})
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).ListMine(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}
