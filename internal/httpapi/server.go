package httpapi

import (
	"context"
	"net/http"
	"time"

	"tablerewards-client/pkg/clock"
	"tablerewards-client/pkg/config"
	"tablerewards-client/services/balance"
	"tablerewards-client/services/countdown"
	"tablerewards-client/services/tracker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Server exposes the local diagnostics surface: health, the current active
// set with live countdowns, and Prometheus metrics. It binds loopback only;
// nothing here is meant to leave the device.
type Server struct {
	server *http.Server
}

type Params struct {
	fx.In

	Cfg     *config.Config
	Tracker *tracker.Tracker
	Balance *balance.Watcher
	Clock   clock.Clock
}

func NewServer(p Params) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/debug/redemptions", func(c *gin.Context) {
		now := p.Clock.Now()
		active := p.Tracker.Active()

		type entry struct {
			RedemptionCode string    `json:"redemptionCode"`
			RewardTitle    string    `json:"rewardTitle"`
			PointsDeducted int64     `json:"pointsDeducted"`
			RedeemedAt     time.Time `json:"redeemedAt"`
			ExpiresAt      time.Time `json:"expiresAt"`
			Remaining      string    `json:"remaining"`
			Urgency        string    `json:"urgency"`
		}

		out := make([]entry, 0, len(active))
		for _, r := range active {
			remaining := r.ExpiresAt.Sub(now)
			out = append(out, entry{
				RedemptionCode: r.RedemptionCode,
				RewardTitle:    r.RewardTitle,
				PointsDeducted: r.PointsDeducted,
				RedeemedAt:     r.RedeemedAt,
				ExpiresAt:      r.ExpiresAt,
				Remaining:      countdown.Format(remaining),
				Urgency:        countdown.UrgencyFor(remaining).String(),
			})
		}

		resp := gin.H{"redemptions": out}
		if bal, ok := p.Balance.Current(); ok {
			resp["pointsBalance"] = bal
		}
		c.JSON(http.StatusOK, resp)
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Server{
		server: &http.Server{
			Addr:         p.Cfg.Diag.Addr,
			Handler:      r,
			ReadTimeout:  p.Cfg.Diag.ReadTimeout,
			WriteTimeout: p.Cfg.Diag.WriteTimeout,
			IdleTimeout:  p.Cfg.Diag.IdleTimeout,
		},
	}
}

func Run(lc fx.Lifecycle, srv *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			zap.L().Info("starting diagnostics server", zap.String("addr", srv.server.Addr))
			go func() {
				if err := srv.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					zap.L().Error("diagnostics server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			zap.L().Info("shutting down diagnostics server")
			return srv.server.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("httpapi",
	fx.Provide(NewServer),
	fx.Invoke(Run),
)
