package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/nikworkspace/anyshare/internal/adapters/signal"
	"github.com/nikworkspace/anyshare/internal/app"
	"github.com/nikworkspace/anyshare/internal/config"
)

func SetupRouter(ctx context.Context, cfg *config.Config, lc *app.Lifecycle, relay *signal.Relay) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := NewSessionHandlers(lc)

	api := r.Group("/api/v1")
	api.POST("/sessions", h.Create)
	api.GET("/sessions/:id", h.Info)
	api.POST("/sessions/:id/join", h.Join)
	api.DELETE("/sessions/:id", h.Close)

	api.GET("/ws/signal", func(c *gin.Context) {
		relay.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
