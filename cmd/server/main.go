package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/nikworkspace/anyshare/internal/adapters/http"
	relayws "github.com/nikworkspace/anyshare/internal/adapters/signal"
	"github.com/nikworkspace/anyshare/internal/app"
	"github.com/nikworkspace/anyshare/internal/config"
	"github.com/nikworkspace/anyshare/internal/registry"
	"github.com/nikworkspace/anyshare/internal/roomcode"
	"github.com/nikworkspace/anyshare/internal/storage"
	"github.com/nikworkspace/anyshare/internal/token"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Secret == "" {
		log.Fatal().Msg("token secret is not configured")
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init storage")
	}

	reg := registry.New(store)
	tokens := token.NewService(cfg.Secret)
	codes := roomcode.NewGenerator()

	lifecycle := app.NewLifecycle(reg, codes, tokens, cfg.SessionTTL, cfg.MaxPeers, cfg.RelayURL)
	relay := relayws.NewRelay(reg, tokens, lifecycle, cfg.ReadLimit, cfg.PingPeriod)

	janitor := &app.Janitor{Lifecycle: lifecycle, Interval: cfg.SweepInterval}
	go janitor.Run(ctx)

	r := router.SetupRouter(ctx, cfg, lifecycle, relay)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("storage", cfg.Storage.Backend).Msg("AnyShare server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

func newStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "dynamodb":
		return storage.NewDynamoStore(ctx, cfg.Storage.Table)
	default:
		return storage.NewMemoryStore(), nil
	}
}
