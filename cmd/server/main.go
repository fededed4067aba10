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

	router "github.com/mkraev/relay/internal/adapters/http"
	"github.com/mkraev/relay/internal/adapters/ws"
	"github.com/mkraev/relay/internal/app"
	"github.com/mkraev/relay/internal/config"
	"github.com/mkraev/relay/internal/domain"
	api "github.com/mkraev/relay/internal/transport/http"
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

	vocab, err := domain.NewVocabulary(cfg.Vocabulary)
	if err != nil {
		log.Fatal().Err(err).Msg("bad vocabulary config")
	}

	cache := app.NewSequenceCache(cfg.CacheTTL)
	history := app.NewHistoryLog(cfg.CacheTTL)
	registry := app.NewRegistry()
	registry.OnExpired(func(id domain.RoomID) {
		cache.Clear(id)
		history.Clear(id)
	})

	hub := ws.NewHub(app.SimplePolicy{})
	registry.BindTransport(hub)

	coord := &app.Coordinator{
		Vocab:     vocab,
		Registry:  registry,
		Cache:     cache,
		History:   history,
		Transport: hub,
	}

	ctl := ws.NewController(hub, registry, coord, cfg.ReadLimit, cfg.PingPeriod)
	r := router.SetupRouter(ctx, cfg, api.NewAPI(coord), ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("vocabulary", vocab.Name()).Msg("relay server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	registry.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
