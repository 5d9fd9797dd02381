package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/appthwack/thwack/internal/config"
	"github.com/appthwack/thwack/internal/observability"
	"github.com/appthwack/thwack/internal/thwackbin"
)

const defaultKey = "thwackbin"

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	logger := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = defaultKey
		logger.Warn().Str("key", apiKey).Msg("APPTHWACK_API_KEY not set, using the default key")
	}

	store := thwackbin.NewStore()
	if os.Getenv("THWACKBIN_EMPTY") != "true" {
		if err := thwackbin.Seed(store); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed store")
		}
	}
	store.AutoAdvance = os.Getenv("THWACKBIN_AUTO_ADVANCE") != "false"

	srv := thwackbin.NewServer(store, apiKey, *logger, observability.NewMetrics())
	httpServer := &http.Server{
		Addr:              cfg.ThwackbinAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	logger.Info().Str("addr", cfg.ThwackbinAddr).Bool("autoAdvance", store.AutoAdvance).Msg("starting thwackbin")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server failed")
	}
	logger.Info().Msg("server stopped")
}
