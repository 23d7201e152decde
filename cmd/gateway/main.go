// Command gateway boots the request-plane core: it loads configuration,
// constructs every component behind a single Gateway state value, and serves
// the §6 wire surface until an interrupt or terminate signal arrives.
// Grounded on CedrosPay-server's cmd/server/main.go bootstrap shape (load
// config → build logger → construct dependencies → serve → graceful
// shutdown via lifecycle.Manager).
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/cedros-gateway/gateway/internal/config"
	"github.com/cedros-gateway/gateway/internal/gateway"
)

func main() {
	configPath := flag.String("config", os.Getenv("GATEWAY_CONFIG"), "path to the gateway's YAML configuration file")
	flag.Parse()

	// Local-dev convenience only; a real deployment injects environment
	// variables directly and .env is typically absent.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("gateway.config_load_failed")
	}

	registry := prometheus.NewRegistry()

	gw, err := gateway.New(cfg, registry)
	if err != nil {
		log.Fatal().Err(err).Msg("gateway.construction_failed")
	}
	log.Logger = gw.Logger
	defer func() {
		if err := gw.Close(); err != nil {
			log.Error().Err(err).Msg("gateway.shutdown_cleanup_failed")
		}
	}()

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      gw.NewRouter(registry),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("gateway.listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		log.Info().Msg("gateway.shutdown_signal_received")
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("gateway.listen_failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("gateway.graceful_shutdown_failed")
	}
}
