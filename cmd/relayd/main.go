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

	"github.com/relaycore/nostrd/internal/adminapi"
	"github.com/relaycore/nostrd/internal/config"
	"github.com/relaycore/nostrd/internal/eventlog"
	"github.com/relaycore/nostrd/internal/kvstore"
	"github.com/relaycore/nostrd/internal/relay"
)

const banner = `
   _ __   ___  ___| |_ _ __ __| |
  | '_ \ / _ \/ __| __| '__/ _' |
  | | | | (_) \__ \ |_| | | (_| |
  |_| |_|\___/|___/\__|_|  \__,_|

    Nostr-style event relay
`

func main() {
	setupLogging()
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Info().Str("host", cfg.Relay.Host).Str("db", cfg.Database.Path).Msg("starting relay")

	store, err := kvstore.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open event store")
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evLog, err := eventlog.Open(ctx, store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open event log")
	}

	r, err := relay.New(ctx, evLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to replay event log")
	}

	wsServer := &http.Server{
		Addr:         cfg.Relay.Host,
		Handler:      r.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket connections are long-lived
		IdleTimeout:  60 * time.Second,
	}
	adminServer := &http.Server{
		Addr:         cfg.Relay.AdminHost,
		Handler:      adminapi.NewRouter(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", cfg.Relay.Host).Msg("websocket listener starting")
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("websocket listener failed")
		}
	}()
	go func() {
		log.Info().Str("address", cfg.Relay.AdminHost).Msg("admin listener starting")
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("admin listener failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("websocket listener forced to shutdown")
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("admin listener forced to shutdown")
	}

	log.Info().Msg("relay stopped")
}

func setupLogging() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	}
	log.Logger = zerolog.New(output).With().Timestamp().Caller().Logger()

	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
