package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/relaycore/nostrd/internal/config"
	"github.com/relaycore/nostrd/internal/keystore"
	"github.com/relaycore/nostrd/internal/kvstore"
	"github.com/relaycore/nostrd/internal/pool"
	"github.com/relaycore/nostrd/internal/substore"
	"github.com/relaycore/nostrd/internal/wire"
)

const banner = `
   _ __   ___  ___| |_ _ __ ___| | (_) ___ _ __ | |_
  | '_ \ / _ \/ __| __| '__/ __| | | |/ _ \ '_ \| __|
  | | | | (_) \__ \ |_| | | (__| | | |  __/ | | | |_
  |_| |_|\___/|___/\__|_|  \___|_|_|_|\___|_| |_|\__|

    Nostr-style multi-relay client
`

func main() {
	setupLogging()
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if err := os.MkdirAll(cfg.Client.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create client data directory")
	}
	store, err := kvstore.Open(filepath.Join(cfg.Client.DataDir, "client.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open client store")
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	keys := keystore.New(store)
	kp, err := keys.GetOrCreate(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to obtain identity key pair")
	}
	log.Info().Str("pubkey", kp.PublicKeyHex).Msg("identity ready")

	subs := substore.New(store)
	p := pool.New()

	for _, url := range cfg.Client.Relays {
		if err := p.AddRelay(url); err != nil {
			log.Warn().Err(err).Str("url", url).Msg("failed to register relay")
			continue
		}
		if err := p.Connect(ctx, url); err != nil {
			log.Warn().Err(err).Str("url", url).Msg("failed to connect to relay")
			continue
		}
		log.Info().Str("url", url).Msg("connected to relay")
	}

	if err := subs.SubscribeToAllStoredRequests(ctx, p); err != nil {
		log.Warn().Err(err).Msg("failed to reissue stored subscriptions")
	}

	go func() {
		for frame := range p.Events() {
			logInboundFrame(frame)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")
	cancel()
	log.Info().Msg("client stopped")
}

func logInboundFrame(frame pool.InboundFrame) {
	switch msg := frame.Message.(type) {
	case wire.ServerEventMessage:
		log.Info().Str("relay", frame.RelayURL).Str("sub", msg.SubID).Str("id", msg.Event.ID).Msg("event received")
	case wire.EOSEMessage:
		log.Debug().Str("relay", frame.RelayURL).Str("sub", msg.SubID).Msg("end of stored events")
	case wire.NoticeMessage:
		log.Warn().Str("relay", frame.RelayURL).Str("notice", msg.Message).Msg("relay notice")
	case wire.OKMessage:
		log.Debug().Str("relay", frame.RelayURL).Str("id", msg.EventID).Bool("accepted", msg.Accepted).Str("message", msg.Message).Msg("publish acknowledged")
	}
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
