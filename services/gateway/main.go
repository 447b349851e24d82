// gateway is the public-facing HTTP service.
// It answers POST /api/analyze synchronously, queues async jobs on RabbitMQ
// (refactor.requested), stores every result in the SQLite history, and relays
// results and log.event messages to connected browsers over WebSocket.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/synapse-ai/synapse/services/gateway/internal"
	"github.com/synapse-ai/synapse/shared/config"
	"github.com/synapse-ai/synapse/shared/history"
	"github.com/synapse-ai/synapse/shared/llm"
	"github.com/synapse-ai/synapse/shared/mq"
	"github.com/synapse-ai/synapse/shared/refactor"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info().Msg("shutdown signal, stopping gateway")
		cancel()
	}()

	dispatcher, err := llm.New(cfg.LLM())
	if err != nil {
		log.Fatal().Err(err).Msg("llm routes")
	}
	opts := []refactor.Option{refactor.WithDispatcher(dispatcher)}
	if !cfg.SyntaxGate {
		opts = append(opts, refactor.WithoutSyntaxGate())
	}
	engine := refactor.NewEngine(opts...)

	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.HistoryDB).Msg("history db")
	}
	defer store.Close()

	// the queue is optional; without it /api/jobs answers 503
	var broker internal.Broker
	if cfg.AMQPURL != "" {
		b, err := mq.New(ctx, cfg.AMQPURL)
		if err != nil {
			log.Fatal().Err(err).Msg("mq connect")
		}
		defer b.Close()
		broker = b
	}

	printBanner()
	log.Info().
		Bool("queue", broker != nil).
		Int("routes", len(dispatcher.Routes())).
		Str("history", cfg.HistoryDB).
		Msg("gateway starting")

	gw := internal.New(cfg, engine, store, broker, dispatcher.Routes())
	if err := gw.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("gateway exited")
	}
}

func printBanner() {
	log.Info().Msg("╔══════════════════════════════════════╗")
	log.Info().Msg("║  SYNAPSE  Gateway                    ║")
	log.Info().Msg("║  Code in → refactor suggestion out   ║")
	log.Info().Msg("╚══════════════════════════════════════╝")
}
