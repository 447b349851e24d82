// worker subscribes to refactor.requested, runs the analysis pipeline
// (syntax gate → LLM routes → heuristics) and publishes refactor.complete
// or refactor.failed. Progress is emitted as log.event for the activity feed.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/synapse-ai/synapse/shared/config"
	"github.com/synapse-ai/synapse/shared/events"
	"github.com/synapse-ai/synapse/shared/llm"
	"github.com/synapse-ai/synapse/shared/mq"
	"github.com/synapse-ai/synapse/shared/refactor"
	"golang.org/x/sync/errgroup"
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
	if cfg.AMQPURL == "" {
		log.Fatal().Str("key", "AMQP_URL").Msg("required env var missing")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigs; cancel() }()

	dispatcher, err := llm.New(cfg.LLM())
	if err != nil {
		log.Fatal().Err(err).Msg("llm routes")
	}
	opts := []refactor.Option{refactor.WithDispatcher(dispatcher)}
	if !cfg.SyntaxGate {
		opts = append(opts, refactor.WithoutSyntaxGate())
	}

	broker, err := mq.New(ctx, cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("mq connect")
	}
	defer broker.Close()

	deliveries, err := broker.Subscribe("svc.refactor", events.RefactorRequested)
	if err != nil {
		log.Fatal().Err(err).Msg("subscribe")
	}

	w := &worker{engine: refactor.NewEngine(opts...), pub: broker}
	log.Info().
		Int("workers", cfg.Workers).
		Int("routes", len(dispatcher.Routes())).
		Msg("refactor worker started")

	// Fan-out: several goroutines read from the same queue
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Workers; i++ {
		g.Go(func() error {
			w.loop(ctx, deliveries)
			return nil
		})
	}
	_ = g.Wait()
}
