// notifier subscribes to refactor.complete and refactor.failed and posts a
// summary of each async job to a Telegram chat, with the refactored code
// attached as a document.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/synapse-ai/synapse/shared/config"
	"github.com/synapse-ai/synapse/shared/events"
	"github.com/synapse-ai/synapse/shared/mq"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
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

	broker, err := mq.New(ctx, cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("mq connect")
	}
	defer broker.Close()

	deliveries, err := broker.Subscribe("svc.notifier", events.RefactorComplete, events.RefactorFailed)
	if err != nil {
		log.Fatal().Err(err).Msg("subscribe")
	}

	n := &notifier{
		api:   telegramAPI,
		token: cfg.TelegramToken,
		chat:  cfg.TelegramChat,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
	log.Info().Bool("telegram", n.enabled()).Msg("notifier service started")

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if err := n.handle(ctx, d.RoutingKey, d.Body); err != nil {
				log.Error().Err(err).Msg("notify error")
				d.Nack(false, false)
			} else {
				d.Ack(false)
			}
		}
	}
}
