package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"github.com/synapse-ai/synapse/shared/config"
	"github.com/synapse-ai/synapse/shared/events"
	"github.com/synapse-ai/synapse/shared/history"
	"github.com/synapse-ai/synapse/shared/llm"
	"github.com/synapse-ai/synapse/shared/refactor"
	"golang.org/x/sync/errgroup"
)

// Analyzer turns a submission into an analysis; *refactor.Engine satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, s refactor.Submission) (refactor.Analysis, error)
	Mode() string
}

// HistoryStore is the persistence the gateway needs; *history.Store satisfies it.
type HistoryStore interface {
	Save(ctx context.Context, r history.Record) error
	List(ctx context.Context, limit int) ([]history.Record, error)
	Get(ctx context.Context, id string) (history.Record, error)
}

// Broker is the subset of *mq.Broker the gateway uses.
type Broker interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
	Subscribe(queueName string, patterns ...string) (<-chan amqp.Delivery, error)
}

// Gateway serves the HTTP API and, when a broker is configured, relays
// worker results into history and the activity feed.
type Gateway struct {
	cfg     config.Config
	engine  Analyzer
	store   HistoryStore
	broker  Broker // nil runs the gateway without the async queue
	hub     *Hub
	limiter *clientLimiter
	routes  []llm.Route

	now   func() time.Time
	newID func() string
}

func New(cfg config.Config, engine Analyzer, store HistoryStore, broker Broker, routes []llm.Route) *Gateway {
	g := &Gateway{
		cfg:     cfg,
		engine:  engine,
		store:   store,
		broker:  broker,
		limiter: newClientLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		routes:  routes,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
	g.hub = NewHub(g.originAllowed)
	return g
}

// Run starts the feed hub, the HTTP server and the result consumers.
func (g *Gateway) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error { return g.hub.Run(ctx) })
	eg.Go(func() error { return g.serveAPI(ctx) })

	if g.broker != nil {
		subs := []struct {
			queue    string
			patterns []string
			handler  func(context.Context, amqp.Delivery) error
		}{
			{"gw.refactor.results", []string{events.RefactorComplete, events.RefactorFailed}, g.onResult},
			{"gw.log.relay", []string{"log.#"}, g.onLogRelay},
		}
		for _, sub := range subs {
			deliveries, err := g.broker.Subscribe(sub.queue, sub.patterns...)
			if err != nil {
				return fmt.Errorf("subscribe %s: %w", sub.queue, err)
			}
			handler := sub.handler
			eg.Go(func() error { return consume(ctx, deliveries, handler) })
		}
	}

	return eg.Wait()
}

// consume is the delivery loop shared by every subscription.
func consume(
	ctx context.Context,
	deliveries <-chan amqp.Delivery,
	handler func(context.Context, amqp.Delivery) error,
) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if err := handler(ctx, d); err != nil {
				log.Error().Err(err).Str("key", d.RoutingKey).Msg("handler error")
				d.Nack(false, !d.Redelivered) // one retry, then drop
			} else {
				d.Ack(false)
			}
		}
	}
}

// ── Event handlers ────────────────────────────────────────────────────────────

func (g *Gateway) onResult(ctx context.Context, d amqp.Delivery) error {
	switch d.RoutingKey {
	case events.RefactorFailed:
		p, err := events.Unwrap[events.RefactorFailedPayload](d.Body)
		if err != nil {
			return err
		}
		log.Warn().Str("job", p.JobID).Str("error", p.Error).Msg("refactor job failed")
		g.hub.BroadcastRaw(d.Body)
		return nil
	}

	p, err := events.Unwrap[events.RefactorCompletePayload](d.Body)
	if err != nil {
		return err
	}
	// results produced by this gateway are already stored and broadcast
	if _, err := g.store.Get(ctx, p.JobID); err == nil {
		return nil
	} else if !errors.Is(err, history.ErrNotFound) {
		return err
	}

	rec := history.NewRecord(p.JobID, p.Timestamp, p.Code, p.Analysis)
	if err := g.store.Save(ctx, rec); err != nil {
		return err
	}
	log.Info().Str("job", p.JobID).Str("smell", rec.Smell).Str("source", string(rec.Source)).Msg("refactor job stored")
	g.hub.BroadcastRaw(d.Body)
	return nil
}

// onLogRelay forwards worker progress to the feed. Bodies that are not an
// event envelope never reach browsers.
func (g *Gateway) onLogRelay(_ context.Context, d amqp.Delivery) error {
	env, err := events.UnwrapEnvelope(d.Body)
	if err != nil {
		return fmt.Errorf("log relay: %w", err)
	}
	if env.RoutingKey == "" || len(env.Payload) == 0 {
		return fmt.Errorf("log relay: incomplete envelope")
	}
	g.hub.BroadcastRaw(d.Body)
	return nil
}

func (g *Gateway) publish(ctx context.Context, routingKey string, payload any) error {
	b, err := events.Wrap(routingKey, payload)
	if err != nil {
		return err
	}
	return g.broker.Publish(ctx, routingKey, b)
}

func (g *Gateway) originAllowed(origin string) bool {
	for _, o := range g.cfg.CORSOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
