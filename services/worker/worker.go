package main

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"github.com/synapse-ai/synapse/shared/events"
	"github.com/synapse-ai/synapse/shared/refactor"
)

type publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

type analyzer interface {
	Analyze(ctx context.Context, s refactor.Submission) (refactor.Analysis, error)
}

type worker struct {
	engine analyzer
	pub    publisher
	now    func() time.Time
}

func (w *worker) loop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if err := w.handle(ctx, d.Body); err != nil {
				log.Error().Err(err).Msg("refactor error")
				d.Nack(false, !d.Redelivered)
			} else {
				d.Ack(false)
			}
		}
	}
}

// handle returns an error only when the outcome could not be published;
// analysis failures are reported as refactor.failed and acked.
func (w *worker) handle(ctx context.Context, body []byte) error {
	p, err := events.Unwrap[events.RefactorRequestedPayload](body)
	if err != nil {
		// a payload that does not decode will never decode; drop it
		log.Error().Err(err).Msg("bad refactor.requested payload")
		return nil
	}

	log.Info().
		Str("job", p.JobID).
		Str("lang", string(p.Submission.Lang())).
		Int("bytes", len(p.Submission.Code)).
		Msg("analysing")
	w.emitLog(ctx, p.JobID, "info", "analyse", "Analysis started", nil)

	a, err := w.engine.Analyze(ctx, p.Submission)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.emitLog(ctx, p.JobID, "error", "analyse", "Analysis failed", nil)
		return w.publish(ctx, events.RefactorFailed, events.RefactorFailedPayload{
			JobID: p.JobID, Error: err.Error(),
		})
	}

	w.emitLog(ctx, p.JobID, "success", "analyse",
		fmt.Sprintf("Analysis complete: %s", a.SmellDetected),
		map[string]any{"source": a.Source, "route": a.Route})

	return w.publish(ctx, events.RefactorComplete, events.RefactorCompletePayload{
		JobID:     p.JobID,
		Origin:    events.OriginJob,
		Timestamp: w.clock().UTC(),
		Code:      p.Submission.Code,
		Analysis:  a,
	})
}

func (w *worker) publish(ctx context.Context, routingKey string, payload any) error {
	b, err := events.Wrap(routingKey, payload)
	if err != nil {
		return err
	}
	return w.pub.Publish(ctx, routingKey, b)
}

func (w *worker) emitLog(ctx context.Context, jobID, level, step, message string, data map[string]any) {
	_ = w.publish(ctx, events.LogEvent, events.LogEventPayload{
		JobID:   jobID,
		Level:   level,
		Step:    step,
		Message: message,
		Data:    data,
	})
}

func (w *worker) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now()
}
