// Package events defines the message contract published on RabbitMQ.
// The gateway and the refactor workers talk only through these payloads.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/synapse-ai/synapse/shared/refactor"
)

// ── Routing keys (RabbitMQ topic exchange: synapse.events) ───────────────────
const (
	RefactorRequested = "refactor.requested"
	RefactorComplete  = "refactor.complete"
	RefactorFailed    = "refactor.failed"
	LogEvent          = "log.event"
)

// ── Envelope wraps every message ─────────────────────────────────────────────

type Envelope struct {
	ID         string          `json:"id"`
	RoutingKey string          `json:"routing_key"`
	Timestamp  time.Time       `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func Wrap(routingKey string, payload any) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		ID:         uuid.New().String(),
		RoutingKey: routingKey,
		Timestamp:  time.Now(),
		Payload:    p,
	})
}

func Unwrap[T any](raw []byte) (*T, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	var t T
	return &t, json.Unmarshal(env.Payload, &t)
}

func UnwrapEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	return &env, json.Unmarshal(raw, &env)
}

// ── Payload types ─────────────────────────────────────────────────────────────

type RefactorRequestedPayload struct {
	JobID      string              `json:"job_id"`
	Submission refactor.Submission `json:"submission"`
}

// Origin of a refactor.complete result.
const (
	OriginJob = "job" // queued via refactor.requested and run by a worker
	OriginAPI = "api" // answered synchronously by the gateway
)

type RefactorCompletePayload struct {
	JobID     string            `json:"job_id"`
	Origin    string            `json:"origin,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Code      string            `json:"code"`
	Analysis  refactor.Analysis `json:"analysis"`
}

type RefactorFailedPayload struct {
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

type LogEventPayload struct {
	JobID   string         `json:"job_id"`
	Level   string         `json:"level"`
	Step    string         `json:"step"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}
