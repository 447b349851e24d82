package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synapse-ai/synapse/shared/refactor"
)

func TestWrapUnwrap(t *testing.T) {
	code := "console.log(1);\nconst a = 1;"
	in := RefactorCompletePayload{
		JobID:     "job-1",
		Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Code:      code,
		Analysis: refactor.Analysis{
			Result: refactor.Fallback(code, refactor.Preferences{}),
			Source: refactor.SourceHeuristic,
		},
	}

	raw, err := Wrap(RefactorComplete, in)
	require.NoError(t, err)

	env, err := UnwrapEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, RefactorComplete, env.RoutingKey)
	assert.NotEmpty(t, env.ID)
	assert.WithinDuration(t, time.Now(), env.Timestamp, time.Minute)

	out, err := Unwrap[RefactorCompletePayload](raw)
	require.NoError(t, err)
	assert.Equal(t, in, *out)
}

func TestWrapUsesFreshIDs(t *testing.T) {
	a, err := Wrap(LogEvent, LogEventPayload{Message: "x"})
	require.NoError(t, err)
	b, err := Wrap(LogEvent, LogEventPayload{Message: "x"})
	require.NoError(t, err)

	ea, _ := UnwrapEnvelope(a)
	eb, _ := UnwrapEnvelope(b)
	assert.NotEqual(t, ea.ID, eb.ID)
}

func TestUnwrapGarbage(t *testing.T) {
	_, err := Unwrap[RefactorRequestedPayload]([]byte("not json"))
	assert.Error(t, err)
}

func TestSubmissionWireNames(t *testing.T) {
	raw := []byte(`{"id":"1","routing_key":"refactor.requested","payload":{"job_id":"j","submission":{"code":"x","language":"typescript","preferences":{"useTypescript":true},"model":"m"}}}`)

	p, err := Unwrap[RefactorRequestedPayload](raw)
	require.NoError(t, err)
	assert.Equal(t, "j", p.JobID)
	assert.Equal(t, refactor.Submission{
		Code:        "x",
		Language:    "typescript",
		Preferences: refactor.Preferences{UseTypescript: true},
		Model:       "m",
	}, p.Submission)
}
