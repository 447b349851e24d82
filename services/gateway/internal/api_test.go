package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synapse-ai/synapse/shared/config"
	"github.com/synapse-ai/synapse/shared/events"
	"github.com/synapse-ai/synapse/shared/history"
	"github.com/synapse-ai/synapse/shared/llm"
	"github.com/synapse-ai/synapse/shared/refactor"
)

type published struct {
	key  string
	body []byte
}

type fakeBroker struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (b *fakeBroker) Publish(_ context.Context, key string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.msgs = append(b.msgs, published{key, body})
	return nil
}

func (b *fakeBroker) Subscribe(string, ...string) (<-chan amqp.Delivery, error) {
	return make(chan amqp.Delivery), nil
}

func (b *fakeBroker) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, m := range b.msgs {
		out = append(out, m.key)
	}
	return out
}

type failingAnalyzer struct{}

func (failingAnalyzer) Analyze(context.Context, refactor.Submission) (refactor.Analysis, error) {
	return refactor.Analysis{}, errors.New("boom")
}

func (failingAnalyzer) Mode() string { return "ai" }

func testConfig() config.Config {
	return config.Config{
		APIPort:           "0",
		LLMTimeout:        time.Second,
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		CORSOrigins:       []string{"*"},
	}
}

// newTestGateway wires a heuristic engine and a temp SQLite store with a
// deterministic clock and id sequence.
func newTestGateway(t *testing.T, cfg config.Config, broker Broker) (*Gateway, *history.Store) {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := refactor.NewEngine(refactor.WithLogger(zerolog.Nop()))
	g := New(cfg, engine, store, broker, llm.DefaultRoutes())

	var (
		mu  sync.Mutex
		seq int
	)
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	g.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return base.Add(time.Duration(seq) * time.Second)
	}
	ids := 0
	g.newID = func() string {
		ids++
		return fmt.Sprintf("id-%d", ids)
	}
	return g, store
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const loopSnippet = "for (var i=0;i<items.length;i++){t+=items[i].price}"

func TestAnalyzeHeuristic(t *testing.T) {
	g, store := newTestGateway(t, testConfig(), nil)

	body := fmt.Sprintf(`{"code": %q, "preferences": {"useTypescript": true}}`, loopSnippet)
	rec := do(t, g.Handler(), http.MethodPost, "/api/analyze", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decode[analyzeResponse](t, rec)
	assert.Equal(t, "id-1", resp.ID)
	assert.Equal(t, loopSnippet, resp.OriginalCode)
	assert.Equal(t, refactor.SourceHeuristic, resp.Source)
	assert.Equal(t, refactor.SmellImperativeLoop, resp.SmellDetected)
	assert.Contains(t, resp.RefactoredCode, "interface Item")
	assert.Equal(t, refactor.Metrics{ComplexityBefore: 8, ComplexityAfter: 2, MaintainabilityRating: refactor.RatingA, LinesSaved: 3}, resp.Metrics)

	raw := decode[map[string]any](t, rec)
	for _, k := range []string{"explanation", "smell_detected", "refactored_code", "metrics"} {
		assert.Contains(t, raw, k)
	}

	saved, err := store.Get(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, refactor.SmellImperativeLoop, saved.Smell)
	assert.Equal(t, loopSnippet[:50]+"...", saved.Snippet)
}

func TestAnalyzeInvalidInput(t *testing.T) {
	g, store := newTestGateway(t, testConfig(), nil)

	for _, body := range []string{
		`{}`,
		`{"code": ""}`,
		`{"code": "   "}`,
		`{"code": 42}`,
		`{"code": null}`,
		`not json`,
	} {
		rec := do(t, g.Handler(), http.MethodPost, "/api/analyze", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, map[string]string{"error": "Invalid input"}, decode[map[string]string](t, rec))
	}

	rows, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestAnalyzeSyntaxError(t *testing.T) {
	g, _ := newTestGateway(t, testConfig(), nil)

	rec := do(t, g.Handler(), http.MethodPost, "/api/analyze", `{"code": "function broken( {"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[analyzeResponse](t, rec)
	assert.Equal(t, refactor.SourceSyntax, resp.Source)
	assert.Equal(t, refactor.SmellSyntaxError, resp.SmellDetected)
	assert.Equal(t, refactor.RatingF, resp.Metrics.MaintainabilityRating)
}

func TestAnalyzeEngineFailure(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)
	defer store.Close()
	g := New(testConfig(), failingAnalyzer{}, store, nil, nil)

	rec := do(t, g.Handler(), http.MethodPost, "/api/analyze", `{"code": "const a = 1;"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]string{"error": "Processing failed."}, decode[map[string]string](t, rec))
}

func TestAnalyzePublishesWhenQueueConfigured(t *testing.T) {
	b := &fakeBroker{}
	g, _ := newTestGateway(t, testConfig(), b)

	rec := do(t, g.Handler(), http.MethodPost, "/api/analyze", `{"code": "const a = 1;"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{events.RefactorComplete}, b.keys())

	p, err := events.Unwrap[events.RefactorCompletePayload](b.msgs[0].body)
	require.NoError(t, err)
	assert.Equal(t, events.OriginAPI, p.Origin)
}

func TestHistory(t *testing.T) {
	g, _ := newTestGateway(t, testConfig(), nil)
	h := g.Handler()

	for _, code := range []string{"const first = 1;", "console.log('second');", "const third = 3;"} {
		body, _ := json.Marshal(map[string]string{"code": code})
		require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/analyze", string(body)).Code)
	}

	rows := decode[[]history.Record](t, do(t, h, http.MethodGet, "/api/history", ""))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id-3", "id-2", "id-1"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})
	assert.Equal(t, refactor.SmellDebugLeftovers, rows[1].Smell)

	limited := decode[[]history.Record](t, do(t, h, http.MethodGet, "/api/history?limit=1", ""))
	require.Len(t, limited, 1)
	assert.Equal(t, "id-3", limited[0].ID)

	item := do(t, h, http.MethodGet, "/api/history/id-2", "")
	require.Equal(t, http.StatusOK, item.Code)
	assert.Equal(t, "console.log('second');", decode[history.Record](t, item).OriginalCode)

	missing := do(t, h, http.MethodGet, "/api/history/nope", "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestHistoryEmptyIsArray(t *testing.T) {
	g, _ := newTestGateway(t, testConfig(), nil)
	rec := do(t, g.Handler(), http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	g, _ := newTestGateway(t, testConfig(), nil)

	rec := do(t, g.Handler(), http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[map[string]any](t, rec)
	assert.Equal(t, "online", st["status"])
	assert.Equal(t, "heuristic", st["mode"])
	assert.Equal(t, false, st["queue"])
	assert.Len(t, st["routes"], 4)
}

func TestCreateJob(t *testing.T) {
	t.Run("no queue", func(t *testing.T) {
		g, _ := newTestGateway(t, testConfig(), nil)
		rec := do(t, g.Handler(), http.MethodPost, "/api/jobs", `{"code": "const a = 1;"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("queued", func(t *testing.T) {
		b := &fakeBroker{}
		g, _ := newTestGateway(t, testConfig(), b)

		rec := do(t, g.Handler(), http.MethodPost, "/api/jobs", `{"code": "const a = 1;", "language": "ts", "model": "m"}`)
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, map[string]string{"job_id": "id-1", "status": "queued"}, decode[map[string]string](t, rec))

		require.Equal(t, []string{events.RefactorRequested}, b.keys())
		p, err := events.Unwrap[events.RefactorRequestedPayload](b.msgs[0].body)
		require.NoError(t, err)
		assert.Equal(t, "id-1", p.JobID)
		assert.Equal(t, refactor.Submission{Code: "const a = 1;", Language: "ts", Model: "m"}, p.Submission)
	})

	t.Run("invalid", func(t *testing.T) {
		b := &fakeBroker{}
		g, _ := newTestGateway(t, testConfig(), b)
		rec := do(t, g.Handler(), http.MethodPost, "/api/jobs", `{"code": 1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, b.keys())
	})

	t.Run("publish error", func(t *testing.T) {
		b := &fakeBroker{err: errors.New("channel closed")}
		g, _ := newTestGateway(t, testConfig(), b)
		rec := do(t, g.Handler(), http.MethodPost, "/api/jobs", `{"code": "const a = 1;"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRequests = 2
	cfg.RateLimitWindow = time.Hour
	g, _ := newTestGateway(t, cfg, nil)
	h := g.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/status", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/status", "").Code)

	rec := do(t, h, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests, please try again later.", decode[map[string]string](t, rec)["error"])

	// a different client has its own budget
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	other := httptest.NewRecorder()
	h.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code)

	// metrics are not limited
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/metrics", "").Code)
}

func TestRateLimitRefills(t *testing.T) {
	l := newClientLimiter(2, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))

	now = now.Add(30 * time.Second)
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
}

func TestCORS(t *testing.T) {
	g, _ := newTestGateway(t, testConfig(), nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/analyze", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	cfg := testConfig()
	cfg.CORSOrigins = []string{"https://synapse.dev"}
	g2, _ := newTestGateway(t, cfg, nil)

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	g2.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "https://synapse.dev")
	rec = httptest.NewRecorder()
	g2.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "https://synapse.dev", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestOnResultStoresWorkerResults(t *testing.T) {
	g, store := newTestGateway(t, testConfig(), &fakeBroker{})
	ctx := context.Background()

	code := "console.log(1);\nconst a = 1;"
	body, err := events.Wrap(events.RefactorComplete, events.RefactorCompletePayload{
		JobID:     "job-7",
		Timestamp: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
		Code:      code,
		Analysis:  refactor.Analysis{Result: refactor.Fallback(code, refactor.Preferences{}), Source: refactor.SourceHeuristic},
	})
	require.NoError(t, err)

	d := amqp.Delivery{RoutingKey: events.RefactorComplete, Body: body}
	require.NoError(t, g.onResult(ctx, d))
	require.NoError(t, g.onResult(ctx, d), "redelivery is a no-op")

	rows, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "job-7", rows[0].ID)
	assert.Equal(t, refactor.SmellDebugLeftovers, rows[0].Smell)

	failed, err := events.Wrap(events.RefactorFailed, events.RefactorFailedPayload{JobID: "job-8", Error: "boom"})
	require.NoError(t, err)
	require.NoError(t, g.onResult(ctx, amqp.Delivery{RoutingKey: events.RefactorFailed, Body: failed}))

	assert.Error(t, g.onResult(ctx, amqp.Delivery{RoutingKey: events.RefactorComplete, Body: []byte("{")}))
}

func TestActivityFeed(t *testing.T) {
	g, _ := newTestGateway(t, testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.hub.Run(ctx)

	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return g.hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(srv.URL+"/api/analyze", "application/json", strings.NewReader(`{"code": "const a = 1;"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	env, err := events.UnwrapEnvelope(msg)
	require.NoError(t, err)
	assert.Equal(t, events.RefactorComplete, env.RoutingKey)
	p, err := events.Unwrap[events.RefactorCompletePayload](msg)
	require.NoError(t, err)
	assert.Equal(t, "id-1", p.JobID)
	assert.Equal(t, refactor.SmellClean, p.Analysis.SmellDetected)
}

func TestActivityFeedKeepsIdleClients(t *testing.T) {
	g, _ := newTestGateway(t, testConfig(), nil)
	g.hub.pongWait = 150 * time.Millisecond
	g.hub.pingPeriod = 40 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.hub.Run(ctx)

	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	// reading lets the client answer pings; it never sends anything itself
	msgs := make(chan []byte, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				close(msgs)
				return
			}
			msgs <- msg
		}
	}()

	require.Eventually(t, func() bool { return g.hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(4 * g.hub.pongWait)
	require.Equal(t, 1, g.hub.Clients())

	g.hub.BroadcastRaw([]byte(`{"routing_key":"log.event"}`))
	select {
	case msg, ok := <-msgs:
		require.True(t, ok, "connection closed")
		assert.JSONEq(t, `{"routing_key":"log.event"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message after idle period")
	}
}

func TestOnLogRelayForwardsEnvelopesOnly(t *testing.T) {
	g, _ := newTestGateway(t, testConfig(), nil)
	ctx := context.Background()

	for _, body := range []string{"not json", `{"id":"x"}`, `{"routing_key":"log.event"}`} {
		assert.Error(t, g.onLogRelay(ctx, amqp.Delivery{RoutingKey: events.LogEvent, Body: []byte(body)}), body)
	}
	assert.Empty(t, g.hub.bc)

	body, err := events.Wrap(events.LogEvent, events.LogEventPayload{JobID: "job-1", Level: "info", Step: "dispatch", Message: "trying routes"})
	require.NoError(t, err)
	require.NoError(t, g.onLogRelay(ctx, amqp.Delivery{RoutingKey: events.LogEvent, Body: body}))
	require.Len(t, g.hub.bc, 1)
	assert.Equal(t, body, <-g.hub.bc)
}
