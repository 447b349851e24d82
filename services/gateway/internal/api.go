package internal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/synapse-ai/synapse/shared/events"
	"github.com/synapse-ai/synapse/shared/history"
	"github.com/synapse-ai/synapse/shared/refactor"
)

const maxBodyBytes = 1 << 20

func (g *Gateway) serveAPI(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + g.cfg.APIPort,
		Handler:      g.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * g.cfg.LLMTimeout * time.Duration(max(len(g.routes), 1)),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Info().Str("port", g.cfg.APIPort).Str("mode", g.engine.Mode()).Msg("gateway online")
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler is the full middleware-wrapped mux.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/analyze", g.handleAnalyze)
	mux.HandleFunc("POST /api/jobs", g.handleCreateJob)
	mux.HandleFunc("GET /api/history", g.handleHistory)
	mux.HandleFunc("GET /api/history/{id}", g.handleHistoryItem)
	mux.HandleFunc("GET /api/status", g.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/ws", g.hub.ServeWS)

	return g.cors(g.limiter.middleware(mux))
}

type analyzeRequest struct {
	Code         any                  `json:"code"`
	Language     string               `json:"language"`
	RefactorType string               `json:"refactorType"`
	Model        string               `json:"model"`
	Preferences  refactor.Preferences `json:"preferences"`
}

// decodeSubmission validates the request body. Code must be a non-empty string.
func decodeSubmission(w http.ResponseWriter, r *http.Request) (refactor.Submission, bool) {
	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		return refactor.Submission{}, false
	}
	code, ok := req.Code.(string)
	if !ok || strings.TrimSpace(code) == "" {
		return refactor.Submission{}, false
	}
	prefs := req.Preferences
	if prefs.RefactorType == "" {
		prefs.RefactorType = req.RefactorType
	}
	return refactor.Submission{
		Code:        code,
		Language:    req.Language,
		Preferences: prefs,
		Model:       req.Model,
	}, true
}

type analyzeResponse struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	OriginalCode string    `json:"original_code"`
	refactor.Analysis
}

func (g *Gateway) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	sub, ok := decodeSubmission(w, r)
	if !ok {
		jsonErr(w, "Invalid input", http.StatusBadRequest)
		return
	}

	a, err := g.engine.Analyze(r.Context(), sub)
	if err != nil {
		if errors.Is(err, refactor.ErrInvalidInput) {
			jsonErr(w, "Invalid input", http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Msg("analyze failed")
		jsonErr(w, "Processing failed.", http.StatusInternalServerError)
		return
	}

	resp := analyzeResponse{
		ID:           g.newID(),
		Timestamp:    g.now().UTC(),
		OriginalCode: sub.Code,
		Analysis:     a,
	}

	// persistence and fan-out are best effort; the caller still gets the result
	ctx := context.WithoutCancel(r.Context())
	if err := g.store.Save(ctx, history.NewRecord(resp.ID, resp.Timestamp, sub.Code, a)); err != nil {
		log.Error().Err(err).Str("id", resp.ID).Msg("history save failed")
	}
	complete := events.RefactorCompletePayload{JobID: resp.ID, Origin: events.OriginAPI, Timestamp: resp.Timestamp, Code: sub.Code, Analysis: a}
	if b, err := events.Wrap(events.RefactorComplete, complete); err == nil {
		g.hub.BroadcastRaw(b)
		if g.broker != nil {
			if err := g.broker.Publish(ctx, events.RefactorComplete, b); err != nil {
				log.Warn().Err(err).Str("id", resp.ID).Msg("publish refactor.complete failed")
			}
		}
	}

	log.Info().
		Str("id", resp.ID).
		Str("source", string(a.Source)).
		Str("smell", a.SmellDetected).
		Str("route", a.Route).
		Msg("analysis served")
	jsonOK(w, resp, http.StatusOK)
}

func (g *Gateway) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if g.broker == nil {
		jsonErr(w, "async queue not configured", http.StatusServiceUnavailable)
		return
	}
	sub, ok := decodeSubmission(w, r)
	if !ok {
		jsonErr(w, "Invalid input", http.StatusBadRequest)
		return
	}

	p := events.RefactorRequestedPayload{JobID: g.newID(), Submission: sub}
	if err := g.publish(r.Context(), events.RefactorRequested, p); err != nil {
		log.Error().Err(err).Msg("publish refactor.requested failed")
		jsonErr(w, "queue error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, map[string]any{"job_id": p.JobID, "status": "queued"}, http.StatusAccepted)
}

func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := g.store.List(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("history list failed")
		jsonErr(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	jsonOK(w, rows, http.StatusOK)
}

func (g *Gateway) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	rec, err := g.store.Get(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, history.ErrNotFound):
		jsonErr(w, "not found", http.StatusNotFound)
	case err != nil:
		log.Error().Err(err).Msg("history get failed")
		jsonErr(w, "history unavailable", http.StatusInternalServerError)
	default:
		jsonOK(w, rec, http.StatusOK)
	}
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	routes := make([]string, len(g.routes))
	for i, rt := range g.routes {
		routes[i] = rt.String()
	}
	jsonOK(w, map[string]any{
		"status":  "online",
		"mode":    g.engine.Mode(),
		"routes":  routes,
		"queue":   g.broker != nil,
		"clients": g.hub.Clients(),
	}, http.StatusOK)
}

func jsonOK(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (g *Gateway) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && g.originAllowed(origin) {
			allow := origin
			if len(g.cfg.CORSOrigins) == 1 && g.cfg.CORSOrigins[0] == "*" {
				allow = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", allow)
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
