package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/synapse-ai/synapse/shared/history"
	"github.com/synapse-ai/synapse/shared/refactor"
)

// apiClient talks to the gateway's JSON API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string, timeout time.Duration) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

type analyzeReply struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	OriginalCode string    `json:"original_code"`
	refactor.Analysis
}

func (c *apiClient) analyze(ctx context.Context, s refactor.Submission) (*analyzeReply, error) {
	body, err := json.Marshal(map[string]any{
		"code":         s.Code,
		"language":     s.Language,
		"refactorType": s.Preferences.RefactorType,
		"model":        s.Model,
		"preferences":  s.Preferences,
	})
	if err != nil {
		return nil, err
	}
	var out analyzeReply
	if err := c.do(ctx, http.MethodPost, "/api/analyze", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) history(ctx context.Context, limit int) ([]history.Record, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	var out []history.Record
	if err := c.do(ctx, http.MethodGet, "/api/history?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("gateway read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("gateway: %s (HTTP %d)", e.Error, resp.StatusCode)
		}
		return fmt.Errorf("gateway: HTTP %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
