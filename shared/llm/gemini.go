package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	geminiBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	maxResponseBytes = 4 << 20
)

// GeminiProvider calls Google's generateContent endpoint directly.
type GeminiProvider struct {
	apiKey string
	model  string
	cfg    providerConfig
}

func NewGeminiProvider(apiKey, model string, opts ...ProviderOption) *GeminiProvider {
	return &GeminiProvider{
		apiKey: apiKey,
		model:  model,
		cfg:    newProviderConfig(geminiBaseURL, opts),
	}
}

func (g *GeminiProvider) Name() string  { return ProviderGemini }
func (g *GeminiProvider) Model() string { return g.model }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Generate sends one concatenated prompt and asks for a JSON mime type.
func (g *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	var gr geminiRequest
	gr.Contents = []geminiContent{{
		Role:  "user",
		Parts: []geminiPart{{Text: SystemInstruction + "\n\n" + prompt}},
	}}
	gr.GenerationConfig.ResponseMimeType = "application/json"

	body, err := json.Marshal(gr)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.cfg.baseURL, url.PathEscape(g.model), url.QueryEscape(g.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.cfg.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", redactKey(err, g.apiKey))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("gemini read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", newAPIError(ProviderGemini, resp, raw)
	}

	var out geminiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(out.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// redactKey keeps the query-string key out of *url.Error messages.
func redactKey(err error, key string) error {
	escaped := url.QueryEscape(key)
	if key == "" || !strings.Contains(err.Error(), escaped) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), escaped, "REDACTED"))
}
