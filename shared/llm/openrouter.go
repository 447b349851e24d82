package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	openrouterBaseURL = "https://openrouter.ai/api/v1"
	// Temperature is fixed low so the JSON shape stays stable across free models.
	Temperature = 0.2
)

// OpenRouterProvider calls one model behind OpenRouter's OpenAI-compatible API.
type OpenRouterProvider struct {
	apiKey string
	model  string
	cfg    providerConfig
}

func NewOpenRouterProvider(apiKey, model string, opts ...ProviderOption) *OpenRouterProvider {
	return &OpenRouterProvider{
		apiKey: apiKey,
		model:  model,
		cfg:    newProviderConfig(openrouterBaseURL, opts),
	}
}

func (or *OpenRouterProvider) Name() string  { return ProviderOpenRouter }
func (or *OpenRouterProvider) Model() string { return or.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// Generate sends a system+user chat completion and returns choices[0].message.content.
// A 429 comes back as an *APIError with IsRateLimitError() true.
func (or *OpenRouterProvider) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: or.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemInstruction},
			{Role: "user", Content: prompt},
		},
		Temperature: Temperature,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, or.cfg.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+or.apiKey)
	if or.cfg.referer != "" {
		req.Header.Set("HTTP-Referer", or.cfg.referer)
	}
	if or.cfg.title != "" {
		req.Header.Set("X-Title", or.cfg.title)
	}

	resp, err := or.cfg.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openrouter request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("openrouter read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", newAPIError(ProviderOpenRouter, resp, raw)
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &response); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	// upstream failures can arrive inside a 200 body
	if response.Error != nil {
		return "", &APIError{Provider: ProviderOpenRouter, StatusCode: response.Error.Code, Message: response.Error.Message}
	}
	if len(response.Choices) == 0 || strings.TrimSpace(response.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return response.Choices[0].Message.Content, nil
}
