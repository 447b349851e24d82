// Package llm dispatches a prompt across an ordered list of LLM routes:
// direct vendors first, then the models of a multi-model aggregator.
package llm

import (
	"context"
	"net/http"
	"strings"
)

// SystemInstruction is sent with every request, as a system message or prompt prefix.
const SystemInstruction = "You are an expert Senior code refactoring engine. Output ONLY valid JSON."

// Provider kinds accepted in a Route.
const (
	ProviderGemini     = "gemini"
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
)

// Provider is one backend bound to one model.
// Implementations return the raw text of the first candidate and never parse it.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Tier orders providers: every primary route is tried before any aggregator route.
type Tier int

const (
	TierPrimary Tier = iota
	TierAggregator
)

func tierOf(provider string) Tier {
	if provider == ProviderOpenRouter {
		return TierAggregator
	}
	return TierPrimary
}

type providerConfig struct {
	baseURL string
	client  *http.Client
	referer string
	title   string
}

// ProviderOption tweaks a provider at construction.
type ProviderOption func(*providerConfig)

// WithBaseURL points the provider at a different API root.
func WithBaseURL(u string) ProviderOption {
	return func(c *providerConfig) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) ProviderOption {
	return func(c *providerConfig) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithAppInfo sets the attribution headers the aggregator asks callers to send.
func WithAppInfo(referer, title string) ProviderOption {
	return func(c *providerConfig) { c.referer, c.title = referer, title }
}

func newProviderConfig(defaultBase string, opts []ProviderOption) providerConfig {
	c := providerConfig{baseURL: defaultBase, client: &http.Client{}}
	for _, o := range opts {
		o(&c)
	}
	return c
}
