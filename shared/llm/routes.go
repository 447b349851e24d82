package llm

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Route is one (provider, model, credential) tuple in the dispatch order.
type Route struct {
	Provider      string        `yaml:"provider" json:"provider"`
	Model         string        `yaml:"model" json:"model"`
	CredentialRef string        `yaml:"credential_ref" json:"credential_ref"`
	Timeout       time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

func (r Route) String() string { return r.Provider + "/" + r.Model }

// Credential references used by DefaultRoutes.
const (
	CredGemini     = "GEMINI_API_KEY"
	CredAnthropic  = "ANTHROPIC_API_KEY"
	CredOpenRouter = "OPENROUTER_API_KEY"
)

// DefaultRoutes is the built-in order: the direct vendor, then three free aggregator models.
func DefaultRoutes() []Route {
	return []Route{
		{Provider: ProviderGemini, Model: "gemini-2.0-flash-exp", CredentialRef: CredGemini},
		{Provider: ProviderOpenRouter, Model: "google/gemini-2.0-flash-exp:free", CredentialRef: CredOpenRouter},
		{Provider: ProviderOpenRouter, Model: "meta-llama/llama-3-8b-instruct:free", CredentialRef: CredOpenRouter},
		{Provider: ProviderOpenRouter, Model: "mistralai/mistral-7b-instruct:free", CredentialRef: CredOpenRouter},
	}
}

type routesFile struct {
	Routes []Route `yaml:"routes"`
}

// LoadRoutes reads a YAML route list:
//
//	routes:
//	  - provider: openrouter
//	    model: meta-llama/llama-3-8b-instruct:free
//	    credential_ref: OPENROUTER_API_KEY
//	    timeout: 20s
func LoadRoutes(path string) ([]Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes: %w", err)
	}
	return ParseRoutes(data)
}

func ParseRoutes(data []byte) ([]Route, error) {
	var f routesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse routes: %w", err)
	}
	if len(f.Routes) == 0 {
		return nil, fmt.Errorf("parse routes: no routes defined")
	}
	for i, r := range f.Routes {
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
	}
	return f.Routes, nil
}

func (r Route) validate() error {
	if _, ok := factories[r.Provider]; !ok {
		return fmt.Errorf("unknown provider %q", r.Provider)
	}
	if r.Model == "" {
		return fmt.Errorf("%s: model required", r.Provider)
	}
	if r.CredentialRef == "" {
		return fmt.Errorf("%s/%s: credential_ref required", r.Provider, r.Model)
	}
	if r.Timeout < 0 {
		return fmt.Errorf("%s/%s: negative timeout", r.Provider, r.Model)
	}
	return nil
}
