package llm

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a single attempt when neither the route nor Config sets one.
const DefaultTimeout = 30 * time.Second

// Config is everything the dispatcher needs. Credentials are resolved by the
// caller; the dispatcher never reads the environment.
type Config struct {
	Routes []Route
	// Credentials maps Route.CredentialRef to its secret.
	Credentials map[string]string
	Timeout     time.Duration
	// BaseURLs overrides the API root per provider kind.
	BaseURLs   map[string]string
	Referer    string
	Title      string
	HTTPClient *http.Client
}

// Factory builds a Provider for a route with a resolved secret.
type Factory func(r Route, secret string, opts ...ProviderOption) Provider

var factories = map[string]Factory{
	ProviderGemini: func(r Route, secret string, opts ...ProviderOption) Provider {
		return NewGeminiProvider(secret, r.Model, opts...)
	},
	ProviderAnthropic: func(r Route, secret string, opts ...ProviderOption) Provider {
		return NewAnthropicProvider(secret, r.Model, opts...)
	},
	ProviderOpenRouter: func(r Route, secret string, opts ...ProviderOption) Provider {
		return NewOpenRouterProvider(secret, r.Model, opts...)
	},
}

type boundRoute struct {
	Route
	provider Provider
	tier     Tier
	timeout  time.Duration
}

// Dispatcher tries routes strictly in order, one at a time, and returns the
// first non-empty text. It holds no per-request state.
type Dispatcher struct {
	routes []boundRoute
	log    zerolog.Logger
}

type Option func(*Dispatcher)

func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// Reply is the raw model text plus the route that produced it.
type Reply struct {
	Content  string
	Provider string
	Model    string
	Attempts []Attempt
}

// New binds every route whose credential is present. Routes without a usable
// credential are skipped; if none remain, Dispatch returns ErrNoCredential.
func New(cfg Config, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{log: log.Logger}
	for _, o := range opts {
		o(d)
	}

	routes := cfg.Routes
	if routes == nil {
		routes = DefaultRoutes()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Transport: NewLoggingTransport(nil, d.log)}
	}

	for i, r := range routes {
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
		secret := cfg.Credentials[r.CredentialRef]
		if !usableCredential(secret) {
			d.log.Debug().Str("route", r.String()).Str("credential", r.CredentialRef).Msg("route skipped: no credential")
			continue
		}
		popts := []ProviderOption{WithHTTPClient(client), WithAppInfo(cfg.Referer, cfg.Title)}
		if base := cfg.BaseURLs[r.Provider]; base != "" {
			popts = append(popts, WithBaseURL(base))
		}
		br := boundRoute{
			Route:    r,
			provider: factories[r.Provider](r, secret, popts...),
			tier:     tierOf(r.Provider),
			timeout:  timeout,
		}
		if r.Timeout > 0 {
			br.timeout = r.Timeout
		}
		d.routes = append(d.routes, br)
	}

	// direct vendors first; configured order is kept within a tier
	sort.SliceStable(d.routes, func(i, j int) bool { return d.routes[i].tier < d.routes[j].tier })
	return d, nil
}

// usableCredential rejects empty secrets and unfilled "YOUR_..." placeholders.
func usableCredential(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && !strings.Contains(s, "YOUR_")
}

// Configured reports whether at least one route can be attempted.
func (d *Dispatcher) Configured() bool { return d != nil && len(d.routes) > 0 }

// Routes lists the bound routes in attempt order.
func (d *Dispatcher) Routes() []Route {
	out := make([]Route, len(d.routes))
	for i, r := range d.routes {
		out[i] = r.Route
	}
	return out
}

// Dispatch returns the first non-empty text produced by the routes in order.
// hint names a model to try first within its tier; it is advisory only.
// The text is returned unparsed.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt, hint string) (*Reply, error) {
	if !d.Configured() {
		metricNoCredential.Inc()
		return nil, ErrNoCredential
	}

	var (
		attempts []Attempt
		last     error
	)
	for _, r := range d.ordered(hint) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, a := d.attempt(ctx, r, prompt)
		attempts = append(attempts, a)
		if a.Outcome == OutcomeSuccess {
			return &Reply{Content: text, Provider: r.Provider, Model: r.Model, Attempts: attempts}, nil
		}
		// caller went away mid-attempt: stop here rather than treating it as a provider failure
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		last = a.Err
	}

	metricExhausted.Inc()
	d.log.Warn().Int("attempts", len(attempts)).Err(last).Msg("all providers exhausted")
	return nil, &ExhaustedError{Last: last, Attempts: attempts}
}

func (d *Dispatcher) attempt(ctx context.Context, r boundRoute, prompt string) (string, Attempt) {
	actx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	text, err := r.provider.Generate(actx, prompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyResponse
	}
	a := Attempt{
		Provider: r.Provider,
		Model:    r.Model,
		Outcome:  classify(err),
		Elapsed:  time.Since(start),
	}
	if err != nil {
		a.Err = &AttemptError{Provider: r.Provider, Model: r.Model, Outcome: a.Outcome, Err: err}
	}
	recordAttempt(a)

	var ev *zerolog.Event
	switch a.Outcome {
	case OutcomeSuccess:
		ev = d.log.Info()
	case OutcomeRateLimited:
		ev = d.log.Warn()
	default:
		ev = d.log.Warn().Err(err)
	}
	ev.Str("provider", r.Provider).
		Str("model", r.Model).
		Str("outcome", a.Outcome.String()).
		Dur("elapsed", a.Elapsed).
		Msg("provider attempt")

	return text, a
}

// ordered returns the routes with any hint-matching route moved to the front of its tier.
func (d *Dispatcher) ordered(hint string) []boundRoute {
	if hint == "" {
		return d.routes
	}
	out := make([]boundRoute, len(d.routes))
	copy(out, d.routes)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].tier != out[j].tier {
			return out[i].tier < out[j].tier
		}
		return out[i].Model == hint && out[j].Model != hint
	})
	return out
}
