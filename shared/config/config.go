// Package config reads service configuration from the environment.
// It is the only place secrets are looked up; everything downstream gets them injected.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/synapse-ai/synapse/shared/llm"
)

type Config struct {
	AMQPURL   string
	APIPort   string
	HistoryDB string

	Routes      []llm.Route
	Credentials map[string]string
	LLMTimeout  time.Duration
	AppURL      string
	AppTitle    string

	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSOrigins       []string
	SyntaxGate        bool
	Workers           int

	TelegramToken string
	TelegramChat  string
}

// FromEnv builds a Config. Call godotenv.Load first if a .env file should apply.
func FromEnv() (Config, error) {
	cfg := Config{
		AMQPURL:           env("AMQP_URL", ""),
		APIPort:           env("PORT", "8080"),
		HistoryDB:         env("HISTORY_DB", "data/history.db"),
		LLMTimeout:        envDuration("LLM_TIMEOUT", llm.DefaultTimeout),
		AppURL:            env("APP_URL", "https://synapserefactor.vercel.app"),
		AppTitle:          env("APP_TITLE", "Synapse AI"),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   envDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		CORSOrigins:       envList("CORS_ORIGINS", []string{"*"}),
		SyntaxGate:        env("SYNTAX_GATE", "1") != "0",
		Workers:           envInt("WORKERS", 3),
		TelegramToken:     env("TELEGRAM_BOT_TOKEN", ""),
		TelegramChat:      env("TELEGRAM_CHAT_ID", ""),
	}

	if path := env("LLM_ROUTES_FILE", ""); path != "" {
		routes, err := llm.LoadRoutes(path)
		if err != nil {
			return cfg, fmt.Errorf("LLM_ROUTES_FILE: %w", err)
		}
		cfg.Routes = routes
	}

	cfg.Credentials = make(map[string]string)
	routes := cfg.Routes
	if routes == nil {
		routes = llm.DefaultRoutes()
	}
	for _, r := range routes {
		if v := os.Getenv(r.CredentialRef); v != "" {
			cfg.Credentials[r.CredentialRef] = v
		}
	}
	return cfg, nil
}

// LLM is the dispatcher configuration carved out of cfg.
func (c Config) LLM() llm.Config {
	return llm.Config{
		Routes:      c.Routes,
		Credentials: c.Credentials,
		Timeout:     c.LLMTimeout,
		Referer:     c.AppURL,
		Title:       c.AppTitle,
	}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		n, _ := strconv.Atoi(v)
		if n > 0 {
			return n
		}
	}
	return def
}

func envDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func envList(k string, def []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
