package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNoCredential means no route has a usable credential. Never retried.
	ErrNoCredential = errors.New("no LLM credential configured")
	// ErrAllProvidersExhausted means every configured attempt failed.
	ErrAllProvidersExhausted = errors.New("all providers exhausted")
	// ErrRateLimited matches any attempt that failed with HTTP 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmptyResponse means the provider answered 2xx without content.
	ErrEmptyResponse = errors.New("empty response")
)

// APIError is a non-2xx answer from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *APIError) IsRateLimitError() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// newAPIError builds an APIError from a failed response, preferring the JSON error message.
func newAPIError(provider string, resp *http.Response, body []byte) *APIError {
	var env struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := ""
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		msg = env.Error.Message
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    msg,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, header); err == nil {
		return time.Until(t)
	}
	return 0
}

// AttemptError records why a single route attempt did not produce content.
type AttemptError struct {
	Provider string
	Model    string
	Outcome  Outcome
	Err      error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s/%s %s: %v", e.Provider, e.Model, e.Outcome, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

func (e *AttemptError) Is(target error) bool {
	return target == ErrRateLimited && e.Outcome == OutcomeRateLimited
}

// RateLimited reports whether the attempt was skipped because the model was busy.
func (e *AttemptError) RateLimited() bool { return e.Outcome == OutcomeRateLimited }

// ExhaustedError is returned when no route produced content.
// Last is kept for diagnostics only.
type ExhaustedError struct {
	Last     error
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return ErrAllProvidersExhausted.Error()
	}
	return fmt.Sprintf("%s after %d attempts: %v", ErrAllProvidersExhausted, len(e.Attempts), e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrAllProvidersExhausted }
