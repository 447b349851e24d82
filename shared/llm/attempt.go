package llm

import (
	"errors"
	"time"
)

// Outcome classifies one attempt against one route.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeHardError
	OutcomeEmpty
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeHardError:
		return "hard_error"
	case OutcomeEmpty:
		return "empty_response"
	}
	return "unknown"
}

// Attempt is the record of one provider call. It does not outlive the dispatch.
type Attempt struct {
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	Outcome  Outcome       `json:"-"`
	Elapsed  time.Duration `json:"elapsed"`
	Err      error         `json:"-"`
}

func classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if errors.Is(err, ErrEmptyResponse) {
		return OutcomeEmpty
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.IsRateLimitError() {
		return OutcomeRateLimited
	}
	// per-attempt timeouts land here too
	return OutcomeHardError
}
