package refactor

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/synapse-ai/synapse/shared/llm"
)

// ErrInvalidInput is returned for empty submissions.
var ErrInvalidInput = errors.New("invalid input")

// Dispatcher is the model side of the pipeline; *llm.Dispatcher satisfies it.
type Dispatcher interface {
	Configured() bool
	Dispatch(ctx context.Context, prompt, hint string) (*llm.Reply, error)
}

// Engine runs one submission through the syntax gate, the dispatcher and,
// when the model path fails, the heuristic rules.
type Engine struct {
	dispatcher Dispatcher
	syntaxGate bool
	log        zerolog.Logger
}

type Option func(*Engine)

// WithDispatcher enables the model path. Without it every result is heuristic.
func WithDispatcher(d Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// WithoutSyntaxGate skips the parse precondition.
func WithoutSyntaxGate() Option {
	return func(e *Engine) { e.syntaxGate = false }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{syntaxGate: true, log: log.Logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Mode is "ai" when a dispatcher with credentials is wired, "heuristic" otherwise.
func (e *Engine) Mode() string {
	if e.dispatcher != nil && e.dispatcher.Configured() {
		return "ai"
	}
	return "heuristic"
}

// Analyze always returns a fully populated result unless the input is empty
// or ctx is cancelled. Provider failures never surface here.
func (e *Engine) Analyze(ctx context.Context, s Submission) (Analysis, error) {
	if strings.TrimSpace(s.Code) == "" {
		return Analysis{}, ErrInvalidInput
	}
	lang := s.Lang()

	if e.syntaxGate {
		err := CheckSyntaxAny(ctx, s.Code, s.Grammars()...)
		var se *SyntaxError
		switch {
		case errors.As(err, &se):
			e.log.Info().Str("lang", string(lang)).Str("error", se.Error()).Msg("syntax gate rejected submission")
			metricAnalyses.WithLabelValues(string(SourceSyntax)).Inc()
			return Analysis{Result: SyntaxErrorResult(s.Code, se), Source: SourceSyntax}, nil
		case err != nil:
			if ctx.Err() != nil {
				return Analysis{}, ctx.Err()
			}
			e.log.Warn().Err(err).Msg("syntax gate unavailable, continuing")
		}
	}

	if e.dispatcher != nil {
		a, reason, err := e.fromModel(ctx, s)
		if err != nil {
			return Analysis{}, err
		}
		if reason == "" {
			metricAnalyses.WithLabelValues(string(SourceModel)).Inc()
			return a, nil
		}
		metricFallbacks.WithLabelValues(reason).Inc()
	} else {
		metricFallbacks.WithLabelValues(reasonNoCredential).Inc()
	}

	metricAnalyses.WithLabelValues(string(SourceHeuristic)).Inc()
	return Analysis{Result: Fallback(s.Code, s.Preferences), Source: SourceHeuristic}, nil
}

// fromModel returns a model Analysis, or a non-empty fallback reason.
// The only error it returns is a cancelled context.
func (e *Engine) fromModel(ctx context.Context, s Submission) (Analysis, string, error) {
	reply, err := e.dispatcher.Dispatch(ctx, BuildPrompt(s), s.Model)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return Analysis{}, "", ctx.Err()
	case errors.Is(err, llm.ErrNoCredential):
		return Analysis{}, reasonNoCredential, nil
	default:
		e.log.Warn().Err(err).Msg("dispatch failed, using heuristics")
		return Analysis{}, reasonExhausted, nil
	}

	res, err := ParseModelOutput(reply.Content, s.Code)
	if err != nil {
		// unparseable text counts the same as exhaustion
		e.log.Warn().Err(err).Str("provider", reply.Provider).Str("model", reply.Model).Msg("model output rejected, using heuristics")
		return Analysis{}, reasonMalformed, nil
	}
	return Analysis{Result: res, Source: SourceModel, Route: reply.Provider + "/" + reply.Model}, "", nil
}
