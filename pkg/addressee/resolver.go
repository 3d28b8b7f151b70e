package addressee

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/voicetagger/pkg/nlp"
)

// Option is a functional option for configuring a Resolver.
type Option func(*Resolver)

// WithStrategies replaces the default pattern → entity → fallback chain.
func WithStrategies(strategies ...Strategy) Option {
	return func(r *Resolver) {
		r.strategies = strategies
	}
}

// WithPatternMatcher replaces the matcher used by the default pattern stage.
// It has no effect when combined with WithStrategies.
func WithPatternMatcher(m *PatternMatcher) Option {
	return func(r *Resolver) {
		r.matcher = m
	}
}

// WithLogger sets the logger used for per-stage debug output. Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// Resolver runs the strategy chain. It holds no per-call state and is safe for
// concurrent use as long as its recogniser's annotator is.
type Resolver struct {
	recognizer *nlp.Recognizer
	matcher    *PatternMatcher
	strategies []Strategy
	logger     *slog.Logger
}

// NewResolver builds a Resolver over rec. Without options the chain is
// pattern, entity, fallback.
func NewResolver(rec *nlp.Recognizer, opts ...Option) *Resolver {
	r := &Resolver{recognizer: rec}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.strategies == nil {
		if r.matcher == nil {
			r.matcher = NewPatternMatcher()
		}
		r.strategies = []Strategy{
			&PatternStrategy{Matcher: r.matcher},
			&EntityStrategy{Recognizer: rec},
			&FallbackStrategy{Recognizer: rec},
		}
	}
	return r
}

// Ready reports whether the recogniser behind the resolver is usable.
func (r *Resolver) Ready() error {
	if r.recognizer == nil {
		return nlp.ErrNotReady
	}
	return r.recognizer.Ready()
}

// Resolve returns the addressee of text, or [NoMatch].
//
// A not-ready recogniser fails the call before any stage runs. An error from a
// stage is returned as is and later stages are not consulted.
func (r *Resolver) Resolve(ctx context.Context, text string) (Result, error) {
	if err := r.Ready(); err != nil {
		return NoMatch, fmt.Errorf("addressee: %w", err)
	}
	for _, s := range r.strategies {
		name, ok, err := s.Try(ctx, text)
		if err != nil {
			return NoMatch, fmt.Errorf("addressee: %s stage: %w", s.Name(), err)
		}
		if ok {
			r.logger.DebugContext(ctx, "addressee resolved", "stage", s.Name(), "name", name)
			return Result{Name: name, Stage: s.Stage()}, nil
		}
		r.logger.DebugContext(ctx, "addressee stage empty", "stage", s.Name())
	}
	return NoMatch, nil
}
