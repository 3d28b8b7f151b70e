package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/voicetagger/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// STT backends. Each backend has its own circuit breaker.
//
// Empty uploads and caller cancellation are never retried on another backend
// and never count against a breaker. An unsupported container format does
// fail over (another backend may decode it) but is not held against the
// backend that rejected it.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
// cfg.Permanent and cfg.CircuitBreaker.IsFailure are filled with STT-aware
// defaults when nil.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	if cfg.Permanent == nil {
		cfg.Permanent = permanentSTTError
	}
	if cfg.CircuitBreaker.IsFailure == nil {
		cfg.CircuitBreaker.IsFailure = backendSTTFailure
	}
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the provider names in failover order.
func (f *STTFallback) Names() []string {
	return f.group.Names()
}

// States returns the breaker state of every provider.
func (f *STTFallback) States() map[string]State {
	return f.group.States()
}

// Transcribe sends audio to the first healthy provider, failing over to the
// next one on error.
func (f *STTFallback) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	if len(audio.Data) == 0 {
		return stt.Transcript{}, stt.ErrEmptyAudio
	}
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.Transcript, error) {
		if err := ctx.Err(); err != nil {
			return stt.Transcript{}, err
		}
		return p.Transcribe(ctx, audio)
	})
}

func permanentSTTError(err error) bool {
	return errors.Is(err, stt.ErrEmptyAudio) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func backendSTTFailure(err error) bool {
	return err != nil && !permanentSTTError(err) && !errors.Is(err, stt.ErrUnsupportedFormat)
}
