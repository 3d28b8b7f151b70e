// Package tagger is the voice-note pipeline: speech-to-text, addressee
// resolution and roster canonicalisation behind one [Service] that the HTTP
// and MCP surfaces share.
package tagger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voicetagger/internal/observe"
	"github.com/MrWong99/voicetagger/internal/roster"
	"github.com/MrWong99/voicetagger/pkg/addressee"
	"github.com/MrWong99/voicetagger/pkg/audio"
	"github.com/MrWong99/voicetagger/pkg/nlp"
	"github.com/MrWong99/voicetagger/pkg/provider/stt"
)

// ErrNoTranscriber is returned by [Service.ProcessAudio] when no STT provider
// is configured.
var ErrNoTranscriber = errors.New("tagger: no speech-to-text provider configured")

// Outcome is the result of processing one voice note or transcript.
type Outcome struct {
	// Transcription is the transcribed text. For [Service.Extract] it is the
	// input text.
	Transcription string

	// Language and Duration are reported by the STT provider when known.
	Language string
	Duration time.Duration

	// Result is the resolved addressee, or [addressee.NoMatch].
	Result addressee.Result

	// Contact is the roster entry matching Result.Name, if any. It never
	// replaces Result.Name.
	Contact           string
	ContactConfidence float64
}

// Option is a functional option for configuring a [Service].
type Option func(*Service)

// WithTranscriber sets the STT provider used by [Service.ProcessAudio].
func WithTranscriber(p stt.Provider) Option {
	return func(s *Service) {
		s.stt = p
	}
}

// WithRoster enables contact canonicalisation.
func WithRoster(r *roster.Roster) Option {
	return func(s *Service) {
		s.roster = r
	}
}

// WithResolver replaces the default pattern → entity → fallback resolver.
func WithResolver(r *addressee.Resolver) Option {
	return func(s *Service) {
		s.resolver = r
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service runs the pipeline. It holds no per-request state and is safe for
// concurrent use.
type Service struct {
	recognizer *nlp.Recognizer
	resolver   *addressee.Resolver
	stt        stt.Provider
	roster     *roster.Roster
	metrics    *observe.Metrics
}

// New returns a [Service] over rec.
func New(rec *nlp.Recognizer, opts ...Option) *Service {
	s := &Service{recognizer: rec}
	for _, o := range opts {
		o(s)
	}
	if s.resolver == nil {
		s.resolver = addressee.NewResolver(rec)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Ready reports whether the language model is loaded. It wraps
// [nlp.ErrNotReady] when it is not.
func (s *Service) Ready() error {
	if err := s.resolver.Ready(); err != nil {
		return fmt.Errorf("tagger: %w", err)
	}
	return nil
}

// CanTranscribe reports whether an STT provider is configured.
func (s *Service) CanTranscribe() bool {
	return s.stt != nil
}

// ProcessAudio transcribes a voice note and resolves its addressee.
//
// Readiness is checked before the upload is sent anywhere, so a server
// without a model never pays for a transcription it cannot use.
func (s *Service) ProcessAudio(ctx context.Context, a stt.Audio) (Outcome, error) {
	ctx, span := observe.StartSpan(ctx, "tagger.process_audio",
		trace.WithAttributes(attribute.Int("audio.bytes", len(a.Data))))
	defer span.End()

	if err := s.Ready(); err != nil {
		observe.RecordError(span, err)
		return Outcome{}, err
	}
	if s.stt == nil {
		observe.RecordError(span, ErrNoTranscriber)
		return Outcome{}, ErrNoTranscriber
	}
	if len(a.Data) == 0 {
		return Outcome{}, fmt.Errorf("tagger: %w", stt.ErrEmptyAudio)
	}

	container := audio.Sniff(a.Data)
	span.SetAttributes(attribute.String("audio.container", container.String()))
	s.metrics.UploadBytes.Record(ctx, int64(len(a.Data)))

	start := time.Now()
	tr, err := s.stt.Transcribe(ctx, a)
	s.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.RecordError(span, err)
		return Outcome{}, fmt.Errorf("tagger: transcribe: %w", err)
	}

	out, err := s.Extract(ctx, tr.Text)
	if err != nil {
		observe.RecordError(span, err)
		return Outcome{}, err
	}
	out.Language = tr.Language
	out.Duration = tr.Duration

	observe.Logger(ctx).Info("voice note processed",
		"container", container.String(),
		"bytes", len(a.Data),
		"chars", len(tr.Text),
		"stage", out.Result.Stage.String(),
		"found", out.Result.Found(),
	)
	return out, nil
}

// Extract resolves the addressee of an already transcribed text.
func (s *Service) Extract(ctx context.Context, text string) (Outcome, error) {
	ctx, span := observe.StartSpan(ctx, "tagger.extract")
	defer span.End()

	start := time.Now()
	res, err := s.resolver.Resolve(ctx, text)
	if err != nil {
		observe.RecordError(span, err)
		return Outcome{}, fmt.Errorf("tagger: %w", err)
	}
	s.metrics.RecordExtraction(ctx, res.Stage.String(), time.Since(start))
	span.SetAttributes(attribute.String("addressee.stage", res.Stage.String()))

	out := Outcome{Transcription: text, Result: res}
	if res.Found() && s.roster != nil && s.roster.Len() > 0 {
		m, ok := s.roster.Lookup(res.Name)
		s.metrics.RecordRosterLookup(ctx, ok)
		if ok {
			out.Contact = m.Contact
			out.ContactConfidence = m.Confidence
		}
	}
	return out, nil
}

// Entities returns the named entities of text.
func (s *Service) Entities(ctx context.Context, text string) ([]nlp.Entity, error) {
	_, span := observe.StartSpan(ctx, "tagger.entities")
	defer span.End()

	ents, err := s.recognizer.ExtractEntities(text)
	if err != nil {
		observe.RecordError(span, err)
		return nil, fmt.Errorf("tagger: %w", err)
	}
	return ents, nil
}
