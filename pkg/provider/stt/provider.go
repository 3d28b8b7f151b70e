// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider turns one complete voice-note recording into text. Uploads
// arrive as whole files (WebM/Opus from the browser extension, WAV from tests
// and other clients), so the interface is request/response rather than
// streaming: the caller hands over the container bytes and receives a single
// [Transcript].
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

var (
	// ErrEmptyAudio is returned when Audio.Data is empty.
	ErrEmptyAudio = errors.New("stt: empty audio")

	// ErrUnsupportedFormat is returned by providers that cannot decode the
	// container format of the upload.
	ErrUnsupportedFormat = errors.New("stt: unsupported audio format")
)

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts audio to text. The returned Transcript.Text is
	// trimmed of surrounding whitespace; an empty Text with a nil error means
	// the recording contained no recognisable speech.
	//
	// Returns ErrEmptyAudio when audio.Data is empty. Transport, decoding and
	// provider errors are wrapped and returned; the caller decides whether to
	// retry or fall back.
	Transcribe(ctx context.Context, audio Audio) (Transcript, error)
}
