package stt

import "time"

// Audio is one uploaded recording.
type Audio struct {
	// Data holds the raw container bytes (WebM, Ogg, WAV, MP3, ...).
	Data []byte

	// Filename is the client-supplied file name. Providers that upload
	// multipart forms reuse it; may be empty.
	Filename string

	// ContentType is the client-supplied MIME type, e.g. "audio/webm". May be
	// empty, in which case providers sniff or default.
	ContentType string

	// Language is the BCP-47 language hint ("en", "en-US"). Empty lets the
	// provider use its configured default.
	Language string
}

// Transcript is the result of transcribing one recording.
type Transcript struct {
	// Text is the transcribed speech, whitespace-trimmed.
	Text string

	// Language is the detected or configured language, when the provider
	// reports it.
	Language string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report confidence.
	Confidence float64

	// Duration is the length of the recording when known.
	Duration time.Duration
}
