// Package audio holds the container sniffing, WAV codec and PCM conversion
// helpers used by the STT providers.
//
// Voice notes arrive as complete container files. Most providers forward the
// bytes untouched; the in-process whisper.cpp provider needs 16 kHz mono
// float32 samples and uses [DecodeWAV] followed by [PCM.Normalize] and
// [PCM.Float32].
package audio

import "time"

// PCM is interleaved 16-bit signed little-endian audio.
type PCM struct {
	// Data holds the samples, two bytes per sample per channel.
	Data []byte

	// SampleRate in Hz (e.g., 48000 for browser recordings, 16000 for STT).
	SampleRate int

	// Channels is the number of interleaved channels.
	Channels int
}

// Frames returns the number of sample frames in p.
func (p PCM) Frames() int {
	if p.Channels <= 0 {
		return 0
	}
	return len(p.Data) / (2 * p.Channels)
}

// Duration returns the playback length of p.
func (p PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(p.Frames()) * time.Second / time.Duration(p.SampleRate)
}
