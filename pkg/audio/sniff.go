package audio

import "bytes"

// Container identifies an audio file format by its magic bytes.
type Container int

const (
	Unknown Container = iota
	WAV
	WebM
	Ogg
	MP3
	FLAC
	MP4
)

var containerNames = [...]string{"unknown", "wav", "webm", "ogg", "mp3", "flac", "mp4"}

var containerMIME = [...]string{
	"application/octet-stream",
	"audio/wav",
	"audio/webm",
	"audio/ogg",
	"audio/mpeg",
	"audio/flac",
	"audio/mp4",
}

var containerExt = [...]string{".bin", ".wav", ".webm", ".ogg", ".mp3", ".flac", ".m4a"}

func (c Container) valid() bool { return c >= Unknown && int(c) < len(containerNames) }

// String returns the short lowercase name ("webm", "wav", ...).
func (c Container) String() string {
	if !c.valid() {
		return "unknown"
	}
	return containerNames[c]
}

// MIME returns the canonical MIME type for c.
func (c Container) MIME() string {
	if !c.valid() {
		return containerMIME[Unknown]
	}
	return containerMIME[c]
}

// Ext returns a file extension including the dot.
func (c Container) Ext() string {
	if !c.valid() {
		return containerExt[Unknown]
	}
	return containerExt[c]
}

// Sniff identifies the container format of data from its leading bytes.
func Sniff(data []byte) Container {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return WAV
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		// EBML header; Matroska and WebM share it and browsers only emit WebM.
		return WebM
	case bytes.HasPrefix(data, []byte("OggS")):
		return Ogg
	case bytes.HasPrefix(data, []byte("fLaC")):
		return FLAC
	case bytes.HasPrefix(data, []byte("ID3")):
		return MP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// MPEG audio frame sync.
		return MP3
	case len(data) >= 8 && bytes.Equal(data[4:8], []byte("ftyp")):
		return MP4
	default:
		return Unknown
	}
}
