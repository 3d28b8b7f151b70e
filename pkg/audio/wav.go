package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrNotWAV is returned by DecodeWAV when data is not a RIFF/WAVE file.
var ErrNotWAV = errors.New("audio: not a WAV file")

const (
	wavFormatPCM  = 1
	wavHeaderSize = 44
)

// DecodeWAV parses a RIFF/WAVE file holding 16-bit integer PCM. Any sample
// rate and channel count are accepted. Unknown chunks (LIST, fact, ...) are
// skipped; a data chunk that is truncated is read up to the end of the input,
// which is what browsers produce when a recording is cut short.
func DecodeWAV(data []byte) (PCM, error) {
	r := bytes.NewReader(data)

	var riff struct {
		ID   [4]byte
		Size uint32
		Wave [4]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &riff); err != nil {
		return PCM{}, ErrNotWAV
	}
	if string(riff.ID[:]) != "RIFF" || string(riff.Wave[:]) != "WAVE" {
		return PCM{}, ErrNotWAV
	}

	var (
		out      PCM
		fmtFound bool
	)
	for {
		var hdr struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return PCM{}, fmt.Errorf("audio: read chunk header: %w", err)
		}

		switch string(hdr.ID[:]) {
		case "fmt ":
			if err := readFmtChunk(r, hdr.Size, &out); err != nil {
				return PCM{}, err
			}
			fmtFound = true

		case "data":
			if !fmtFound {
				return PCM{}, errors.New("audio: data chunk before fmt chunk")
			}
			n := min(int(hdr.Size), r.Len())
			n -= n % (2 * out.Channels)
			out.Data = make([]byte, n)
			if _, err := io.ReadFull(r, out.Data); err != nil {
				return PCM{}, fmt.Errorf("audio: read PCM data: %w", err)
			}
			return out, nil

		default:
			skip := int64(hdr.Size)
			if hdr.Size%2 != 0 {
				skip++
			}
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return PCM{}, fmt.Errorf("audio: skip chunk %q: %w", hdr.ID, err)
			}
		}
	}

	if !fmtFound {
		return PCM{}, errors.New("audio: missing fmt chunk")
	}
	return PCM{}, errors.New("audio: missing data chunk")
}

func readFmtChunk(r *bytes.Reader, size uint32, p *PCM) error {
	var f struct {
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
	}
	if size < 16 {
		return fmt.Errorf("audio: fmt chunk too short (%d bytes)", size)
	}
	if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
		return fmt.Errorf("audio: read fmt chunk: %w", err)
	}
	if f.AudioFormat != wavFormatPCM {
		return fmt.Errorf("audio: unsupported WAV format %d (only PCM=1 supported)", f.AudioFormat)
	}
	if f.BitsPerSample != 16 {
		return fmt.Errorf("audio: unsupported bits per sample %d (only 16 supported)", f.BitsPerSample)
	}
	if f.NumChannels == 0 || f.SampleRate == 0 {
		return fmt.Errorf("audio: invalid fmt chunk (channels=%d rate=%d)", f.NumChannels, f.SampleRate)
	}

	// Skip cbSize and any extension bytes, plus the pad byte of odd chunks.
	extra := int64(size) - 16
	if size%2 != 0 {
		extra++
	}
	if extra > 0 {
		if _, err := r.Seek(extra, io.SeekCurrent); err != nil {
			return fmt.Errorf("audio: skip extra fmt bytes: %w", err)
		}
	}

	p.SampleRate = int(f.SampleRate)
	p.Channels = int(f.NumChannels)
	return nil
}

// EncodeWAV wraps p in a canonical 44-byte-header RIFF/WAV container.
func EncodeWAV(p PCM) []byte {
	channels := max(p.Channels, 1)
	byteRate := p.SampleRate * channels * 2
	blockAlign := channels * 2
	dataSize := len(p.Data)

	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(p.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 16)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], p.Data)

	return buf
}
