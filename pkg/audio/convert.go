package audio

import (
	"encoding/binary"
	"fmt"
)

// Normalize returns p down-mixed to mono and resampled to rate. If p already
// matches, it is returned unchanged (zero allocation). Down-mixing runs first
// so only one channel is resampled.
func (p PCM) Normalize(rate int) PCM {
	out := p
	if out.Channels > 1 {
		out = PCM{Data: ToMono16(out.Data, out.Channels), SampleRate: out.SampleRate, Channels: 1}
	}
	if out.SampleRate != rate {
		out = PCM{Data: ResampleMono16(out.Data, out.SampleRate, rate), SampleRate: rate, Channels: 1}
	}
	return out
}

// Float32 converts p to float32 samples normalised to [-1.0, 1.0], averaging
// all channels per frame. Any trailing partial frame is ignored.
func (p PCM) Float32() []float32 {
	ch := max(p.Channels, 1)
	frames := len(p.Data) / (2 * ch)
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range ch {
			idx := (i*ch + c) * 2
			sum += float32(int16(binary.LittleEndian.Uint16(p.Data[idx:idx+2]))) / 32768.0
		}
		out[i] = sum / float32(ch)
	}
	return out
}

// String returns a human-readable description, e.g. "48000Hz stereo".
func (p PCM) String() string {
	ch := "mono"
	if p.Channels == 2 {
		ch = "stereo"
	} else if p.Channels > 2 {
		ch = fmt.Sprintf("%dch", p.Channels)
	}
	return fmt.Sprintf("%dHz %s", p.SampleRate, ch)
}

// ToMono16 averages every interleaved frame of channels int16 samples into a
// single sample. Uses int32 arithmetic so the sum cannot overflow. Returns pcm
// unchanged when channels <= 1.
func ToMono16(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frameBytes := 2 * channels
	frames := len(pcm) / frameBytes
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for c := range channels {
			idx := i*frameBytes + c*2
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[idx : idx+2])))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sum/int32(channels))))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(binary.LittleEndian.Uint16(pcm[srcIdx*2:]))
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(binary.LittleEndian.Uint16(pcm[(srcIdx+1)*2:]))
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(interpolated))
	}
	return out
}
