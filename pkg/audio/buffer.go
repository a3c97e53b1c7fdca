// Package audio decodes audio-bearing media and mixes a timeline into one
// stereo sample buffer.
//
// The [Mixer] works on timeline snapshots only. Each source is decoded once
// through a [BufferCache], which deduplicates concurrent decodes and can
// persist decoded PCM in a [cache.Cache] so that later exports (or other
// machines sharing a redis cache) skip the decoder entirely.
//
// Sample placement is frame-exact: an element starting at time s is written
// from output sample floor(s*rate), reading its source from
// floor(trimStart*rate) for floor(effective*rate) samples. Mixing is a plain
// sum, so the result does not depend on the order elements are visited.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Channels is the number of output channels the mixer produces.
const Channels = 2

// DefaultSampleRate is the mixer rate when none is configured.
const DefaultSampleRate = 48000

// Buffer holds planar float32 PCM. Data[c][i] is sample i of channel c.
// A mono buffer has one channel.
type Buffer struct {
	SampleRate int
	Data       [][]float32
}

// NewBuffer allocates a silent buffer.
func NewBuffer(sampleRate, channels, frames int) *Buffer {
	data := make([][]float32, channels)
	for c := range data {
		data[c] = make([]float32, frames)
	}
	return &Buffer{SampleRate: sampleRate, Data: data}
}

// Channels returns the channel count.
func (b *Buffer) Channels() int { return len(b.Data) }

// Frames returns the number of samples per channel.
func (b *Buffer) Frames() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Channel returns channel c, reusing the last channel when the buffer has
// fewer. A mono source therefore feeds every output channel.
func (b *Buffer) Channel(c int) []float32 {
	if c >= len(b.Data) {
		c = len(b.Data) - 1
	}
	return b.Data[c]
}

// Peak returns the largest absolute sample value.
func (b *Buffer) Peak() float32 {
	var peak float32
	for _, ch := range b.Data {
		for _, v := range ch {
			peak = max(peak, float32(math.Abs(float64(v))))
		}
	}
	return peak
}

// Interleave returns the samples interleaved frame by frame.
func (b *Buffer) Interleave() []float32 {
	n, ch := b.Frames(), b.Channels()
	out := make([]float32, n*ch)
	for i := 0; i < n; i++ {
		for c := 0; c < ch; c++ {
			out[i*ch+c] = b.Data[c][i]
		}
	}
	return out
}

// Deinterleave splits interleaved samples into a planar buffer.
func Deinterleave(samples []float32, sampleRate, channels int) *Buffer {
	frames := len(samples) / channels
	b := NewBuffer(sampleRate, channels, frames)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			b.Data[c][i] = samples[i*channels+c]
		}
	}
	return b
}

// =============================================================================
// Cache Encoding
// =============================================================================

// pcmMagic identifies a cached buffer.
var pcmMagic = [4]byte{'F', 'C', 'P', 'M'}

// MarshalBinary encodes the buffer as a small header followed by planar
// little-endian float32 samples.
func (b *Buffer) MarshalBinary() ([]byte, error) {
	n, ch := b.Frames(), b.Channels()
	out := make([]byte, 16+4*n*ch)
	copy(out, pcmMagic[:])
	binary.LittleEndian.PutUint32(out[4:], uint32(b.SampleRate))
	binary.LittleEndian.PutUint32(out[8:], uint32(ch))
	binary.LittleEndian.PutUint32(out[12:], uint32(n))
	off := 16
	for _, data := range b.Data {
		for _, v := range data {
			binary.LittleEndian.PutUint32(out[off:], math.Float32bits(v))
			off += 4
		}
	}
	return out, nil
}

// UnmarshalBinary decodes a buffer written by MarshalBinary.
func (b *Buffer) UnmarshalBinary(data []byte) error {
	if len(data) < 16 || [4]byte(data[:4]) != pcmMagic {
		return fmt.Errorf("not a pcm buffer")
	}
	rate := int(binary.LittleEndian.Uint32(data[4:]))
	ch := int(binary.LittleEndian.Uint32(data[8:]))
	n := int(binary.LittleEndian.Uint32(data[12:]))
	if ch <= 0 || len(data) != 16+4*n*ch {
		return fmt.Errorf("pcm buffer: truncated (%d channels, %d frames, %d bytes)", ch, n, len(data))
	}
	*b = *NewBuffer(rate, ch, n)
	off := 16
	for c := 0; c < ch; c++ {
		for i := 0; i < n; i++ {
			b.Data[c][i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
	}
	return nil
}
