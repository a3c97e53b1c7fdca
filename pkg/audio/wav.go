package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// WAVHeaderSize is the size of the canonical RIFF header EncodeWAV writes.
const WAVHeaderSize = 44

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// EncodeWAV returns b as a 16-bit PCM WAV file. Samples are clipped to
// [-1, 1].
func EncodeWAV(b *Buffer) []byte {
	var buf bytes.Buffer
	buf.Grow(WAVHeaderSize + 2*b.Frames()*b.Channels())
	_ = WriteWAV(&buf, b)
	return buf.Bytes()
}

// WriteWAV writes b to w as a 16-bit PCM WAV file with a 44-byte header.
func WriteWAV(w io.Writer, b *Buffer) error {
	ch := b.Channels()
	if ch == 0 {
		ch = 1
	}
	dataSize := uint32(2 * b.Frames() * b.Channels())

	h := make([]byte, WAVHeaderSize)
	copy(h[0:], "RIFF")
	binary.LittleEndian.PutUint32(h[4:], 36+dataSize)
	copy(h[8:], "WAVE")
	copy(h[12:], "fmt ")
	binary.LittleEndian.PutUint32(h[16:], 16)
	binary.LittleEndian.PutUint16(h[20:], wavFormatPCM)
	binary.LittleEndian.PutUint16(h[22:], uint16(ch))
	binary.LittleEndian.PutUint32(h[24:], uint32(b.SampleRate))
	binary.LittleEndian.PutUint32(h[28:], uint32(b.SampleRate*ch*2))
	binary.LittleEndian.PutUint16(h[32:], uint16(ch*2))
	binary.LittleEndian.PutUint16(h[34:], 16)
	copy(h[36:], "data")
	binary.LittleEndian.PutUint32(h[40:], dataSize)
	if _, err := w.Write(h); err != nil {
		return err
	}
	_, err := w.Write(PCM16(b))
	return err
}

// PCM16 returns b as interleaved signed 16-bit little-endian samples,
// clipped to [-1, 1].
func PCM16(b *Buffer) []byte {
	n, ch := b.Frames(), b.Channels()
	out := make([]byte, 2*n*ch)
	off := 0
	for i := 0; i < n; i++ {
		for c := 0; c < ch; c++ {
			binary.LittleEndian.PutUint16(out[off:], uint16(toInt16(b.Data[c][i])))
			off += 2
		}
	}
	return out
}

func toInt16(v float32) int16 {
	f := math.Max(-1, math.Min(1, float64(v)))
	return int16(math.Round(f * math.MaxInt16))
}

// DecodeWAV parses a WAV file holding 16-bit PCM or 32-bit float samples.
func DecodeWAV(data []byte) (*Buffer, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	var (
		format, channels, bits uint16
		rate                   uint32
		haveFmt                bool
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4:]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			size = len(data) - body
		}
		chunk := data[body : body+size]

		switch id {
		case "fmt ":
			if len(chunk) < 16 {
				return nil, fmt.Errorf("wav: short fmt chunk")
			}
			format = binary.LittleEndian.Uint16(chunk[0:])
			channels = binary.LittleEndian.Uint16(chunk[2:])
			rate = binary.LittleEndian.Uint32(chunk[4:])
			bits = binary.LittleEndian.Uint16(chunk[14:])
			if format == wavFormatExtensible && len(chunk) >= 26 {
				format = binary.LittleEndian.Uint16(chunk[24:])
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("wav: data chunk before fmt chunk")
			}
			return decodeSamples(chunk, format, int(channels), int(bits), int(rate))
		}
		pos = body + size + size%2
	}
	return nil, fmt.Errorf("wav: no data chunk")
}

func decodeSamples(chunk []byte, format uint16, channels, bits, rate int) (*Buffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("wav: %d channels", channels)
	}
	switch {
	case format == wavFormatPCM && bits == 16:
		n := len(chunk) / (2 * channels)
		b := NewBuffer(rate, channels, n)
		for i := 0; i < n; i++ {
			for c := 0; c < channels; c++ {
				v := int16(binary.LittleEndian.Uint16(chunk[2*(i*channels+c):]))
				b.Data[c][i] = float32(v) / 32768
			}
		}
		return b, nil
	case format == wavFormatFloat && bits == 32:
		n := len(chunk) / (4 * channels)
		b := NewBuffer(rate, channels, n)
		for i := 0; i < n; i++ {
			for c := 0; c < channels; c++ {
				b.Data[c][i] = math.Float32frombits(binary.LittleEndian.Uint32(chunk[4*(i*channels+c):]))
			}
		}
		return b, nil
	}
	return nil, fmt.Errorf("wav: unsupported encoding (format %d, %d bits)", format, bits)
}
