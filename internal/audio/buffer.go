// Package audio provides decoded audio buffers and single-owner playback
// handles with a position clock for frame-synchronous analysis.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// Buffer holds mono PCM samples normalized to [-1, 1].
type Buffer struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Window copies up to n samples centered-forward from the given position
// into dst and returns the count written. Positions outside the buffer
// yield zeros.
func (b *Buffer) Window(position float64, dst []float64) int {
	start := int(position * float64(b.SampleRate))
	n := 0
	for i := range dst {
		idx := start + i
		if idx >= 0 && idx < len(b.Samples) {
			dst[i] = b.Samples[idx]
			n++
		} else {
			dst[i] = 0
		}
	}
	return n
}

// Decode sniffs the payload format and decodes it to a mono Buffer.
// WAV (PCM16) and MP3 payloads are supported.
func Decode(data []byte) (*Buffer, error) {
	if len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")) {
		return decodeWAV(data)
	}
	if buf, err := decodeMP3(data); err == nil {
		return buf, nil
	}
	return nil, fmt.Errorf("unsupported audio format (%d bytes)", len(data))
}

// decodeWAV parses a PCM16 RIFF/WAVE payload, downmixing to mono.
func decodeWAV(data []byte) (*Buffer, error) {
	r := bytes.NewReader(data[12:])

	var sampleRate int
	var channels int
	var bitsPerSample int

	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("wav: missing data chunk")
		}
		chunkID := string(hdr[:4])
		chunkLen := int(binary.LittleEndian.Uint32(hdr[4:]))
		if chunkLen > len(data) {
			return nil, fmt.Errorf("wav: %s chunk length %d exceeds payload", chunkID, chunkLen)
		}

		switch chunkID {
		case "fmt ":
			if chunkLen < 16 {
				return nil, fmt.Errorf("wav: fmt chunk too short (%d bytes)", chunkLen)
			}
			fmtData := make([]byte, chunkLen)
			if _, err := io.ReadFull(r, fmtData); err != nil {
				return nil, fmt.Errorf("wav: short fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(fmtData[0:])
			if format != 1 {
				return nil, fmt.Errorf("wav: unsupported format code %d", format)
			}
			channels = int(binary.LittleEndian.Uint16(fmtData[2:]))
			sampleRate = int(binary.LittleEndian.Uint32(fmtData[4:]))
			bitsPerSample = int(binary.LittleEndian.Uint16(fmtData[14:]))

		case "data":
			if sampleRate == 0 || channels == 0 {
				return nil, fmt.Errorf("wav: data chunk before fmt chunk")
			}
			if bitsPerSample != 16 {
				return nil, fmt.Errorf("wav: unsupported bit depth %d", bitsPerSample)
			}
			pcm := make([]byte, chunkLen)
			if _, err := io.ReadFull(r, pcm); err != nil {
				return nil, fmt.Errorf("wav: short data chunk: %w", err)
			}
			return pcm16ToBuffer(pcm, channels, sampleRate), nil

		default:
			if _, err := r.Seek(int64(chunkLen+chunkLen%2), io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("wav: seek past %s chunk: %w", chunkID, err)
			}
		}
	}
}

// decodeMP3 decodes an MP3 payload. go-mp3 always emits 16-bit stereo.
func decodeMP3(data []byte) (*Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3 read: %w", err)
	}
	return pcm16ToBuffer(pcm, 2, dec.SampleRate()), nil
}

func pcm16ToBuffer(pcm []byte, channels, sampleRate int) *Buffer {
	frameBytes := 2 * channels
	frames := len(pcm) / frameBytes
	samples := make([]float64, frames)

	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			s := int16(binary.LittleEndian.Uint16(pcm[i*frameBytes+c*2:]))
			sum += float64(s) / 32768.0
		}
		samples[i] = sum / float64(channels)
	}

	return &Buffer{Samples: samples, SampleRate: sampleRate}
}
