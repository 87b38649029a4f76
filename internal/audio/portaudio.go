package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// ErrReleased is returned when operating on a released handle.
var ErrReleased = errors.New("audio: handle released")

const framesPerBuffer = 1024

// PortAudioSink plays buffers through the default output device.
type PortAudioSink struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	out    []int16
	stop   chan struct{}
}

// NewPortAudioSink initializes PortAudio and returns a sink. The caller
// owns the sink and must Close it to terminate PortAudio.
func NewPortAudioSink() (*PortAudioSink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	return &PortAudioSink{}, nil
}

// Start opens an output stream at the buffer's sample rate and feeds it
// from a goroutine. Any previous stream is stopped first.
func (s *PortAudioSink) Start(buf *Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	s.out = make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(buf.SampleRate), framesPerBuffer, s.out)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start output stream: %w", err)
	}

	s.stream = stream
	s.stop = make(chan struct{})
	go s.feed(buf, stream, s.stop)
	return nil
}

func (s *PortAudioSink) feed(buf *Buffer, stream *portaudio.Stream, stop chan struct{}) {
	pos := 0
	for pos < len(buf.Samples) {
		select {
		case <-stop:
			return
		default:
		}

		for i := range s.out {
			if pos+i < len(buf.Samples) {
				v := buf.Samples[pos+i]
				if v > 1 {
					v = 1
				} else if v < -1 {
					v = -1
				}
				s.out[i] = int16(v * 32767)
			} else {
				s.out[i] = 0
			}
		}
		if err := stream.Write(); err != nil {
			return
		}
		pos += len(s.out)
	}
}

// Stop halts the current stream.
func (s *PortAudioSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

func (s *PortAudioSink) stopLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	if s.stream != nil {
		_ = s.stream.Stop()
		_ = s.stream.Close()
		s.stream = nil
	}
}

// Close stops playback and terminates PortAudio.
func (s *PortAudioSink) Close() error {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
	return portaudio.Terminate()
}
