package audio

import (
	"sync"
	"time"
)

// Sink consumes PCM during playback. The handle drives its own position
// clock; a sink is only responsible for making the audio audible.
type Sink interface {
	// Start begins emitting the buffer. It must return promptly; actual
	// output happens on the sink's own stream.
	Start(buf *Buffer) error
	// Stop halts output immediately.
	Stop() error
	// Close releases the sink's device resources.
	Close() error
}

// NullSink is a clock-only sink used when no audio device is available.
// Lip sync and procedural motion keep working against the handle clock.
type NullSink struct{}

func (NullSink) Start(*Buffer) error { return nil }
func (NullSink) Stop() error         { return nil }
func (NullSink) Close() error        { return nil }

// Handle owns a single decoded buffer and its playback clock. At most
// one Handle plays at a time; the owner must Release the previous one
// before creating a new one.
type Handle struct {
	mu sync.Mutex

	buf      *Buffer
	sink     Sink
	playing  bool
	released bool
	startAt  time.Time
	stoppedAt float64 // position frozen by Stop

	onDone     func()
	doneCalled bool
}

// NewHandle wraps a decoded buffer with the given sink. A nil sink
// degrades to NullSink.
func NewHandle(buf *Buffer, sink Sink) *Handle {
	if sink == nil {
		sink = NullSink{}
	}
	return &Handle{buf: buf, sink: sink}
}

// OnDone registers a callback invoked at most once when playback
// reaches the natural end of the buffer. It fires from Update polling,
// never from an audio-thread callback.
func (h *Handle) OnDone(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDone = fn
}

// Play starts playback from the beginning.
func (h *Handle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return ErrReleased
	}
	if err := h.sink.Start(h.buf); err != nil {
		return err
	}
	h.playing = true
	h.doneCalled = false
	h.startAt = time.Now()
	return nil
}

// Stop halts playback and freezes the position. Safe to call twice.
func (h *Handle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
}

func (h *Handle) stopLocked() {
	if !h.playing {
		return
	}
	h.stoppedAt = time.Since(h.startAt).Seconds()
	h.playing = false
	_ = h.sink.Stop()
}

// Release stops playback and closes the sink. The handle is unusable
// afterwards.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	h.stopLocked()
	h.released = true
	_ = h.sink.Close()
}

// Position returns the current playback position in seconds, clamped
// to the buffer duration.
func (h *Handle) Position() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.playing {
		return h.stoppedAt
	}
	pos := time.Since(h.startAt).Seconds()
	if d := h.buf.Duration(); pos > d {
		pos = d
	}
	return pos
}

// Duration returns the buffer duration in seconds.
func (h *Handle) Duration() float64 {
	return h.buf.Duration()
}

// IsPlaying reports whether the clock is running.
func (h *Handle) IsPlaying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

// Buffer returns the underlying decoded buffer for analysis windows.
func (h *Handle) Buffer() *Buffer {
	return h.buf
}

// Poll advances end-of-playback detection. It returns true exactly once,
// on the poll where the clock first passes the buffer's end, and invokes
// the OnDone callback before returning.
func (h *Handle) Poll() bool {
	h.mu.Lock()
	if !h.playing || h.doneCalled {
		h.mu.Unlock()
		return false
	}
	if time.Since(h.startAt).Seconds() < h.buf.Duration() {
		h.mu.Unlock()
		return false
	}
	h.doneCalled = true
	h.stoppedAt = h.buf.Duration()
	h.playing = false
	_ = h.sink.Stop()
	done := h.onDone
	h.mu.Unlock()

	if done != nil {
		done()
	}
	return true
}
