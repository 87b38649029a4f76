package lipsync

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/voxline/animus/internal/audio"
)

// ErrNoAudio is returned when playback is requested without a handle.
var ErrNoAudio = errors.New("lipsync: no audio handle configured")

// Config tunes the manager.
type Config struct {
	// Smoothing is k in next = prev + k*(raw-prev), applied per update
	// identically in timeline and live modes.
	Smoothing float32
	Spectral  SpectralConfig
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		Smoothing: 0.35,
		Spectral:  DefaultSpectralConfig(),
	}
}

// Manager owns the active audio handle, selects the extraction strategy
// and smooths the resulting weights into a single current mouth shape.
type Manager struct {
	mu     sync.Mutex
	logger zerolog.Logger

	smoothing float32
	handle    *audio.Handle
	timeline  *TimelineExtractor // nil when the active segment has no cue list
	live      Extractor

	smoothed PhonemeWeights
	mouth    MouthShape

	onComplete func()
}

// NewManager builds a lip-sync manager with a live spectral fallback.
func NewManager(cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{
		logger:    logger.With().Str("component", "lipsync").Logger(),
		smoothing: cfg.Smoothing,
		live:      NewSpectralExtractor(cfg.Spectral),
	}
}

// SetupAudio installs a decoded handle as the active audio, fully
// stopping and releasing any previous one first. A non-empty timeline
// selects cue lookup; otherwise live estimation is used.
func (m *Manager) SetupAudio(h *audio.Handle, timeline []Cue) error {
	if h == nil {
		return ErrNoAudio
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle != nil {
		m.handle.Stop()
		m.handle.Release()
	}

	m.handle = h
	if len(timeline) > 0 {
		m.timeline = NewTimelineExtractor(timeline)
	} else {
		m.timeline = nil
	}

	h.OnDone(func() {
		m.finishPlayback()
	})
	return nil
}

// SetLiveExtractor swaps the live estimation strategy at runtime. The
// active audio handle is untouched.
func (m *Manager) SetLiveExtractor(e Extractor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e != nil {
		m.live = e
	}
}

// OnComplete registers a callback fired exactly once per playback when
// audio reaches its natural end.
func (m *Manager) OnComplete(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onComplete = fn
}

// Play starts the active handle.
func (m *Manager) Play() error {
	m.mu.Lock()
	h := m.handle
	m.mu.Unlock()

	if h == nil {
		return ErrNoAudio
	}
	if err := h.Play(); err != nil {
		m.logger.Warn().Err(err).Msg("Playback start failed")
		return err
	}
	return nil
}

// Stop halts playback and zeroes all mouth outputs on the same call, so
// the character never freezes mid-word.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle != nil {
		m.handle.Stop()
		m.handle.Release()
		m.handle = nil
	}
	m.timeline = nil
	m.smoothed = PhonemeWeights{}
	m.mouth = MouthShape{}
}

// IsPlaying reports whether the active handle's clock is running.
func (m *Manager) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil && m.handle.IsPlaying()
}

// Update is called once per render frame. It polls the playback clock,
// extracts the raw phoneme vector for this instant, smooths it, and
// publishes the reduced mouth shape.
func (m *Manager) Update(dt float32) {
	m.mu.Lock()
	h := m.handle
	m.mu.Unlock()

	var raw PhonemeWeights
	if h != nil {
		if h.Poll() {
			// Natural end: the OnDone callback already reset state.
			return
		}
		if h.IsPlaying() {
			pos := h.Position()
			m.mu.Lock()
			if m.timeline != nil {
				raw = m.timeline.Extract(h.Buffer(), pos)
			} else {
				raw = m.live.Extract(h.Buffer(), pos)
			}
			m.mu.Unlock()
		}
	}

	m.mu.Lock()
	k := m.smoothing
	m.smoothed.AA += k * (raw.AA - m.smoothed.AA)
	m.smoothed.EE += k * (raw.EE - m.smoothed.EE)
	m.smoothed.IH += k * (raw.IH - m.smoothed.IH)
	m.smoothed.OH += k * (raw.OH - m.smoothed.OH)
	m.smoothed.OU += k * (raw.OU - m.smoothed.OU)
	m.mouth = Reduce(m.smoothed)
	m.mu.Unlock()
}

// Mouth returns the current smoothed, reduced mouth shape.
func (m *Manager) Mouth() MouthShape {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mouth
}

// Weights returns the current smoothed phoneme vector.
func (m *Manager) Weights() PhonemeWeights {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.smoothed
}

// finishPlayback resets mouth state once playback ends naturally and
// fires the completion callback.
func (m *Manager) finishPlayback() {
	m.mu.Lock()
	m.smoothed = PhonemeWeights{}
	m.mouth = MouthShape{}
	done := m.onComplete
	m.mu.Unlock()

	if done != nil {
		done()
	}
}
