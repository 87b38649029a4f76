package gesture

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config tunes the manager.
type Config struct {
	IdleVariety     bool
	IdleMinInterval time.Duration
	IdleMaxInterval time.Duration
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		IdleVariety:     true,
		IdleMinInterval: 10 * time.Second,
		IdleMaxInterval: 20 * time.Second,
	}
}

type activeClip struct {
	clip     *Clip
	weight   float32
	explicit bool
}

// Manager resolves which clip is active (explicit command >
// emotion-weighted random pick > rest pose) and cross-fades between
// clips so changes never pop.
type Manager struct {
	mu     sync.Mutex
	logger zerolog.Logger

	library *Library
	cfg     Config

	current *activeClip
	fading  *activeClip // previous clip fading out
	fadeDur float32     // seconds
	fadeAge float32

	emotion      string
	nextIdlePick time.Time

	onChange func(name string)
}

// NewManager builds a gesture manager over a loaded library.
func NewManager(library *Library, cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{
		logger:       logger.With().Str("component", "gesture").Logger(),
		library:      library,
		cfg:          cfg,
		nextIdlePick: time.Now().Add(randomInterval(cfg.IdleMinInterval, cfg.IdleMaxInterval)),
	}
}

// OnChange registers a callback fired when the active gesture changes.
func (m *Manager) OnChange(fn func(name string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Play requests the named clip. A request at priority greater than or
// equal to the current clip's preempts it with a cross-fade over fade;
// a lower-priority request is ignored. Unknown clips are skipped.
func (m *Manager) Play(name string, fade time.Duration) error {
	clip := m.library.Get(name)
	if clip == nil {
		return fmt.Errorf("gesture %q not loaded", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playLocked(clip, fade, true)
	return nil
}

func (m *Manager) playLocked(clip *Clip, fade time.Duration, explicit bool) {
	if m.current != nil {
		if m.current.clip == clip {
			return
		}
		if clip.Priority < m.current.clip.Priority {
			return
		}
		m.fading = m.current
	}

	m.current = &activeClip{clip: clip, explicit: explicit}
	m.fadeDur = float32(fade.Seconds())
	m.fadeAge = 0

	if m.onChange != nil {
		go m.onChange(clip.Name)
	}
	m.logger.Debug().Str("clip", clip.Name).Bool("explicit", explicit).Msg("Gesture change")
}

// ReturnToRest fades the active clip out to the rest pose. It always
// succeeds and is a no-op while already at rest.
func (m *Manager) ReturnToRest(fade time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}
	m.fading = m.current
	m.current = nil
	m.fadeDur = float32(fade.Seconds())
	m.fadeAge = 0

	if m.onChange != nil {
		go m.onChange("")
	}
}

// SetEmotion updates the weighting used by autonomous idle picks.
func (m *Manager) SetEmotion(emotion string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emotion = emotion
}

// Update advances cross-fades and, when idle variety is enabled, makes
// a periodic emotion-weighted clip pick. dt is the real frame delta.
func (m *Manager) Update(dt float32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fading != nil || (m.current != nil && m.current.weight < 1) {
		m.fadeAge += dt
		progress := float32(1)
		if m.fadeDur > 0 && m.fadeAge < m.fadeDur {
			progress = m.fadeAge / m.fadeDur
		}
		if m.current != nil {
			m.current.weight = progress
		}
		if m.fading != nil {
			m.fading.weight = 1 - progress
			if progress >= 1 {
				m.fading = nil
			}
		}
	}

	if m.cfg.IdleVariety && time.Now().After(m.nextIdlePick) {
		m.nextIdlePick = time.Now().Add(randomInterval(m.cfg.IdleMinInterval, m.cfg.IdleMaxInterval))
		m.idlePickLocked()
	}
}

// idlePickLocked selects a random idle clip weighted by the current
// emotion. It never preempts an explicit gesture of higher priority.
func (m *Manager) idlePickLocked() {
	if m.current != nil && m.current.explicit && m.current.clip.Priority > PriorityIdle {
		return
	}

	var candidates []*Clip
	var weights []float64
	var total float64
	for _, name := range m.library.Names() {
		clip := m.library.Get(name)
		if clip == nil || clip.Priority > PriorityIdle {
			continue
		}
		w := 1.0
		if m.emotion != "" && strings.Contains(name, m.emotion) {
			w = 3.0
		}
		candidates = append(candidates, clip)
		weights = append(weights, w)
		total += w
	}
	if len(candidates) == 0 {
		return
	}

	pick := rand.Float64() * total
	for i, clip := range candidates {
		pick -= weights[i]
		if pick <= 0 {
			m.playLocked(clip, 600*time.Millisecond, false)
			return
		}
	}
}

// Current returns the active gesture name, or "" at rest.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.clip.Name
}

// Weights returns the blend weight of each clip participating in the
// current cross-fade, keyed by clip name.
func (m *Manager) Weights() map[string]float32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]float32, 2)
	if m.current != nil && m.current.weight > 0 {
		out[m.current.clip.Name] = m.current.weight
	}
	if m.fading != nil && m.fading.weight > 0 {
		out[m.fading.clip.Name] = m.fading.weight
	}
	return out
}

func randomInterval(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Float64()*float64(max-min))
}
