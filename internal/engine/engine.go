package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voxline/animus/internal/audio"
	"github.com/voxline/animus/internal/bus"
	"github.com/voxline/animus/internal/gesture"
	"github.com/voxline/animus/internal/lipsync"
	"github.com/voxline/animus/internal/schedule"
)

// Config tunes the engine.
type Config struct {
	MaxFrameDelta time.Duration
	Procedural    ProceduralConfig

	TalkGesture  string
	ThinkGesture string
	TalkFade     time.Duration
	ThinkFade    time.Duration
	RestFade     time.Duration
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		MaxFrameDelta: 100 * time.Millisecond,
		Procedural:    DefaultProceduralConfig(),
		TalkGesture:   "talk_idle",
		ThinkGesture:  "think_idle",
		TalkFade:      500 * time.Millisecond,
		ThinkFade:     800 * time.Millisecond,
		RestFade:      500 * time.Millisecond,
	}
}

// Engine is the top-level avatar controller. All animation time
// advances inside Update, driven by the host's render loop; external
// events only mutate state under short locks.
type Engine struct {
	mu     sync.Mutex
	logger zerolog.Logger
	events *bus.EventBus
	cfg    Config

	sched    *schedule.Scheduler
	lips     *lipsync.Manager
	gestures *gesture.Manager
	rig      *Rig

	newSink func() audio.Sink

	blink *blinkController
	head  *headMotion
	torso *torsoSway
	gaze  *gazeDrift

	baseState    State
	override     *State
	emotionScale float32
	expressions  map[string]float32

	lastEffective State
	currentIndex  int // segment in flight, -1 when none
}

// New wires the engine over its collaborators. newSink produces one
// audio sink per segment; nil degrades to clock-only playback.
func New(
	cfg Config,
	sched *schedule.Scheduler,
	lips *lipsync.Manager,
	gestures *gesture.Manager,
	rig *Rig,
	events *bus.EventBus,
	newSink func() audio.Sink,
	logger zerolog.Logger,
) *Engine {
	if newSink == nil {
		newSink = func() audio.Sink { return audio.NullSink{} }
	}

	e := &Engine{
		logger:        logger.With().Str("component", "engine").Logger(),
		events:        events,
		cfg:           cfg,
		sched:         sched,
		lips:          lips,
		gestures:      gestures,
		rig:           rig,
		newSink:       newSink,
		blink:         newBlinkController(cfg.Procedural),
		head:          newHeadMotion(cfg.Procedural),
		torso:         newTorsoSway(cfg.Procedural),
		gaze:          newGazeDrift(cfg.Procedural),
		baseState:     StateIdle,
		emotionScale:  1.0,
		expressions:   make(map[string]float32),
		lastEffective: StateIdle,
		currentIndex:  -1,
	}

	lips.OnComplete(e.segmentDone)
	sched.OnInterrupt(e.utteranceInterrupted)

	return e
}

// Update advances the engine by the real elapsed delta and returns the
// parameter frame for the renderer. It must be called once per render
// tick; skipped or delayed ticks are absorbed by the delta clamp.
func (e *Engine) Update(dt float32) Frame {
	if maxDt := float32(e.cfg.MaxFrameDelta.Seconds()); dt > maxDt {
		dt = maxDt
	}

	e.pumpScheduler()
	e.lips.Update(dt)

	eff := e.effectiveState()

	e.mu.Lock()
	changed := eff != e.lastEffective
	e.lastEffective = eff
	boost := e.emotionScale
	e.mu.Unlock()

	if changed {
		e.onTransition(eff)
	}

	if eff == StateTalking {
		boost *= e.cfg.Procedural.TalkingBoost
	}

	now := time.Now()
	e.blink.update(dt, now, boost)
	e.head.update(dt, now, boost)
	e.torso.update(dt, boost)
	e.gaze.update(dt, now, boost)
	e.gestures.Update(dt)

	return e.compose(eff)
}

// pumpScheduler starts playback of the next in-order segment when
// nothing is in flight. A setup or play failure leaves the segment
// unmarked so the next update retries.
func (e *Engine) pumpScheduler() {
	e.mu.Lock()
	busy := e.currentIndex >= 0
	e.mu.Unlock()
	if busy || e.lips.IsPlaying() {
		return
	}

	seg := e.sched.Next()
	if seg == nil {
		return
	}

	handle := audio.NewHandle(seg.Audio, e.newSink())
	if err := e.lips.SetupAudio(handle, seg.Timeline); err != nil {
		e.logger.Warn().Err(err).Int("index", seg.Index).Msg("Audio setup failed")
		return
	}
	if err := e.lips.Play(); err != nil {
		e.logger.Warn().Err(err).Int("index", seg.Index).Msg("Playback failed")
		e.lips.Stop()
		return
	}

	e.sched.MarkPlaying(seg.Index)
	e.mu.Lock()
	e.currentIndex = seg.Index
	e.mu.Unlock()

	e.events.Publish(bus.Event{
		Type: bus.EventTypeSegmentStarted,
		Data: map[string]any{"index": seg.Index},
	})
}

// segmentDone advances the scheduler cursor once the active segment
// reaches its natural end.
func (e *Engine) segmentDone() {
	e.mu.Lock()
	index := e.currentIndex
	e.currentIndex = -1
	e.mu.Unlock()

	if index < 0 {
		return
	}
	e.sched.MarkPlayed(index)
	e.events.Publish(bus.Event{
		Type: bus.EventTypeSegmentFinished,
		Data: map[string]any{"index": index},
	})
}

// utteranceInterrupted handles barge-in: playback stops and mouth
// outputs are zeroed on the same frame, never on a delayed callback.
func (e *Engine) utteranceInterrupted(old uuid.UUID) {
	e.lips.Stop()

	e.mu.Lock()
	e.currentIndex = -1
	e.mu.Unlock()

	e.events.Publish(bus.Event{
		Type: bus.EventTypeUtteranceInterrupted,
		Data: map[string]any{"utterance": old.String()},
	})
}

// effectiveState resolves the state the avatar should act as this
// frame: an explicit override wins, otherwise audio playback implies
// talking, otherwise the externally requested base state holds.
func (e *Engine) effectiveState() State {
	e.mu.Lock()
	override := e.override
	base := e.baseState
	e.mu.Unlock()

	if override != nil {
		return *override
	}
	if e.lips.IsPlaying() {
		return StateTalking
	}
	return base
}

// onTransition fires gesture requests on the edge of a state change,
// never re-triggering the same gesture every frame.
func (e *Engine) onTransition(to State) {
	switch to {
	case StateTalking:
		if err := e.gestures.Play(e.cfg.TalkGesture, e.cfg.TalkFade); err != nil {
			e.logger.Debug().Err(err).Msg("Talking gesture unavailable")
		}
	case StateThinking:
		if err := e.gestures.Play(e.cfg.ThinkGesture, e.cfg.ThinkFade); err != nil {
			e.logger.Debug().Err(err).Msg("Thinking gesture unavailable")
		}
	default:
		e.gestures.ReturnToRest(e.cfg.RestFade)
	}

	e.events.Publish(bus.Event{
		Type: bus.EventTypeStateChanged,
		Data: map[string]any{"state": string(to)},
	})
	e.logger.Debug().Str("state", string(to)).Msg("State change")
}

// compose assembles the output frame. Blink and mouth are independent
// channels; both are written every frame through the rig's capability
// table, which silently skips parameters this character lacks.
func (e *Engine) compose(eff State) Frame {
	params := make(map[string]float32, 16)

	mouth := e.lips.Mouth()
	e.rig.Set(params, ParamMouthOpen, mouth.Open)
	e.rig.Set(params, ParamMouthForm, mouth.Form)

	blinkAmount := e.blink.amount()
	e.rig.Set(params, ParamBlinkL, blinkAmount)
	e.rig.Set(params, ParamBlinkR, blinkAmount)

	e.rig.Set(params, ParamHeadRotX, e.head.current.X())
	e.rig.Set(params, ParamHeadRotY, e.head.current.Y())
	e.rig.Set(params, ParamHeadRotZ, e.head.current.Z())
	e.rig.Set(params, ParamTorsoRotX, e.torso.value())
	e.rig.Set(params, ParamGazeX, e.gaze.current.X())
	e.rig.Set(params, ParamGazeY, e.gaze.current.Y())

	e.mu.Lock()
	for name, w := range e.expressions {
		params[name] = w
	}
	e.mu.Unlock()

	for name, w := range e.gestures.Weights() {
		params["gesture."+name] = w
	}

	return Frame{
		Params:  params,
		Talking: eff == StateTalking,
		Gesture: e.gestures.Current(),
	}
}

// RequestState asks for a base state (idle, listening, thinking). The
// talking state is inferred from playback and cannot be requested.
func (e *Engine) RequestState(s State) {
	if s == StateTalking {
		return
	}
	e.mu.Lock()
	e.baseState = s
	e.mu.Unlock()
}

// SetOverride pins the effective state regardless of audio playback;
// nil releases the override.
func (e *Engine) SetOverride(s *State) {
	e.mu.Lock()
	e.override = s
	e.mu.Unlock()
}

// HandleEmotion applies an emotion signal: procedural intensity,
// gesture weighting, and an optional immediate gesture.
func (e *Engine) HandleEmotion(sig EmotionSignal) {
	e.mu.Lock()
	e.emotionScale = sig.Intensity.Scale()
	e.mu.Unlock()

	e.gestures.SetEmotion(string(sig.Emotion))
	if sig.Gesture != "" {
		if err := e.gestures.Play(sig.Gesture, e.cfg.TalkFade); err != nil {
			e.logger.Debug().Err(err).Str("gesture", sig.Gesture).Msg("Emotion gesture unavailable")
		}
	}

	e.events.Publish(bus.Event{
		Type: bus.EventTypeEmotionChanged,
		Data: map[string]any{"emotion": string(sig.Emotion), "intensity": string(sig.Intensity)},
	})
}

// Speak bypasses the scheduler and plays a decoded buffer directly.
// Used by manual QA commands.
func (e *Engine) Speak(buf *audio.Buffer, timeline []lipsync.Cue) error {
	e.mu.Lock()
	index := e.currentIndex
	e.currentIndex = -1
	e.mu.Unlock()

	// A preempted in-flight segment is consumed rather than stranded,
	// so the utterance resumes at the next index afterwards.
	if index >= 0 {
		e.sched.MarkPlayed(index)
	}

	handle := audio.NewHandle(buf, e.newSink())
	if err := e.lips.SetupAudio(handle, timeline); err != nil {
		return err
	}
	return e.lips.Play()
}

// PlayGesture bypasses state-driven selection. Used by manual QA.
func (e *Engine) PlayGesture(name string, fade time.Duration) error {
	if err := e.gestures.Play(name, fade); err != nil {
		return err
	}
	e.events.Publish(bus.Event{
		Type: bus.EventTypeGestureChanged,
		Data: map[string]any{"gesture": name},
	})
	return nil
}

// StopGesture returns to the rest pose. Used by manual QA.
func (e *Engine) StopGesture() {
	e.gestures.ReturnToRest(e.cfg.RestFade)
	e.events.Publish(bus.Event{
		Type: bus.EventTypeGestureChanged,
		Data: map[string]any{"gesture": ""},
	})
}

// SetExpression pins a named parameter to a weight until cleared.
func (e *Engine) SetExpression(name string, weight float32) {
	e.mu.Lock()
	e.expressions[name] = clamp32(weight, 0, 1)
	e.mu.Unlock()
}

// ClearExpressions removes all pinned expression parameters.
func (e *Engine) ClearExpressions() {
	e.mu.Lock()
	e.expressions = make(map[string]float32)
	e.mu.Unlock()
}

// Scheduler exposes the segment scheduler to the transport layer.
func (e *Engine) Scheduler() *schedule.Scheduler {
	return e.sched
}

// Talking reports whether the effective state is talking.
func (e *Engine) Talking() bool {
	return e.effectiveState() == StateTalking
}

// TriggerBlink forces an immediate blink. Used by manual QA.
func (e *Engine) TriggerBlink() {
	e.blink.trigger()
}
