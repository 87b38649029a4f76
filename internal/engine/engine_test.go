package engine

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxline/animus/internal/audio"
	"github.com/voxline/animus/internal/bus"
	"github.com/voxline/animus/internal/gesture"
	"github.com/voxline/animus/internal/lipsync"
	"github.com/voxline/animus/internal/schedule"
)

type engineFixture struct {
	engine *Engine
	sched  *schedule.Scheduler
	lips   *lipsync.Manager
	bus    *bus.EventBus
}

func newFixture(t *testing.T) *engineFixture {
	t.Helper()
	logger := zerolog.Nop()

	library := gestureLibrary("idle_breathe", "talk_idle", "think_idle", "wave")
	gestures := gesture.NewManager(library, gesture.Config{IdleVariety: false}, logger)
	lips := lipsync.NewManager(lipsync.DefaultConfig(), logger)
	sched := schedule.NewScheduler(logger)
	events := bus.NewEventBus()
	t.Cleanup(events.Clear)

	eng := New(DefaultConfig(), sched, lips, gestures, NewRig(nil), events, nil, logger)
	return &engineFixture{engine: eng, sched: sched, lips: lips, bus: events}
}

func gestureLibrary(names ...string) *gesture.Library {
	l := gesture.NewLibrary("", zerolog.Nop())
	for _, name := range names {
		priority := gesture.PriorityEmphasis
		if name == "talk_idle" || name == "think_idle" {
			priority = gesture.PrioritySpeech
		} else if name == "idle_breathe" {
			priority = gesture.PriorityIdle
		}
		l.Register(&gesture.Clip{Name: name, Priority: priority, Duration: 1})
	}
	return l
}

func toneBuffer(seconds float64) *audio.Buffer {
	rate := 24000
	samples := make([]float64, int(seconds*float64(rate)))
	for i := range samples {
		samples[i] = 0.5
	}
	return &audio.Buffer{Samples: samples, SampleRate: rate}
}

func queueSegment(f *engineFixture, u uuid.UUID, index int, seconds float64) {
	f.sched.Add(&schedule.Segment{
		Utterance: u,
		Index:     index,
		Audio:     toneBuffer(seconds),
		Timeline:  []lipsync.Cue{{Start: 0, End: seconds, Weights: lipsync.PhonemeWeights{AA: 1}}},
	})
}

func TestEngine_StartsInIdle(t *testing.T) {
	f := newFixture(t)
	frame := f.engine.Update(1.0 / 60.0)
	assert.False(t, frame.Talking)
	assert.False(t, f.engine.Talking())
}

func TestEngine_TalkingFollowsPlayback(t *testing.T) {
	f := newFixture(t)

	queueSegment(f, uuid.New(), 0, 1.0)

	// The first update pumps the scheduler and starts playback.
	frame := f.engine.Update(1.0 / 60.0)
	assert.True(t, f.lips.IsPlaying())
	assert.True(t, frame.Talking)
	assert.Equal(t, "talk_idle", frame.Gesture)
}

func TestEngine_SegmentsPlayStrictlyInOrder(t *testing.T) {
	f := newFixture(t)
	u := uuid.New()

	// Out-of-order arrival; segment 0 short enough to finish during the test.
	queueSegment(f, u, 1, 1.0)
	queueSegment(f, u, 0, 0.02)

	f.engine.Update(1.0 / 60.0)
	assert.Equal(t, 0, f.sched.Expected(), "segment 0 is in flight, not yet consumed")

	time.Sleep(40 * time.Millisecond)
	f.engine.Update(1.0 / 60.0) // detects natural end, marks 0 played
	assert.Equal(t, 1, f.sched.Expected())

	f.engine.Update(1.0 / 60.0) // picks up segment 1
	assert.True(t, f.lips.IsPlaying())
}

func TestEngine_BargeInStopsPlaybackSameFrame(t *testing.T) {
	f := newFixture(t)

	queueSegment(f, uuid.New(), 0, 5.0)
	f.engine.Update(1.0 / 60.0)
	require.True(t, f.lips.IsPlaying())

	// New utterance arrives mid-playback.
	queueSegment(f, uuid.New(), 1, 5.0)

	assert.False(t, f.lips.IsPlaying(), "barge-in halts the old segment immediately")
	assert.True(t, f.lips.Mouth().Open == 0, "mouth zeroed, never frozen mid-word")

	// The new utterance stalls until its segment 0 shows up.
	f.engine.Update(1.0 / 60.0)
	assert.False(t, f.lips.IsPlaying())
}

func TestEngine_OverrideWinsOverPlayback(t *testing.T) {
	f := newFixture(t)

	queueSegment(f, uuid.New(), 0, 5.0)
	f.engine.Update(1.0 / 60.0)
	require.True(t, f.engine.Talking())

	thinking := StateThinking
	f.engine.SetOverride(&thinking)
	frame := f.engine.Update(1.0 / 60.0)
	assert.False(t, frame.Talking)
	assert.Equal(t, "think_idle", frame.Gesture)

	f.engine.SetOverride(nil)
	frame = f.engine.Update(1.0 / 60.0)
	assert.True(t, frame.Talking)
}

func TestEngine_RequestStateIgnoresTalking(t *testing.T) {
	f := newFixture(t)

	f.engine.RequestState(StateTalking)
	frame := f.engine.Update(1.0 / 60.0)
	assert.False(t, frame.Talking, "talking is inferred from playback, never requested")

	f.engine.RequestState(StateThinking)
	frame = f.engine.Update(1.0 / 60.0)
	assert.Equal(t, "think_idle", frame.Gesture)
}

func TestEngine_TransitionGesturesAreEdgeTriggered(t *testing.T) {
	f := newFixture(t)

	var changes atomic.Int32
	f.bus.Subscribe(bus.EventTypeStateChanged, func(bus.Event) { changes.Add(1) })

	f.engine.RequestState(StateThinking)
	f.engine.Update(1.0 / 60.0)
	for i := 0; i < 10; i++ {
		f.engine.Update(1.0 / 60.0)
	}

	// Give the async bus dispatch a moment.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), changes.Load(), "staying in a state publishes no repeat transitions")
}

func TestEngine_FrameCarriesAllChannels(t *testing.T) {
	f := newFixture(t)
	f.engine.TriggerBlink()

	frame := f.engine.Update(1.0 / 60.0)

	for _, logical := range []string{
		ParamMouthOpen, ParamMouthForm, ParamBlinkL, ParamBlinkR,
		ParamHeadRotX, ParamHeadRotY, ParamHeadRotZ,
		ParamTorsoRotX, ParamGazeX, ParamGazeY,
	} {
		assert.Contains(t, frame.Params, logical)
	}
	assert.Greater(t, frame.Params[ParamBlinkL], float32(0), "triggered blink shows up in the frame")
	assert.Equal(t, frame.Params[ParamBlinkL], frame.Params[ParamBlinkR])
}

func TestEngine_SpeakBypassesScheduler(t *testing.T) {
	f := newFixture(t)

	err := f.engine.Speak(toneBuffer(1.0), nil)
	require.NoError(t, err)

	frame := f.engine.Update(1.0 / 60.0)
	assert.True(t, frame.Talking)
	assert.Equal(t, 0, f.sched.Expected(), "manual speech never advances the scheduler")
}

func TestEngine_SpeakConsumesPreemptedSegment(t *testing.T) {
	f := newFixture(t)

	u := uuid.New()
	queueSegment(f, u, 0, 5.0)
	queueSegment(f, u, 1, 0.02)
	f.engine.Update(1.0 / 60.0) // segment 0 in flight
	require.Equal(t, 0, f.sched.Expected())

	err := f.engine.Speak(toneBuffer(0.02), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.sched.Expected(), "the cut-off segment is consumed, not stranded")

	// The queued follow-up waits for the manual speech to end, then
	// the utterance resumes on its own.
	f.engine.Update(1.0 / 60.0)
	assert.Equal(t, 1, f.sched.Pending(), "segment 1 untouched while manual speech plays")

	time.Sleep(40 * time.Millisecond)
	f.engine.Update(1.0 / 60.0) // manual speech ends
	f.engine.Update(1.0 / 60.0) // segment 1 starts
	assert.True(t, f.lips.IsPlaying())
	assert.Equal(t, 1, f.engine.Scheduler().Expected())
}

func TestEngine_Expressions(t *testing.T) {
	f := newFixture(t)

	f.engine.SetExpression("smile", 0.8)
	f.engine.SetExpression("browUp", 1.5) // clamped

	frame := f.engine.Update(1.0 / 60.0)
	assert.Equal(t, float32(0.8), frame.Params["smile"])
	assert.Equal(t, float32(1.0), frame.Params["browUp"])

	f.engine.ClearExpressions()
	frame = f.engine.Update(1.0 / 60.0)
	assert.NotContains(t, frame.Params, "smile")
}

func TestEngine_EmotionSignal(t *testing.T) {
	f := newFixture(t)

	f.engine.HandleEmotion(EmotionSignal{
		Emotion:   EmotionExcited,
		Intensity: IntensityHigh,
		Gesture:   "wave",
	})

	frame := f.engine.Update(1.0 / 60.0)
	assert.Equal(t, "wave", frame.Gesture)
}

func TestEngine_GestureWeightsInFrame(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.PlayGesture("wave", 0))
	frame := f.engine.Update(1.0 / 60.0)
	assert.Equal(t, float32(1), frame.Params["gesture.wave"])

	f.engine.StopGesture()
	for i := 0; i < 60; i++ {
		frame = f.engine.Update(1.0 / 60.0)
	}
	assert.NotContains(t, frame.Params, "gesture.wave")
	assert.Empty(t, frame.Gesture)
}

func TestEngine_DeltaClamp(t *testing.T) {
	f := newFixture(t)

	// A huge stall must not explode the blink state machine.
	f.engine.TriggerBlink()
	frame := f.engine.Update(10.0)
	assert.LessOrEqual(t, frame.Params[ParamBlinkL], float32(1))
	assert.GreaterOrEqual(t, frame.Params[ParamBlinkL], float32(0))
}
