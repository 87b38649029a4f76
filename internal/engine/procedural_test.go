package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlink_AmountAlwaysClamped(t *testing.T) {
	b := newBlinkController(DefaultProceduralConfig())
	b.trigger()

	now := time.Now()
	for i := 0; i < 600; i++ {
		b.update(1.0/60.0, now, 1.0)
		now = now.Add(time.Second / 60)

		amount := b.amount()
		assert.GreaterOrEqual(t, amount, float32(0))
		assert.LessOrEqual(t, amount, float32(1))
	}
}

func TestBlink_ReturnsToZeroWithinDuration(t *testing.T) {
	cfg := DefaultProceduralConfig()
	cfg.DoubleBlinkOdds = 0 // keep the cycle deterministic
	b := newBlinkController(cfg)
	b.trigger()
	require.Equal(t, blinkClosing, b.state)

	// One full blink duration plus a frame of slack covers the
	// closing, hold and opening phases.
	steps := int(cfg.BlinkDuration.Seconds()*60) + 2
	now := time.Now()
	for i := 0; i < steps; i++ {
		b.update(1.0/60.0, now, 1.0)
		now = now.Add(time.Second / 60)
	}

	assert.Equal(t, blinkOpen, b.state)
	assert.Zero(t, b.amount())
}

func TestBlink_ReachesFullyClosed(t *testing.T) {
	cfg := DefaultProceduralConfig()
	b := newBlinkController(cfg)
	b.trigger()

	var peak float32
	now := time.Now()
	steps := int(cfg.BlinkDuration.Seconds()*60) + 2
	for i := 0; i < steps; i++ {
		b.update(1.0/60.0, now, 1.0)
		now = now.Add(time.Second / 60)
		if a := b.amount(); a > peak {
			peak = a
		}
	}

	assert.Equal(t, float32(1), peak, "the eye fully closes mid-blink")
}

func TestBlink_TriggerIgnoredMidBlink(t *testing.T) {
	b := newBlinkController(DefaultProceduralConfig())
	b.trigger()
	b.update(1.0/60.0, time.Now(), 1.0)
	stateBefore := b.state
	progressBefore := b.progress

	b.trigger()
	assert.Equal(t, stateBefore, b.state)
	assert.Equal(t, progressBefore, b.progress)
}

func TestBlink_TalkingBoostShortensGap(t *testing.T) {
	cfg := DefaultProceduralConfig()
	cfg.DoubleBlinkOdds = 0
	b := newBlinkController(cfg)
	b.trigger()

	// Run one full blink so the next gap is scheduled under boost.
	now := time.Now()
	steps := int(cfg.BlinkDuration.Seconds()*60) + 2
	for i := 0; i < steps; i++ {
		b.update(1.0/60.0, now, cfg.TalkingBoost)
		now = now.Add(time.Second / 60)
	}
	require.Equal(t, blinkOpen, b.state)

	gap := b.nextBlink.Sub(now)
	maxGap := time.Duration(float64(cfg.BlinkMaxGap) / float64(cfg.TalkingBoost))
	assert.LessOrEqual(t, gap, maxGap, "boosted cadence never exceeds the scaled maximum gap")
}

func TestBlink_FiresOnSchedule(t *testing.T) {
	cfg := DefaultProceduralConfig()
	b := newBlinkController(cfg)

	// Jump past the farthest possible scheduled blink.
	future := time.Now().Add(cfg.BlinkMaxGap + time.Second)
	b.update(1.0/60.0, future, 1.0)
	assert.Equal(t, blinkClosing, b.state)
}

func TestHeadMotion_StaysWithinRange(t *testing.T) {
	cfg := DefaultProceduralConfig()
	h := newHeadMotion(cfg)

	now := time.Now()
	for i := 0; i < 1200; i++ {
		h.update(1.0/60.0, now, 1.0)
		now = now.Add(time.Second / 60)

		assert.LessOrEqual(t, absf(h.current.Y()), cfg.HeadTurnRange+1e-4)
		assert.LessOrEqual(t, absf(h.current.X()), cfg.HeadTurnRange*0.6+1e-4)
		assert.LessOrEqual(t, absf(h.current.Z()), cfg.HeadTurnRange*0.3+1e-4)
	}
}

func TestHeadMotion_SmoothsFrameToFrame(t *testing.T) {
	h := newHeadMotion(DefaultProceduralConfig())

	now := time.Now()
	h.update(1.0/60.0, now, 1.0)
	prev := h.current

	// After retargeting, motion must creep toward the target instead of
	// snapping.
	h.update(1.0/60.0, now.Add(time.Second/60), 1.0)
	step := h.current.Sub(prev).Len()
	assert.Less(t, step, float32(0.05), "head never jumps in a single frame")
}

func TestTorsoSway_BoundedByRange(t *testing.T) {
	cfg := DefaultProceduralConfig()
	ts := newTorsoSway(cfg)

	for i := 0; i < 2000; i++ {
		ts.update(1.0/60.0, 1.0)
		assert.LessOrEqual(t, absf(ts.value()), cfg.TorsoSwayRange+1e-4)
	}
}

func TestTorsoSway_TalkingBoostSpeedsDrift(t *testing.T) {
	cfg := DefaultProceduralConfig()
	calm := newTorsoSway(cfg)
	lively := newTorsoSway(cfg)

	calm.update(1.0, 1.0)
	lively.update(1.0, cfg.TalkingBoost)

	assert.Greater(t, lively.time, calm.time)
}

func TestGazeDrift_KeepsDownwardBias(t *testing.T) {
	cfg := DefaultProceduralConfig()
	g := newGazeDrift(cfg)

	var sum float32
	now := time.Now()
	const frames = 3600
	for i := 0; i < frames; i++ {
		g.update(1.0/60.0, now, 1.0)
		now = now.Add(time.Second / 60)
		sum += g.current.Y()
	}

	assert.Less(t, sum/frames, float32(0), "gaze averages below the horizon")
}

func TestLayeredNoise_Bounded(t *testing.T) {
	for i := 0; i < 1000; i++ {
		v := layeredNoise(float32(i)*0.05, 7.3)
		assert.LessOrEqual(t, absf(v), float32(1))
	}
}

func TestIntensityScale(t *testing.T) {
	assert.Equal(t, float32(0.6), IntensityLow.Scale())
	assert.Equal(t, float32(1.0), IntensityMedium.Scale())
	assert.Equal(t, float32(1.4), IntensityHigh.Scale())
	assert.Equal(t, float32(1.0), Intensity("").Scale())
}
