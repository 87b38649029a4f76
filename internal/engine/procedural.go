package engine

import (
	"math"
	"math/rand"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// ProceduralConfig tunes the continuous motion channels.
type ProceduralConfig struct {
	BlinkMinGap     time.Duration
	BlinkMaxGap     time.Duration
	BlinkDuration   time.Duration
	DoubleBlinkOdds float32

	HeadTurnRange  float32 // radians
	TorsoSwayRange float32 // radians
	GazeDownBias   float32
	TalkingBoost   float32
}

// DefaultProceduralConfig returns the tuned defaults.
func DefaultProceduralConfig() ProceduralConfig {
	return ProceduralConfig{
		BlinkMinGap:     500 * time.Millisecond,
		BlinkMaxGap:     3 * time.Second,
		BlinkDuration:   150 * time.Millisecond,
		DoubleBlinkOdds: 0.2,
		HeadTurnRange:   0.18,
		TorsoSwayRange:  0.05,
		GazeDownBias:    0.08,
		TalkingBoost:    1.6,
	}
}

type blinkState int

const (
	blinkOpen blinkState = iota
	blinkClosing
	blinkClosed
	blinkOpening
)

// blinkController runs the open-closed-open cycle on a randomized
// interval with an occasional immediate double blink.
type blinkController struct {
	cfg ProceduralConfig

	state     blinkState
	progress  float32
	nextBlink time.Time
}

func newBlinkController(cfg ProceduralConfig) *blinkController {
	return &blinkController{
		cfg:       cfg,
		nextBlink: time.Now().Add(randomDuration(cfg.BlinkMinGap, cfg.BlinkMaxGap)),
	}
}

func (b *blinkController) trigger() {
	if b.state == blinkOpen {
		b.state = blinkClosing
		b.progress = 0
	}
}

func (b *blinkController) update(dt float32, now time.Time, boost float32) {
	duration := float32(b.cfg.BlinkDuration.Seconds())

	switch b.state {
	case blinkOpen:
		if now.After(b.nextBlink) {
			b.state = blinkClosing
			b.progress = 0
		}

	case blinkClosing:
		b.progress += dt / (duration * 0.4)
		if b.progress >= 1.0 {
			b.progress = 1.0
			b.state = blinkClosed
		}

	case blinkClosed:
		b.progress += dt / (duration * 0.1)
		if b.progress >= 1.1 {
			b.state = blinkOpening
			b.progress = 1.0
		}

	case blinkOpening:
		b.progress -= dt / (duration * 0.5)
		if b.progress <= 0 {
			b.progress = 0
			b.state = blinkOpen
			if rand.Float32() < b.cfg.DoubleBlinkOdds {
				b.nextBlink = now.Add(randomDuration(120*time.Millisecond, 280*time.Millisecond))
			} else {
				// Faster blink cadence while talking or agitated.
				gap := randomDuration(b.cfg.BlinkMinGap, b.cfg.BlinkMaxGap)
				if boost > 0 {
					gap = time.Duration(float64(gap) / float64(boost))
				}
				b.nextBlink = now.Add(gap)
			}
		}
	}
}

// amount returns the blink weight in [0, 1].
func (b *blinkController) amount() float32 {
	switch b.state {
	case blinkClosing:
		return easeOutQuad(b.progress)
	case blinkClosed:
		return 1.0
	case blinkOpening:
		return easeInQuad(clamp32(b.progress, 0, 1))
	default:
		return 0
	}
}

// headMotion retargets nod/turn/tilt at randomized intervals and
// smooths exponentially toward the target. Turn is biased toward
// center so the gaze stays on the viewer.
type headMotion struct {
	cfg ProceduralConfig

	current    mgl32.Vec3 // pitch (nod), yaw (turn), roll (tilt)
	target     mgl32.Vec3
	nextTarget time.Time
	smoothing  float32
}

func newHeadMotion(cfg ProceduralConfig) *headMotion {
	return &headMotion{
		cfg:        cfg,
		smoothing:  3.0,
		nextTarget: time.Now(),
	}
}

func (h *headMotion) update(dt float32, now time.Time, boost float32) {
	if now.After(h.nextTarget) {
		turn := rand.Float32()*2 - 1
		h.target = mgl32.Vec3{
			(rand.Float32()*2 - 1) * h.cfg.HeadTurnRange * 0.6 * boost,
			turn * absf(turn) * h.cfg.HeadTurnRange * boost, // quadratic center bias
			(rand.Float32()*2 - 1) * h.cfg.HeadTurnRange * 0.3 * boost,
		}
		min := time.Duration(float32(2*time.Second) / boost)
		max := time.Duration(float32(5*time.Second) / boost)
		h.nextTarget = now.Add(randomDuration(min, max))
	}

	k := 1.0 - exp32(-h.smoothing*dt)
	h.current = h.current.Add(h.target.Sub(h.current).Mul(k))
}

// torsoSway runs a single-axis layered-sine drift, subtler and slower
// than head motion.
type torsoSway struct {
	cfg    ProceduralConfig
	time   float32
	offset float32
}

func newTorsoSway(cfg ProceduralConfig) *torsoSway {
	return &torsoSway{cfg: cfg, offset: rand.Float32() * 100}
}

func (t *torsoSway) update(dt float32, boost float32) {
	t.time += dt * (0.5 + 0.5*boost)
}

func (t *torsoSway) value() float32 {
	return layeredNoise(t.time*0.15, t.offset) * t.cfg.TorsoSwayRange
}

// gazeDrift retargets the eye direction with a fixed slight
// downward/forward bias, smoothed like the head.
type gazeDrift struct {
	cfg ProceduralConfig

	current    mgl32.Vec2
	target     mgl32.Vec2
	nextTarget time.Time
	smoothing  float32
}

func newGazeDrift(cfg ProceduralConfig) *gazeDrift {
	return &gazeDrift{
		cfg:        cfg,
		smoothing:  8.0,
		nextTarget: time.Now(),
	}
}

func (g *gazeDrift) update(dt float32, now time.Time, boost float32) {
	if now.After(g.nextTarget) {
		g.target = mgl32.Vec2{
			(rand.Float32()*2 - 1) * 0.08 * boost,
			-g.cfg.GazeDownBias + (rand.Float32()*2-1)*0.04*boost,
		}
		g.nextTarget = now.Add(randomDuration(400*time.Millisecond, 1800*time.Millisecond))
	}

	k := 1.0 - exp32(-g.smoothing*dt)
	g.current = g.current.Add(g.target.Sub(g.current).Mul(k))
}

// layeredNoise sums three detuned sines for cheap smooth wander.
func layeredNoise(t, offset float32) float32 {
	t += offset
	n1 := float32(math.Sin(float64(t)))
	n2 := float32(math.Sin(float64(t*2.3+1.7))) * 0.5
	n3 := float32(math.Sin(float64(t*4.1+3.2))) * 0.25
	return (n1 + n2 + n3) / 1.75
}

func easeOutQuad(t float32) float32 { return t * (2 - t) }
func easeInQuad(t float32) float32  { return t * t }

func exp32(x float32) float32 {
	return float32(math.Exp(float64(x)))
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp32(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func randomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Float64()*float64(max-min))
}
