// Package engine drives the avatar: it blends idle, listening, thinking
// and talking procedural motion with gesture clips and the lip-sync
// mouth shape, producing one flat parameter frame per render tick.
package engine

// State is the avatar's top-level behavioral state.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateThinking  State = "thinking"
	StateTalking   State = "talking"
)

// Emotion names the recognized emotion states supplied by the
// transport collaborator.
type Emotion string

const (
	EmotionNeutral      Emotion = "neutral"
	EmotionHappy        Emotion = "happy"
	EmotionSad          Emotion = "sad"
	EmotionAngry        Emotion = "angry"
	EmotionFearful      Emotion = "fearful"
	EmotionSurprised    Emotion = "surprised"
	EmotionDisgusted    Emotion = "disgusted"
	EmotionCurious      Emotion = "curious"
	EmotionConfused     Emotion = "confused"
	EmotionExcited      Emotion = "excited"
	EmotionBored        Emotion = "bored"
	EmotionThinking     Emotion = "thinking"
	EmotionEmbarrassed  Emotion = "embarrassed"
	EmotionProud        Emotion = "proud"
	EmotionGrateful     Emotion = "grateful"
	EmotionAmused       Emotion = "amused"
	EmotionAffectionate Emotion = "affectionate"
)

// Intensity grades an emotion signal.
type Intensity string

const (
	IntensityLow    Intensity = "low"
	IntensityMedium Intensity = "medium"
	IntensityHigh   Intensity = "high"
)

// Scale converts intensity into a procedural motion multiplier.
func (i Intensity) Scale() float32 {
	switch i {
	case IntensityLow:
		return 0.6
	case IntensityHigh:
		return 1.4
	default:
		return 1.0
	}
}

// EmotionSignal mutates the engine's emotion weighting and may request
// an immediate gesture.
type EmotionSignal struct {
	Emotion   Emotion
	Intensity Intensity
	Gesture   string // optional clip name
}

// Frame is the engine's per-tick output to the rendering backend: a
// flat map of named animation parameters plus the talking indicator.
type Frame struct {
	Params  map[string]float32
	Talking bool
	Gesture string // active gesture clip name, "" at rest
}
