// Package lipsync turns a playing audio stream into per-frame mouth
// shape weights, either from an authoritative cue timeline or from live
// spectral estimation.
package lipsync

// PhonemeWeights is a five-vowel mouth shape intensity vector, each
// component in [0, 1].
type PhonemeWeights struct {
	AA float32
	EE float32
	IH float32
	OH float32
	OU float32
}

// IsZero reports whether every component is zero (mouth closed).
func (w PhonemeWeights) IsZero() bool {
	return w.AA == 0 && w.EE == 0 && w.IH == 0 && w.OH == 0 && w.OU == 0
}

// Cue is a timestamped interval with an associated phoneme weight
// vector, supplied ahead of playback. Cues are ordered and
// non-overlapping.
type Cue struct {
	Start   float64 // seconds
	End     float64 // seconds
	Weights PhonemeWeights
}

// MouthShape is the two-scalar reduction handed to the renderer.
// Form is negative for rounded/puckered shapes and positive for wide.
type MouthShape struct {
	Open float32 // [0, 1]
	Form float32 // [-1, 1]
}

// Fixed reduction weightings from the five-vowel vector to the two
// renderer scalars.
const (
	openAA = 1.0
	openOH = 0.8
	openOU = 0.7
	openEE = 0.4
	openIH = 0.3

	formEE = 0.6
	formIH = 0.4
	formOH = 0.5
	formOU = 0.7
)

// Reduce collapses phoneme weights to the renderer's mouth scalars.
func Reduce(w PhonemeWeights) MouthShape {
	open := openAA*w.AA + openOH*w.OH + openOU*w.OU + openEE*w.EE + openIH*w.IH
	form := (formEE*w.EE + formIH*w.IH) - (formOH*w.OH + formOU*w.OU)

	return MouthShape{
		Open: clamp(open, 0, 1),
		Form: clamp(form, -1, 1),
	}
}

func clamp(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
