package lipsync

import (
	"math"
	"sort"

	"github.com/voxline/animus/internal/audio"
)

// Extractor produces a raw phoneme weight vector for the current
// playback instant. Implementations must be frame-rate independent;
// frame-to-frame smoothing belongs to the Manager.
type Extractor interface {
	Extract(buf *audio.Buffer, position float64) PhonemeWeights
}

// TimelineExtractor looks up authoritative server-supplied cues.
type TimelineExtractor struct {
	cues []Cue
}

// NewTimelineExtractor builds an extractor over an ordered cue list.
func NewTimelineExtractor(cues []Cue) *TimelineExtractor {
	return &TimelineExtractor{cues: cues}
}

// Extract returns the weights of the cue covering position, or the zero
// vector in a gap or past the end.
func (t *TimelineExtractor) Extract(_ *audio.Buffer, position float64) PhonemeWeights {
	// First cue ending after position; cues are ordered and non-overlapping.
	i := sort.Search(len(t.cues), func(i int) bool {
		return t.cues[i].End > position
	})
	if i < len(t.cues) && t.cues[i].Start <= position {
		return t.cues[i].Weights
	}
	return PhonemeWeights{}
}

// SpectralConfig tunes the live estimation heuristic, which
// approximates vowel category from spectral brightness.
type SpectralConfig struct {
	AmplitudeGate  float64 // RMS below this is silence
	AmplitudeScale float64 // RMS to openness scaling
	CentroidLow    float64 // below: back/round vowels (ou)
	CentroidMid    float64 // between low and mid: oh; above: ee/ih
	WindowSize     int     // analysis window, power of two
}

// DefaultSpectralConfig returns the tuned defaults.
func DefaultSpectralConfig() SpectralConfig {
	return SpectralConfig{
		AmplitudeGate:  0.01,
		AmplitudeScale: 8.0,
		CentroidLow:    0.25,
		CentroidMid:    0.5,
		WindowSize:     1024,
	}
}

// SpectralExtractor estimates mouth shape from RMS amplitude and
// spectral centroid when no cue timeline was supplied.
type SpectralExtractor struct {
	cfg    SpectralConfig
	window []float64
	re     []float64
	im     []float64
	hann   []float64
}

// NewSpectralExtractor builds a live estimator. WindowSize is rounded
// up to the next power of two.
func NewSpectralExtractor(cfg SpectralConfig) *SpectralExtractor {
	n := 1
	for n < cfg.WindowSize {
		n <<= 1
	}
	cfg.WindowSize = n

	hann := make([]float64, n)
	for i := range hann {
		hann[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}

	return &SpectralExtractor{
		cfg:    cfg,
		window: make([]float64, n),
		re:     make([]float64, n),
		im:     make([]float64, n),
		hann:   hann,
	}
}

// Extract reads an analysis window at the playback position and routes
// an amplitude-derived openness level into exactly one vowel category
// chosen by centroid band.
func (s *SpectralExtractor) Extract(buf *audio.Buffer, position float64) PhonemeWeights {
	if buf == nil {
		return PhonemeWeights{}
	}

	buf.Window(position, s.window)

	rms := rootMeanSquare(s.window)
	if rms < s.cfg.AmplitudeGate {
		return PhonemeWeights{}
	}

	level := float32(math.Min(rms*s.cfg.AmplitudeScale, 1.0))
	centroid := s.spectralCentroid()

	var w PhonemeWeights
	switch {
	case centroid < s.cfg.CentroidLow:
		w.OU = level
	case centroid < s.cfg.CentroidMid:
		w.OH = level
	default:
		// Front vowels; split brightness between the spread shapes.
		w.EE = level
		w.IH = level * 0.6
	}
	return w
}

// spectralCentroid returns the magnitude-weighted mean bin index of the
// current window, normalized to [0, 1].
func (s *SpectralExtractor) spectralCentroid() float64 {
	n := s.cfg.WindowSize
	for i := 0; i < n; i++ {
		s.re[i] = s.window[i] * s.hann[i]
		s.im[i] = 0
	}
	fft(s.re, s.im)

	half := n / 2
	var weighted, total float64
	for i := 0; i < half; i++ {
		mag := math.Hypot(s.re[i], s.im[i])
		weighted += float64(i) * mag
		total += mag
	}
	if total == 0 {
		return 0
	}
	return weighted / total / float64(half-1)
}

func rootMeanSquare(samples []float64) float64 {
	var sum float64
	for _, v := range samples {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// fft computes an in-place radix-2 FFT. len(re) must be a power of two.
func fft(re, im []float64) {
	n := len(re)

	// Bit-reversal permutation
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		ang := -2 * math.Pi / float64(length)
		wRe, wIm := math.Cos(ang), math.Sin(ang)
		for i := 0; i < n; i += length {
			curRe, curIm := 1.0, 0.0
			for j := 0; j < length/2; j++ {
				uRe, uIm := re[i+j], im[i+j]
				vRe := re[i+j+length/2]*curRe - im[i+j+length/2]*curIm
				vIm := re[i+j+length/2]*curIm + im[i+j+length/2]*curRe

				re[i+j], im[i+j] = uRe+vRe, uIm+vIm
				re[i+j+length/2], im[i+j+length/2] = uRe-vRe, uIm-vIm

				curRe, curIm = curRe*wRe-curIm*wIm, curRe*wIm+curIm*wRe
			}
		}
	}
}
