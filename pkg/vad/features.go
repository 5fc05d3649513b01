package vad

import (
	"fmt"
	"math"
)

// dcBlockPole is the feedback coefficient of the DC-blocking high-pass
// filter. Closer to 1 means a lower cutoff.
const dcBlockPole = 0.995

// spectralEpsilon floors magnitudes and denominators so log and divide stay
// defined on silent frames.
const spectralEpsilon = 1e-12

// Features is the per-frame acoustic feature vector consumed by the fused
// classifier.
type Features struct {
	// RMS is the root-mean-square energy on the normalized sample scale.
	RMS float64
	// ZCR is the fraction of adjacent-sample sign flips, with zero samples
	// counted as positive.
	ZCR float64
	// Flatness is the ratio of geometric to arithmetic mean of the
	// Hann-windowed magnitude spectrum; near 1 for broadband noise.
	Flatness float64
	// BandRatio is the share of spectral energy inside the configured band.
	BandRatio float64
	// Centroid is the energy-weighted mean frequency in Hz.
	Centroid float64
}

// Extractor filters, frames and featurizes a mono signal. It is tied to one
// sample rate and frame length; construct a new one per input format.
type Extractor struct {
	sampleRate int
	frameMs    int
	frameLen   int

	window  []float64
	bandLo  int // first spectrum bin inside the band
	bandHi  int // first spectrum bin past the band
	binFreq []float64
}

// NewExtractor validates the frame geometry and precomputes the analysis
// window and band bin bounds.
func NewExtractor(sampleRate int, cfg Config) (*Extractor, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("vad: sample rate must be positive, got %d", sampleRate)
	}
	frameLen := sampleRate * cfg.FrameMs / 1000
	if frameLen <= 0 {
		return nil, fmt.Errorf("vad: frame_ms %d too small for sample rate %d", cfg.FrameMs, sampleRate)
	}

	e := &Extractor{
		sampleRate: sampleRate,
		frameMs:    cfg.FrameMs,
		frameLen:   frameLen,
		window:     hannWindow(frameLen),
	}

	// Real-input spectrum has frameLen/2+1 bins at k*sampleRate/frameLen Hz.
	bins := frameLen/2 + 1
	e.binFreq = make([]float64, bins)
	for k := range bins {
		e.binFreq[k] = float64(k) * float64(sampleRate) / float64(frameLen)
	}
	e.bandLo = searchBin(e.binFreq, float64(cfg.BandLowHz))
	e.bandHi = searchBin(e.binFreq, float64(cfg.BandHighHz))
	return e, nil
}

// FrameLen returns the frame length in samples.
func (e *Extractor) FrameLen() int { return e.frameLen }

// FrameMs returns the frame length in milliseconds.
func (e *Extractor) FrameMs() int { return e.frameMs }

// SampleRate returns the sample rate the extractor was built for.
func (e *Extractor) SampleRate() int { return e.sampleRate }

// Filter applies the single-pole DC-blocking high-pass
// y[n] = x[n] - x[n-1] + r*y[n-1] and returns the filtered copy.
func (e *Extractor) Filter(x []float32) []float32 {
	if len(x) == 0 {
		return x
	}
	y := make([]float32, len(x))
	var prevX, prevY float64
	for i, v := range x {
		cur := float64(v)
		yi := cur - prevX + dcBlockPole*prevY
		y[i] = float32(yi)
		prevY = yi
		prevX = cur
	}
	return y
}

// Frames splits the signal into non-overlapping frames, discarding a trailing
// partial frame. The returned slices alias x.
func (e *Extractor) Frames(x []float32) [][]float32 {
	n := len(x) / e.frameLen
	if n == 0 {
		return nil
	}
	frames := make([][]float32, n)
	for i := range n {
		frames[i] = x[i*e.frameLen : (i+1)*e.frameLen]
	}
	return frames
}

// Extract computes the feature vector for each frame. Zero frames yield a
// zero-length result.
func (e *Extractor) Extract(frames [][]float32) []Features {
	feats := make([]Features, len(frames))
	for i, fr := range frames {
		feats[i] = e.frameFeatures(fr)
	}
	return feats
}

func (e *Extractor) frameFeatures(fr []float32) Features {
	var f Features
	f.RMS = frameRMS(fr)
	f.ZCR = frameZCR(fr)

	mag := e.magnitudeSpectrum(fr)

	// Flatness and centroid work on epsilon-floored magnitudes; the band
	// ratio floors only its denominator.
	var logSum, magSum, weightedSum float64
	var bandEnergy, totalEnergy float64
	for k, m := range mag {
		mf := m + spectralEpsilon
		logSum += math.Log(mf)
		magSum += mf
		weightedSum += mf * e.binFreq[k]

		p := m * m
		totalEnergy += p
		if k >= e.bandLo && k < e.bandHi {
			bandEnergy += p
		}
	}
	n := float64(len(mag))
	geo := math.Exp(logSum / n)
	arith := magSum / n
	f.Flatness = geo / arith
	f.BandRatio = bandEnergy / (totalEnergy + spectralEpsilon)
	f.Centroid = weightedSum / magSum
	return f
}

// magnitudeSpectrum returns |DFT| of the Hann-windowed frame over the
// non-negative frequency bins. Frame lengths stay small (at most tens of
// milliseconds of audio), so the direct transform is used.
func (e *Extractor) magnitudeSpectrum(fr []float32) []float64 {
	n := len(fr)
	windowed := make([]float64, n)
	for i, v := range fr {
		windowed[i] = float64(v) * e.window[i]
	}

	bins := n/2 + 1
	mag := make([]float64, bins)
	step := 2 * math.Pi / float64(n)
	for k := range bins {
		var re, im float64
		angleStep := step * float64(k)
		for i, v := range windowed {
			a := angleStep * float64(i)
			re += v * math.Cos(a)
			im -= v * math.Sin(a)
		}
		mag[k] = math.Hypot(re, im)
	}
	return mag
}

func frameRMS(fr []float32) float64 {
	var sum float64
	for _, v := range fr {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum/float64(len(fr)) + spectralEpsilon)
}

func frameZCR(fr []float32) float64 {
	if len(fr) < 2 {
		return 0
	}
	flips := 0
	prev := signPositiveZero(fr[0])
	for _, v := range fr[1:] {
		s := signPositiveZero(v)
		if s != prev {
			flips++
		}
		prev = s
	}
	return float64(flips) / float64(len(fr)-1)
}

// signPositiveZero treats zero as positive to avoid counting crossings on
// exact-zero runs.
func signPositiveZero(v float32) int {
	if v < 0 {
		return -1
	}
	return 1
}

// hannWindow returns the symmetric Hann window of length n.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range n {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// searchBin returns the first index whose frequency is at least hz.
func searchBin(freqs []float64, hz float64) int {
	for i, f := range freqs {
		if f >= hz {
			return i
		}
	}
	return len(freqs)
}
