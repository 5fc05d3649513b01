package vad

import (
	"math"
	"slices"
)

// Classifier produces one speech decision per frame for a whole signal.
// Implementations may consume the raw frames, the feature vectors, or both.
type Classifier interface {
	Classify(frames [][]float32, feats []Features) []bool
}

// FrameClassifier is the incremental per-frame form used by the streaming
// path. Implementations may carry state between calls; feed frames in
// capture order.
type FrameClassifier interface {
	SpeechFrame(frame []float32) bool
}

// FusedClassifier declares a frame speech only when every feature agrees:
// energy above a robust noise baseline, zero-crossing rate, spectral
// flatness, band-energy ratio and centroid all inside their speech bounds.
// Energy alone misreads broadband bursts and tonal hum as speech; the
// conjunction rejects both.
//
// The energy baseline is median+1.5*MAD of the RMS over the whole input, so
// this strategy only works on complete signals.
type FusedClassifier struct {
	energyFloor  float64
	zcrLow       float64
	zcrHigh      float64
	flatnessMax  float64
	bandRatioMin float64
	centroidLow  float64
	centroidHigh float64
}

var _ Classifier = (*FusedClassifier)(nil)

// NewFusedClassifier builds the fused strategy from config thresholds.
func NewFusedClassifier(cfg Config) *FusedClassifier {
	return &FusedClassifier{
		energyFloor:  cfg.EnergyFloor,
		zcrLow:       cfg.ZCRLow,
		zcrHigh:      cfg.ZCRHigh,
		flatnessMax:  cfg.FlatnessMax,
		bandRatioMin: cfg.BandRatioMin,
		centroidLow:  float64(cfg.CentroidLowHz),
		centroidHigh: float64(cfg.CentroidHighHz),
	}
}

// Classify returns the per-frame conjunction of all feature checks.
func (c *FusedClassifier) Classify(_ [][]float32, feats []Features) []bool {
	if len(feats) == 0 {
		return nil
	}
	rms := make([]float64, len(feats))
	for i, f := range feats {
		rms[i] = f.RMS
	}
	med := median(rms)
	devs := make([]float64, len(rms))
	for i, v := range rms {
		devs[i] = math.Abs(v - med)
	}
	mad := median(devs)
	thr := math.Max(c.energyFloor, med+1.5*mad) * 1.2

	out := make([]bool, len(feats))
	for i, f := range feats {
		out[i] = f.RMS > thr &&
			f.ZCR >= c.zcrLow && f.ZCR <= c.zcrHigh &&
			f.Flatness < c.flatnessMax &&
			f.BandRatio >= c.bandRatioMin &&
			f.Centroid >= c.centroidLow && f.Centroid <= c.centroidHigh
	}
	return out
}

// median returns the middle value of xs, averaging the two central values
// for even lengths. xs is not modified.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
