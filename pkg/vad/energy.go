package vad

import "math"

// Default thresholds for [AdaptiveEnergyGate], on the normalized [-1, 1]
// amplitude scale.
const (
	defaultEnergyThreshold = 0.0015
	noiseFloorDecay        = 0.98
	noiseFloorGain         = 0.02
)

// AdaptiveEnergyGate is the streaming fallback classifier used when the
// narrowband detector is unavailable. A frame is speech when any sample's
// magnitude reaches max(threshold, 1.8*noiseFloor); the noise floor is an
// exponential moving average of recent non-speech energy, so the gate tracks
// a drifting ambient level.
type AdaptiveEnergyGate struct {
	threshold  float64
	noiseFloor float64
}

var _ FrameClassifier = (*AdaptiveEnergyGate)(nil)

// NewAdaptiveEnergyGate creates the gate with the given absolute amplitude
// threshold; zero or negative selects the default.
func NewAdaptiveEnergyGate(threshold float64) *AdaptiveEnergyGate {
	if threshold <= 0 {
		threshold = defaultEnergyThreshold
	}
	return &AdaptiveEnergyGate{
		threshold:  threshold,
		noiseFloor: math.Max(1e-6, threshold*0.5),
	}
}

// SpeechFrame classifies one frame and updates the noise floor. Silent
// frames feed the floor their whole-frame RMS; speech frames feed it the RMS
// of the silent tail after the last loud sample, if any.
func (g *AdaptiveEnergyGate) SpeechFrame(frame []float32) bool {
	if len(frame) == 0 {
		return false
	}
	thr := math.Max(g.threshold, g.noiseFloor*1.8)

	lastLoud := -1
	for i, s := range frame {
		if math.Abs(float64(s)) >= thr {
			lastLoud = i
		}
	}
	if lastLoud < 0 {
		g.updateFloor(rmsOf(frame))
		return false
	}
	if tail := frame[lastLoud+1:]; len(tail) > 0 {
		g.updateFloor(rmsOf(tail))
	}
	return true
}

func (g *AdaptiveEnergyGate) updateFloor(rms float64) {
	g.noiseFloor = noiseFloorDecay*g.noiseFloor + noiseFloorGain*math.Max(rms, 1e-7)
}

func rmsOf(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(x)))
}
