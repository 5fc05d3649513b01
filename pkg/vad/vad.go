// Package vad decides which portions of a mono PCM stream contain speech.
//
// The pipeline runs leaf to root: an [Extractor] derives per-frame acoustic
// features, a [Classifier] strategy turns frames into raw speech decisions, a
// [Gate] debounces those decisions into stable spans, and a [Segmenter] merges
// and pads the spans into final speech segments with their silence
// complement. [Pipeline] wires the stages together for whole-signal use; the
// streaming path consumes the incremental pieces ([FrameClassifier],
// [Gate.Step]) directly.
//
// Samples are normalized float32 values in [-1, 1]. All segment and span
// boundaries are original-timeline milliseconds.
package vad

import (
	"errors"
	"fmt"
)

// Classifier strategy names accepted in [Config].
const (
	// StrategyAuto selects the narrowband classifier when the sample rate
	// and frame length support it, otherwise the fused feature classifier.
	StrategyAuto = "auto"
	// StrategyWebRTC forces the narrowband classifier; construction fails
	// for unsupported formats.
	StrategyWebRTC = "webrtc"
	// StrategyFused forces the fused feature classifier.
	StrategyFused = "fused"
)

// Config holds the tunable parameters of the detection pipeline. The zero
// value is not usable; start from [DefaultConfig].
type Config struct {
	// FrameMs is the classification frame length in milliseconds. The
	// narrowband classifier accepts only 10, 20 or 30.
	FrameMs int

	// Strategy selects the classifier: "auto", "webrtc" or "fused".
	Strategy string

	// Aggressiveness is the narrowband classifier mode, 0 (permissive) to
	// 3 (most conservative about declaring speech).
	Aggressiveness int

	// EnergyFloor is the minimum RMS threshold for the fused classifier,
	// on the normalized [-1, 1] sample scale. The effective threshold is
	// max(EnergyFloor, median+1.5*MAD) * 1.2 over the whole input.
	EnergyFloor float64

	// ZCRLow and ZCRHigh bound the zero-crossing rate of speech frames.
	ZCRLow  float64
	ZCRHigh float64

	// FlatnessMax is the spectral flatness upper bound; tonal and
	// speech-like frames score low, broadband noise scores near 1.
	FlatnessMax float64

	// BandLowHz and BandHighHz delimit the band whose energy share is
	// measured by the band-energy ratio.
	BandLowHz  int
	BandHighHz int

	// BandRatioMin is the minimum share of spectral energy that must fall
	// inside the configured band.
	BandRatioMin float64

	// CentroidLowHz and CentroidHighHz bound the spectral centroid.
	CentroidLowHz  int
	CentroidHighHz int

	// RequireConsecutiveOn is the number of consecutive speech frames the
	// gate needs before switching on.
	RequireConsecutiveOn int

	// HangoverOff is the number of consecutive non-speech frames the gate
	// tolerates before switching off.
	HangoverOff int

	// MinSpeechMs drops merged segments shorter than this.
	MinSpeechMs int

	// MinSilenceMs merges adjacent segments whose gap is at most this.
	MinSilenceMs int

	// PadMs widens each surviving segment on both sides, clipped to the
	// signal bounds.
	PadMs int
}

// DefaultConfig returns the tuned defaults for 16 kHz speech.
func DefaultConfig() Config {
	return Config{
		FrameMs:              20,
		Strategy:             StrategyAuto,
		Aggressiveness:       3,
		EnergyFloor:          0.0020,
		ZCRLow:               0.02,
		ZCRHigh:              0.25,
		FlatnessMax:          0.6,
		BandLowHz:            200,
		BandHighHz:           3800,
		BandRatioMin:         0.65,
		CentroidLowHz:        200,
		CentroidHighHz:       4500,
		RequireConsecutiveOn: 3,
		HangoverOff:          2,
		MinSpeechMs:          150,
		MinSilenceMs:         220,
		PadMs:                60,
	}
}

// Validate reports every malformed parameter at once.
func (c Config) Validate() error {
	var errs []error
	if c.FrameMs <= 0 {
		errs = append(errs, fmt.Errorf("frame_ms must be positive, got %d", c.FrameMs))
	}
	switch c.Strategy {
	case StrategyAuto, StrategyWebRTC, StrategyFused:
	default:
		errs = append(errs, fmt.Errorf("unknown strategy %q (want auto, webrtc or fused)", c.Strategy))
	}
	if c.Aggressiveness < 0 || c.Aggressiveness > 3 {
		errs = append(errs, fmt.Errorf("aggressiveness must be 0..3, got %d", c.Aggressiveness))
	}
	if c.EnergyFloor < 0 {
		errs = append(errs, fmt.Errorf("energy_floor must not be negative, got %g", c.EnergyFloor))
	}
	if c.ZCRLow < 0 || c.ZCRHigh < c.ZCRLow {
		errs = append(errs, fmt.Errorf("zcr bounds invalid: low=%g high=%g", c.ZCRLow, c.ZCRHigh))
	}
	if c.BandLowHz < 0 || c.BandHighHz < c.BandLowHz {
		errs = append(errs, fmt.Errorf("band bounds invalid: low=%d high=%d", c.BandLowHz, c.BandHighHz))
	}
	if c.CentroidLowHz < 0 || c.CentroidHighHz < c.CentroidLowHz {
		errs = append(errs, fmt.Errorf("centroid bounds invalid: low=%d high=%d", c.CentroidLowHz, c.CentroidHighHz))
	}
	if c.RequireConsecutiveOn < 1 {
		errs = append(errs, fmt.Errorf("require_consecutive_on must be at least 1, got %d", c.RequireConsecutiveOn))
	}
	if c.HangoverOff < 0 {
		errs = append(errs, fmt.Errorf("hangover_off must not be negative, got %d", c.HangoverOff))
	}
	if c.MinSpeechMs < 0 || c.MinSilenceMs < 0 || c.PadMs < 0 {
		errs = append(errs, fmt.Errorf("segment durations must not be negative: min_speech_ms=%d min_silence_ms=%d pad_ms=%d",
			c.MinSpeechMs, c.MinSilenceMs, c.PadMs))
	}
	return errors.Join(errs...)
}
