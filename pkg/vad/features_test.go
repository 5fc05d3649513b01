package vad_test

import (
	"math"
	"testing"

	"github.com/hushcut/hushcut/pkg/vad"
)

const testRate = 16000

// sine generates n samples of a sine tone at freq Hz and the given amplitude.
func sine(n int, freq, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/testRate))
	}
	return out
}

func newExtractor(t *testing.T) *vad.Extractor {
	t.Helper()
	ex, err := vad.NewExtractor(testRate, vad.DefaultConfig())
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	return ex
}

func TestExtractor_FrameGeometry(t *testing.T) {
	t.Parallel()

	ex := newExtractor(t)
	if got, want := ex.FrameLen(), 320; got != want {
		t.Fatalf("FrameLen = %d, want %d", got, want)
	}

	// 3.5 frames of input: the trailing partial frame is discarded.
	frames := ex.Frames(make([]float32, 320*3+160))
	if len(frames) != 3 {
		t.Errorf("len(frames) = %d, want 3", len(frames))
	}
}

func TestExtractor_ZeroInput(t *testing.T) {
	t.Parallel()

	ex := newExtractor(t)
	frames := ex.Frames(nil)
	if len(frames) != 0 {
		t.Fatalf("len(frames) = %d, want 0", len(frames))
	}
	if feats := ex.Extract(frames); len(feats) != 0 {
		t.Errorf("len(feats) = %d, want 0 for zero input", len(feats))
	}
}

func TestExtractor_ToneFeatures(t *testing.T) {
	t.Parallel()

	ex := newExtractor(t)
	tone := sine(320, 500, 0.5)
	feats := ex.Extract([][]float32{tone})
	if len(feats) != 1 {
		t.Fatalf("len(feats) = %d, want 1", len(feats))
	}
	f := feats[0]

	// RMS of a 0.5-amplitude sine is about 0.354.
	if f.RMS < 0.3 || f.RMS > 0.4 {
		t.Errorf("RMS = %g, want about 0.354", f.RMS)
	}
	// A 500 Hz tone crosses zero about 2*f/rate of the time.
	wantZCR := 2 * 500.0 / testRate
	if math.Abs(f.ZCR-wantZCR) > 0.02 {
		t.Errorf("ZCR = %g, want about %g", f.ZCR, wantZCR)
	}
	// Pure tones are spectrally peaked, not flat.
	if f.Flatness > 0.3 {
		t.Errorf("Flatness = %g, want well below 0.3 for a pure tone", f.Flatness)
	}
	// All energy sits at 500 Hz, inside the 200-3800 Hz band.
	if f.BandRatio < 0.9 {
		t.Errorf("BandRatio = %g, want near 1 for an in-band tone", f.BandRatio)
	}
	if f.Centroid < 400 || f.Centroid > 600 {
		t.Errorf("Centroid = %g, want near 500", f.Centroid)
	}
}

func TestExtractor_SilenceFeatures(t *testing.T) {
	t.Parallel()

	ex := newExtractor(t)
	feats := ex.Extract([][]float32{make([]float32, 320)})
	f := feats[0]
	if f.RMS > 1e-5 {
		t.Errorf("RMS = %g, want near zero for silence", f.RMS)
	}
	// Zero samples count as positive: no spurious crossings.
	if f.ZCR != 0 {
		t.Errorf("ZCR = %g, want 0 for all-zero frame", f.ZCR)
	}
}

func TestExtractor_OutOfBandTone(t *testing.T) {
	t.Parallel()

	ex := newExtractor(t)
	// 6 kHz is above the 200-3800 Hz speech band.
	feats := ex.Extract([][]float32{sine(320, 6000, 0.5)})
	if r := feats[0].BandRatio; r > 0.3 {
		t.Errorf("BandRatio = %g, want low for an out-of-band tone", r)
	}
}

func TestExtractor_FilterRemovesDC(t *testing.T) {
	t.Parallel()

	ex := newExtractor(t)
	in := make([]float32, 1600)
	for i := range in {
		in[i] = 0.25 // pure DC offset
	}
	out := ex.Filter(in)

	// After settling, the filtered signal decays towards zero.
	var tailSum float64
	for _, v := range out[800:] {
		tailSum += math.Abs(float64(v))
	}
	if mean := tailSum / 800; mean > 0.01 {
		t.Errorf("mean |filtered| tail = %g, want near zero after DC removal", mean)
	}
}
