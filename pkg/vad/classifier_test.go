package vad_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/hushcut/hushcut/pkg/vad"
)

// speechFeatures returns a feature vector inside every speech bound of the
// default config.
func speechFeatures(rms float64) vad.Features {
	return vad.Features{RMS: rms, ZCR: 0.1, Flatness: 0.2, BandRatio: 0.8, Centroid: 1000}
}

// noiseFeatures returns a quiet broadband-noise feature vector.
func noiseFeatures() vad.Features {
	return vad.Features{RMS: 0.001, ZCR: 0.4, Flatness: 0.9, BandRatio: 0.3, Centroid: 5000}
}

func TestFusedClassifier_SpeechAboveNoiseBaseline(t *testing.T) {
	t.Parallel()

	c := vad.NewFusedClassifier(vad.DefaultConfig())

	feats := make([]vad.Features, 10)
	for i := range feats {
		feats[i] = noiseFeatures()
	}
	feats[4] = speechFeatures(0.3)
	feats[5] = speechFeatures(0.3)

	got := c.Classify(nil, feats)
	for i, v := range got {
		want := i == 4 || i == 5
		if v != want {
			t.Errorf("frame %d: got %v, want %v", i, v, want)
		}
	}
}

func TestFusedClassifier_EachFeatureVetoes(t *testing.T) {
	t.Parallel()

	mutations := []struct {
		name   string
		mutate func(*vad.Features)
	}{
		{"zcr too low", func(f *vad.Features) { f.ZCR = 0.01 }},
		{"zcr too high", func(f *vad.Features) { f.ZCR = 0.5 }},
		{"flatness too high", func(f *vad.Features) { f.Flatness = 0.9 }},
		{"band ratio too low", func(f *vad.Features) { f.BandRatio = 0.2 }},
		{"centroid too low", func(f *vad.Features) { f.Centroid = 100 }},
		{"centroid too high", func(f *vad.Features) { f.Centroid = 6000 }},
		{"rms below floor", func(f *vad.Features) { f.RMS = 0.001 }},
	}
	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := vad.NewFusedClassifier(vad.DefaultConfig())

			feats := make([]vad.Features, 8)
			for i := range feats {
				feats[i] = vad.Features{RMS: 0.0005, ZCR: 0.1, Flatness: 0.2, BandRatio: 0.8, Centroid: 1000}
			}
			feats[3] = speechFeatures(0.3)
			tt.mutate(&feats[3])

			if got := c.Classify(nil, feats); got[3] {
				t.Errorf("frame with %s classified as speech", tt.name)
			}
		})
	}
}

func TestFusedClassifier_EmptyInput(t *testing.T) {
	t.Parallel()

	c := vad.NewFusedClassifier(vad.DefaultConfig())
	if got := c.Classify(nil, nil); len(got) != 0 {
		t.Errorf("Classify(nil) = %v, want empty", got)
	}
}

func TestNewClassifier_StrategySelection(t *testing.T) {
	t.Parallel()

	cfg := vad.DefaultConfig()

	t.Run("fused is honoured", func(t *testing.T) {
		t.Parallel()
		c := cfg
		c.Strategy = vad.StrategyFused
		cls, err := vad.NewClassifier(16000, c)
		if err != nil {
			t.Fatalf("NewClassifier: %v", err)
		}
		if _, ok := cls.(*vad.FusedClassifier); !ok {
			t.Errorf("classifier = %T, want *vad.FusedClassifier", cls)
		}
	})

	t.Run("webrtc rejects unsupported rate", func(t *testing.T) {
		t.Parallel()
		c := cfg
		c.Strategy = vad.StrategyWebRTC
		_, err := vad.NewClassifier(44100, c)
		if !errors.Is(err, vad.ErrUnsupportedFormat) {
			t.Errorf("err = %v, want ErrUnsupportedFormat", err)
		}
	})

	t.Run("webrtc rejects unsupported frame length", func(t *testing.T) {
		t.Parallel()
		c := cfg
		c.Strategy = vad.StrategyWebRTC
		c.FrameMs = 25
		_, err := vad.NewClassifier(16000, c)
		if !errors.Is(err, vad.ErrUnsupportedFormat) {
			t.Errorf("err = %v, want ErrUnsupportedFormat", err)
		}
	})

	t.Run("auto degrades to fused", func(t *testing.T) {
		t.Parallel()
		c := cfg
		c.Strategy = vad.StrategyAuto
		cls, err := vad.NewClassifier(44100, c)
		if err != nil {
			t.Fatalf("NewClassifier: %v", err)
		}
		if _, ok := cls.(*vad.FusedClassifier); !ok {
			t.Errorf("classifier = %T, want *vad.FusedClassifier for unsupported rate", cls)
		}
	})
}

func TestAdaptiveEnergyGate(t *testing.T) {
	t.Parallel()

	g := vad.NewAdaptiveEnergyGate(0)

	quiet := make([]float32, 480)
	for i := range quiet {
		quiet[i] = 0.0005
	}
	for i := range 20 {
		if g.SpeechFrame(quiet) {
			t.Fatalf("quiet frame %d classified as speech", i)
		}
	}

	if !g.SpeechFrame(sine(480, 300, 0.5)) {
		t.Error("loud tone frame classified as silence")
	}

	if g.SpeechFrame(nil) {
		t.Error("empty frame classified as speech")
	}
}

func TestConfigValidate_JoinsAllFindings(t *testing.T) {
	t.Parallel()

	cfg := vad.DefaultConfig()
	cfg.FrameMs = 0
	cfg.Strategy = "bogus"
	cfg.Aggressiveness = 7

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"frame_ms", "strategy", "aggressiveness"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
