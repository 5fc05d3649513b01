package config

import (
	"strings"
	"testing"

	"github.com/hushcut/hushcut/pkg/vad"
)

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("sample rate = %d, want 16000", cfg.Audio.SampleRate)
	}
	if cfg.VAD.Strategy != vad.StrategyAuto {
		t.Errorf("strategy = %q, want auto", cfg.VAD.Strategy)
	}
	if cfg.Stream.SilenceThresholdSec != 0.2 {
		t.Errorf("silence threshold = %g, want 0.2", cfg.Stream.SilenceThresholdSec)
	}
	if cfg.Logging.Level != LogInfo {
		t.Errorf("log level = %q, want info", cfg.Logging.Level)
	}
	if len(cfg.Server.Roots) != 1 || cfg.Server.Roots[0] != cfg.Output.Dir {
		t.Errorf("server roots = %v, want the output dir", cfg.Server.Roots)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.Audio.SampleRate = 48000
	cfg.Segmenter.PadMs = 120
	cfg.ApplyDefaults()

	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("sample rate = %d, want explicit 48000 preserved", cfg.Audio.SampleRate)
	}
	if cfg.Segmenter.PadMs != 120 {
		t.Errorf("pad = %d, want explicit 120 preserved", cfg.Segmenter.PadMs)
	}
	if cfg.Audio.FrameMs != 20 {
		t.Errorf("frame = %d, want defaulted 20", cfg.Audio.FrameMs)
	}
}

func TestValidate_JoinsAllFindings(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Logging.Level = "loud"
	cfg.Audio.SampleRate = -1
	cfg.ASR.Engines = []EngineConfig{{Type: "grpc"}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, want := range []string{"logging.level", "sample_rate", "asr.engines[0].type"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing finding about %s", err, want)
		}
	}
}

func TestValidate_EngineRequirements(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		engine  EngineConfig
		wantErr bool
	}{
		{"native with model", EngineConfig{Type: EngineNative, ModelPath: "m.bin"}, false},
		{"native without model", EngineConfig{Type: EngineNative}, true},
		{"http with endpoint", EngineConfig{Type: EngineHTTP, Endpoint: "http://localhost:8080"}, false},
		{"http without endpoint", EngineConfig{Type: EngineHTTP}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			cfg.ASR.Engines = []EngineConfig{tt.engine}
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVADParams_CombinesSections(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Audio.FrameMs = 30
	cfg.VAD.Strategy = vad.StrategyFused
	cfg.Segmenter.MinSilenceMs = 300

	p := cfg.VADParams()
	if p.FrameMs != 30 {
		t.Errorf("FrameMs = %d, want 30 from the audio section", p.FrameMs)
	}
	if p.Strategy != vad.StrategyFused {
		t.Errorf("Strategy = %q, want fused", p.Strategy)
	}
	if p.MinSilenceMs != 300 {
		t.Errorf("MinSilenceMs = %d, want 300 from the segmenter section", p.MinSilenceMs)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("assembled params invalid: %v", err)
	}
}

func TestStreamParams_CarriesASROptions(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.ASR.Language = "de"
	cfg.ASR.BeamSize = 3

	p := cfg.StreamParams()
	if p.SampleRate != 16000 || p.QueueBlocks != 256 {
		t.Errorf("params = %+v, want audio section values", p)
	}
	if p.ASR.Language != "de" || p.ASR.BeamSize != 3 {
		t.Errorf("ASR options = %+v, want language de, beam 3", p.ASR)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("assembled params invalid: %v", err)
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	t.Parallel()

	if LogDebug.SlogLevel() >= LogInfo.SlogLevel() {
		t.Error("debug should be below info")
	}
	if LogLevel("bogus").SlogLevel() != LogInfo.SlogLevel() {
		t.Error("unknown level should default to info")
	}
}
