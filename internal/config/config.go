// Package config provides the configuration schema and loader for Hushcut.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hushcut/hushcut/internal/stream"
	"github.com/hushcut/hushcut/pkg/asr"
	"github.com/hushcut/hushcut/pkg/vad"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel converts l to the slog level, defaulting to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ASR engine types accepted in [EngineConfig].
const (
	EngineNative = "native"
	EngineHTTP   = "http"
)

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Audio     AudioConfig     `yaml:"audio"`
	VAD       VADConfig       `yaml:"vad"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	Stream    StreamConfig    `yaml:"stream"`
	ASR       ASRConfig       `yaml:"asr"`
	Store     StoreConfig     `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
	Output    OutputConfig    `yaml:"output"`
}

// LoggingConfig controls the process-wide logger built in cmd.
type LoggingConfig struct {
	// Level controls verbosity: debug, info, warn, error.
	Level LogLevel `yaml:"level"`
}

// AudioConfig describes the capture format.
type AudioConfig struct {
	// SampleRate of capture in Hz.
	SampleRate int `yaml:"sample_rate"`

	// FrameMs is the classification frame length in milliseconds.
	FrameMs int `yaml:"frame_ms"`

	// BlockMs is the capture callback block length in milliseconds.
	BlockMs int `yaml:"block_ms"`

	// QueueBlocks caps the capture queue.
	QueueBlocks int `yaml:"queue_blocks"`

	// Device names the capture device; empty selects the system default.
	Device string `yaml:"device"`
}

// VADConfig holds the classifier and gate parameters.
type VADConfig struct {
	// Strategy selects the classifier: auto, webrtc or fused.
	Strategy string `yaml:"strategy"`

	// Aggressiveness is the narrowband classifier mode, 0 to 3.
	Aggressiveness int `yaml:"aggressiveness"`

	EnergyFloor    float64 `yaml:"energy_floor"`
	ZCRLow         float64 `yaml:"zcr_low"`
	ZCRHigh        float64 `yaml:"zcr_high"`
	FlatnessMax    float64 `yaml:"flatness_max"`
	BandLowHz      int     `yaml:"band_low_hz"`
	BandHighHz     int     `yaml:"band_high_hz"`
	BandRatioMin   float64 `yaml:"band_ratio_min"`
	CentroidLowHz  int     `yaml:"centroid_low_hz"`
	CentroidHighHz int     `yaml:"centroid_high_hz"`

	RequireConsecutiveOn int `yaml:"require_consecutive_on"`
	HangoverOff          int `yaml:"hangover_off"`
}

// SegmenterConfig holds the segment shaping parameters.
type SegmenterConfig struct {
	MinSpeechMs  int `yaml:"min_speech_ms"`
	MinSilenceMs int `yaml:"min_silence_ms"`
	PadMs        int `yaml:"pad_ms"`
}

// StreamConfig holds the streaming flush parameters.
type StreamConfig struct {
	SilenceThresholdSec float64 `yaml:"silence_threshold_sec"`
	MaxBufferSec        float64 `yaml:"max_buffer_sec"`
	OverlapSec          float64 `yaml:"overlap_sec"`
}

// ASRConfig declares the transcription engine chain and decoding options.
type ASRConfig struct {
	// Engines is the ordered fallback chain; the first entry is primary.
	Engines []EngineConfig `yaml:"engines"`

	// Language is the BCP-47 code for decoding; empty lets engines decide.
	Language string `yaml:"language"`

	// BeamSize is the decoder beam width.
	BeamSize int `yaml:"beam_size"`

	// Translate requests translation to English instead of transcription.
	Translate bool `yaml:"translate"`
}

// EngineConfig describes one transcription backend.
type EngineConfig struct {
	// Type selects the implementation: native or http.
	Type string `yaml:"type"`

	// ModelPath is the whisper.cpp model file. Required for native.
	ModelPath string `yaml:"model_path"`

	// Endpoint is the whisper-server base URL. Required for http.
	Endpoint string `yaml:"endpoint"`

	// Threads is the native inference thread count; zero keeps the default.
	Threads int `yaml:"threads"`
}

// StoreConfig locates the SQLite session database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds the query-surface settings.
type ServerConfig struct {
	// Addr is the TCP address the server listens on (e.g. ":8080").
	Addr string `yaml:"addr"`

	// Roots restricts which directories /files may serve. Empty defaults
	// to the output directory.
	Roots []string `yaml:"roots"`
}

// OutputConfig locates recorded and compacted artifacts.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the complete default configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field with its default value.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = LogInfo
	}

	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.FrameMs == 0 {
		c.Audio.FrameMs = 20
	}
	if c.Audio.BlockMs == 0 {
		c.Audio.BlockMs = 100
	}
	if c.Audio.QueueBlocks == 0 {
		c.Audio.QueueBlocks = 256
	}

	dv := vad.DefaultConfig()
	if c.VAD.Strategy == "" {
		c.VAD.Strategy = dv.Strategy
	}
	if c.VAD.Aggressiveness == 0 {
		c.VAD.Aggressiveness = dv.Aggressiveness
	}
	if c.VAD.EnergyFloor == 0 {
		c.VAD.EnergyFloor = dv.EnergyFloor
	}
	if c.VAD.ZCRLow == 0 {
		c.VAD.ZCRLow = dv.ZCRLow
	}
	if c.VAD.ZCRHigh == 0 {
		c.VAD.ZCRHigh = dv.ZCRHigh
	}
	if c.VAD.FlatnessMax == 0 {
		c.VAD.FlatnessMax = dv.FlatnessMax
	}
	if c.VAD.BandLowHz == 0 {
		c.VAD.BandLowHz = dv.BandLowHz
	}
	if c.VAD.BandHighHz == 0 {
		c.VAD.BandHighHz = dv.BandHighHz
	}
	if c.VAD.BandRatioMin == 0 {
		c.VAD.BandRatioMin = dv.BandRatioMin
	}
	if c.VAD.CentroidLowHz == 0 {
		c.VAD.CentroidLowHz = dv.CentroidLowHz
	}
	if c.VAD.CentroidHighHz == 0 {
		c.VAD.CentroidHighHz = dv.CentroidHighHz
	}
	if c.VAD.RequireConsecutiveOn == 0 {
		c.VAD.RequireConsecutiveOn = dv.RequireConsecutiveOn
	}
	if c.VAD.HangoverOff == 0 {
		c.VAD.HangoverOff = dv.HangoverOff
	}

	if c.Segmenter.MinSpeechMs == 0 {
		c.Segmenter.MinSpeechMs = dv.MinSpeechMs
	}
	if c.Segmenter.MinSilenceMs == 0 {
		c.Segmenter.MinSilenceMs = dv.MinSilenceMs
	}
	if c.Segmenter.PadMs == 0 {
		c.Segmenter.PadMs = dv.PadMs
	}

	ds := stream.DefaultConfig()
	if c.Stream.SilenceThresholdSec == 0 {
		c.Stream.SilenceThresholdSec = ds.SilenceThresholdSec
	}
	if c.Stream.MaxBufferSec == 0 {
		c.Stream.MaxBufferSec = ds.MaxBufferSec
	}
	if c.Stream.OverlapSec == 0 {
		c.Stream.OverlapSec = ds.OverlapSec
	}

	if c.ASR.Language == "" {
		c.ASR.Language = "en"
	}
	if c.ASR.BeamSize == 0 {
		c.ASR.BeamSize = 5
	}

	if c.Store.Path == "" {
		c.Store.Path = "hushcut.db"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "recordings"
	}
	if len(c.Server.Roots) == 0 {
		c.Server.Roots = []string{c.Output.Dir}
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func (c *Config) Validate() error {
	var errs []error

	if c.Logging.Level != "" && !c.Logging.Level.IsValid() {
		errs = append(errs, fmt.Errorf("logging.level %q is invalid; valid values: debug, info, warn, error", c.Logging.Level))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate))
	}
	if c.Audio.BlockMs <= 0 {
		errs = append(errs, fmt.Errorf("audio.block_ms must be positive, got %d", c.Audio.BlockMs))
	}
	if c.Audio.QueueBlocks <= 0 {
		errs = append(errs, fmt.Errorf("audio.queue_blocks must be positive, got %d", c.Audio.QueueBlocks))
	}

	if err := c.VADParams().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("vad: %w", err))
	}
	if err := c.StreamParams().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("stream: %w", err))
	}

	for i, e := range c.ASR.Engines {
		prefix := fmt.Sprintf("asr.engines[%d]", i)
		switch e.Type {
		case EngineNative:
			if e.ModelPath == "" {
				errs = append(errs, fmt.Errorf("%s.model_path is required for the native engine", prefix))
			}
		case EngineHTTP:
			if e.Endpoint == "" {
				errs = append(errs, fmt.Errorf("%s.endpoint is required for the http engine", prefix))
			}
		default:
			errs = append(errs, fmt.Errorf("%s.type %q is invalid; valid values: native, http", prefix, e.Type))
		}
	}

	return errors.Join(errs...)
}

// VADParams assembles the detection pipeline parameters from the audio, vad
// and segmenter sections.
func (c *Config) VADParams() vad.Config {
	return vad.Config{
		FrameMs:              c.Audio.FrameMs,
		Strategy:             c.VAD.Strategy,
		Aggressiveness:       c.VAD.Aggressiveness,
		EnergyFloor:          c.VAD.EnergyFloor,
		ZCRLow:               c.VAD.ZCRLow,
		ZCRHigh:              c.VAD.ZCRHigh,
		FlatnessMax:          c.VAD.FlatnessMax,
		BandLowHz:            c.VAD.BandLowHz,
		BandHighHz:           c.VAD.BandHighHz,
		BandRatioMin:         c.VAD.BandRatioMin,
		CentroidLowHz:        c.VAD.CentroidLowHz,
		CentroidHighHz:       c.VAD.CentroidHighHz,
		RequireConsecutiveOn: c.VAD.RequireConsecutiveOn,
		HangoverOff:          c.VAD.HangoverOff,
		MinSpeechMs:          c.Segmenter.MinSpeechMs,
		MinSilenceMs:         c.Segmenter.MinSilenceMs,
		PadMs:                c.Segmenter.PadMs,
	}
}

// StreamParams assembles the streaming controller parameters.
func (c *Config) StreamParams() stream.Config {
	sc := stream.DefaultConfig()
	sc.SampleRate = c.Audio.SampleRate
	sc.FrameMs = c.Audio.FrameMs
	sc.QueueBlocks = c.Audio.QueueBlocks
	sc.SilenceThresholdSec = c.Stream.SilenceThresholdSec
	sc.MaxBufferSec = c.Stream.MaxBufferSec
	sc.OverlapSec = c.Stream.OverlapSec
	sc.JoinTimeout = 30 * time.Second
	sc.ASR = c.ASROptions()
	return sc
}

// ASROptions assembles the per-call decoding options.
func (c *Config) ASROptions() asr.Options {
	return asr.Options{
		Language:  c.ASR.Language,
		BeamSize:  c.ASR.BeamSize,
		Translate: c.ASR.Translate,
	}
}
