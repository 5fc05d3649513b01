package vad

import (
	"fmt"
	"log/slog"
)

// NewClassifier selects the batch classification strategy once, based on the
// configured strategy and the input format. With [StrategyAuto] the narrowband
// detector is preferred and the fused feature classifier covers formats it
// cannot handle; [StrategyWebRTC] fails construction instead of degrading.
func NewClassifier(sampleRate int, cfg Config) (Classifier, error) {
	switch cfg.Strategy {
	case StrategyFused:
		return NewFusedClassifier(cfg), nil
	case StrategyWebRTC:
		return NewNarrowband(sampleRate, cfg.FrameMs, cfg.Aggressiveness)
	case StrategyAuto, "":
		nb, err := NewNarrowband(sampleRate, cfg.FrameMs, cfg.Aggressiveness)
		if err != nil {
			slog.Debug("narrowband classifier unavailable, using fused features",
				"sample_rate", sampleRate, "frame_ms", cfg.FrameMs, "error", err)
			return NewFusedClassifier(cfg), nil
		}
		return nb, nil
	default:
		return nil, fmt.Errorf("vad: unknown strategy %q", cfg.Strategy)
	}
}

// NewFrameClassifier selects the incremental per-frame strategy for the
// streaming path: the narrowband detector when the format allows it, otherwise
// an adaptive energy gate tracking the ambient noise floor.
func NewFrameClassifier(sampleRate int, cfg Config) FrameClassifier {
	if cfg.Strategy != StrategyFused {
		if nb, err := NewNarrowband(sampleRate, cfg.FrameMs, cfg.Aggressiveness); err == nil {
			return nb
		}
	}
	return NewAdaptiveEnergyGate(cfg.EnergyFloor)
}

// Pipeline runs the whole detection stack over a complete signal: filter,
// frame, featurize, classify, gate, segment.
type Pipeline struct {
	extractor  *Extractor
	classifier Classifier
	gate       *Gate
	segmenter  *Segmenter
	sampleRate int
}

// Result is the outcome of one [Pipeline.Run]: final speech segments, their
// exact silence complement, and the millisecond totals of both timelines.
type Result struct {
	Segments []Span
	Silences []Span
	TotalMs  int
	SpeechMs int
}

// NewPipeline validates cfg and wires the stages for the given sample rate.
func NewPipeline(sampleRate int, cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("vad: invalid config: %w", err)
	}
	ex, err := NewExtractor(sampleRate, cfg)
	if err != nil {
		return nil, err
	}
	cls, err := NewClassifier(sampleRate, cfg)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		extractor:  ex,
		classifier: cls,
		gate:       NewGate(cfg),
		segmenter:  NewSegmenter(cfg),
		sampleRate: sampleRate,
	}, nil
}

// Run classifies the whole signal and returns the segment set. Empty input
// yields a result whose silence complement covers the (zero-length) duration.
func (p *Pipeline) Run(samples []float32) Result {
	totalMs := int(int64(len(samples)) * 1000 / int64(p.sampleRate))

	filtered := p.extractor.Filter(samples)
	frames := p.extractor.Frames(filtered)
	feats := p.extractor.Extract(frames)
	raw := p.classifier.Classify(frames, feats)
	gated := p.gate.Apply(raw)

	segs := p.segmenter.Segments(gated, totalMs)
	return Result{
		Segments: segs,
		Silences: Complement(segs, totalMs),
		TotalMs:  totalMs,
		SpeechMs: SpeechMs(segs),
	}
}
