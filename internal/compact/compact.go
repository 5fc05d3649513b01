// Package compact implements batch silence compaction: read a recorded WAV,
// classify it, write a compacted track containing only the speech segments,
// and persist the silence map that makes the cut reversible for queries.
package compact

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/hushcut/hushcut/internal/observe"
	"github.com/hushcut/hushcut/pkg/audio"
	"github.com/hushcut/hushcut/pkg/timeline"
	"github.com/hushcut/hushcut/pkg/vad"
)

// Result summarizes one compaction run.
type Result struct {
	// Segments are the retained speech spans in original time.
	Segments []vad.Span

	// Silences are the removed spans, as persisted in the map file.
	Silences []vad.Span

	TotalMs  int
	SpeechMs int

	// OutPath is the compacted track, MapPath the silence map.
	OutPath string
	MapPath string
}

// Processor runs batch compaction over WAV files.
type Processor struct {
	cfg     vad.Config
	metrics *observe.Metrics
	log     *slog.Logger
}

// Option configures a [Processor].
type Option func(*Processor)

// WithLogger sets the logger; nil selects slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(p *Processor) { p.log = log }
}

// WithMetrics sets the metrics instance; nil selects observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// NewProcessor creates a Processor with the given classification config.
func NewProcessor(cfg vad.Config, opts ...Option) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("compact: invalid config: %w", err)
	}
	p := &Processor{cfg: cfg}
	for _, o := range opts {
		o(p)
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p, nil
}

// ArtifactPaths returns the compacted-track and silence-map paths derived
// from an original file path, placed next to it. outDir, when non-empty,
// overrides the directory.
func ArtifactPaths(inPath, outDir string) (outPath, mapPath string) {
	dir := filepath.Dir(inPath)
	if outDir != "" {
		dir = outDir
	}
	base := strings.TrimSuffix(filepath.Base(inPath), filepath.Ext(inPath))
	outPath = filepath.Join(dir, base+"-silenced.wav")
	mapPath = filepath.Join(dir, base+"-silence_map.tsv")
	return outPath, mapPath
}

// ProcessFile reads inPath, classifies it, and writes both artifacts. A file
// with no detected speech still produces an empty compacted track and a map
// covering the whole duration, so downstream queries stay well-defined.
func (p *Processor) ProcessFile(ctx context.Context, inPath, outDir string) (*Result, error) {
	start := time.Now()

	samples, rate, err := audio.ReadFile(inPath)
	if err != nil {
		return nil, fmt.Errorf("compact: read %s: %w", inPath, err)
	}

	pipe, err := vad.NewPipeline(rate, p.cfg)
	if err != nil {
		return nil, fmt.Errorf("compact: build pipeline: %w", err)
	}
	res := pipe.Run(samples)

	outPath, mapPath := ArtifactPaths(inPath, outDir)

	compacted := extractSegments(samples, res.Segments, rate)
	if err := audio.WriteFile(outPath, compacted, rate); err != nil {
		return nil, fmt.Errorf("compact: write track: %w", err)
	}
	if err := timeline.WriteMapFile(mapPath, res.Silences); err != nil {
		return nil, fmt.Errorf("compact: write silence map: %w", err)
	}

	elapsed := time.Since(start)
	p.metrics.CompactionDuration.Record(ctx, elapsed.Seconds())
	p.log.Info("compaction complete",
		"in", inPath,
		"total_ms", res.TotalMs,
		"speech_ms", res.SpeechMs,
		"segments", len(res.Segments),
		"elapsed", elapsed)

	return &Result{
		Segments: res.Segments,
		Silences: res.Silences,
		TotalMs:  res.TotalMs,
		SpeechMs: res.SpeechMs,
		OutPath:  outPath,
		MapPath:  mapPath,
	}, nil
}

// extractSegments concatenates the sample ranges covered by the speech spans.
func extractSegments(samples []float32, segs []vad.Span, rate int) []float32 {
	var out []float32
	for _, s := range segs {
		lo := min(len(samples), s.StartMs*rate/1000)
		hi := min(len(samples), s.EndMs*rate/1000)
		if lo >= hi {
			continue
		}
		out = append(out, samples[lo:hi]...)
	}
	return out
}
