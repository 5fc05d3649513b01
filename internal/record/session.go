// Package record runs recording sessions: audio flows from a capture
// [Source] into a WAV file, gets transcribed either live (streaming
// controller) or deferred (one pass over the finished file), and is finally
// compacted to a speech-only artifact. Session progress is persisted to the
// session store so the query surface can report it.
package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hushcut/hushcut/internal/compact"
	"github.com/hushcut/hushcut/internal/config"
	"github.com/hushcut/hushcut/internal/observe"
	"github.com/hushcut/hushcut/internal/session"
	"github.com/hushcut/hushcut/internal/stream"
	"github.com/hushcut/hushcut/pkg/asr"
	"github.com/hushcut/hushcut/pkg/vad"
)

// Source is a start/stop capture device. Blocks are delivered to the
// callback passed to the [SourceFactory] that created it; the callback does
// not own the block and must copy what it keeps.
type Source interface {
	Start() error
	Stop() error
	Close() error
}

// SourceFactory opens a capture source wired to onBlock. The mic package
// satisfies this shape; tests substitute fakes.
type SourceFactory func(onBlock func(block []float32)) (Source, error)

// Deps bundles the collaborators a session needs. Engine and Source are
// required; Classifier defaults to the configured VAD strategy, Logger and
// Metrics to the process defaults.
type Deps struct {
	Cfg        *config.Config
	Store      *session.Store
	Engine     asr.Engine
	Source     SourceFactory
	Classifier vad.FrameClassifier
	Log        *slog.Logger
	Metrics    *observe.Metrics
}

func (d *Deps) validate() error {
	var errs []error
	if d.Cfg == nil {
		errs = append(errs, errors.New("record: nil config"))
	}
	if d.Store == nil {
		errs = append(errs, errors.New("record: nil store"))
	}
	if d.Engine == nil {
		errs = append(errs, errors.New("record: nil engine"))
	}
	if d.Source == nil {
		errs = append(errs, errors.New("record: nil source factory"))
	}
	return errors.Join(errs...)
}

func (d *Deps) fill() {
	if d.Classifier == nil {
		d.Classifier = vad.NewFrameClassifier(d.Cfg.Audio.SampleRate, d.Cfg.VADParams())
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = observe.DefaultMetrics()
	}
}

// Status is a point-in-time snapshot of a running session.
type Status struct {
	SessionID     int64
	Path          string
	Paused        bool
	DroppedBlocks int64
	Elapsed       time.Duration
	Lines         int
}

// Outcome summarizes a finished session.
type Outcome struct {
	SessionID  int64
	WavPath    string
	SpeechPath string
	MapPath    string
	Transcript string
	TotalMs    int
	SpeechMs   int
}

// newRecordingPath creates the output directory if needed and returns an
// absolute path for a fresh recording named after the start time and title.
func newRecordingPath(dir, title string, start time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("record: create output dir %s: %w", dir, err)
	}
	name := start.Format("20060102-150405")
	if slug := slugify(title); slug != "" {
		name += "-" + slug
	}
	abs, err := filepath.Abs(filepath.Join(dir, name+".wav"))
	if err != nil {
		return "", fmt.Errorf("record: resolve output path: %w", err)
	}
	return abs, nil
}

// slugify reduces a title to a filesystem-safe lowercase token. Runs of
// non-alphanumeric characters collapse to single dashes.
func slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// finalize stores the transcript, compacts the recording and marks the
// session completed. Called after capture has stopped and the WAV file is
// closed. A failure at any step marks the session errored.
func finalize(ctx context.Context, d *Deps, id int64, wavPath, transcript string) (*Outcome, error) {
	out := &Outcome{SessionID: id, WavPath: wavPath, Transcript: transcript}

	if transcript != "" {
		if err := d.Store.UpsertTranscription(ctx, wavPath, d.modelLabel(), transcript); err != nil {
			return out, fail(ctx, d, id, fmt.Errorf("record: store transcript: %w", err))
		}
	}

	proc, err := compact.NewProcessor(d.Cfg.VADParams(),
		compact.WithLogger(d.Log), compact.WithMetrics(d.Metrics))
	if err != nil {
		return out, fail(ctx, d, id, fmt.Errorf("record: build compactor: %w", err))
	}
	res, err := proc.ProcessFile(ctx, wavPath, "")
	if err != nil {
		return out, fail(ctx, d, id, fmt.Errorf("record: compact recording: %w", err))
	}
	out.SpeechPath = res.OutPath
	out.MapPath = res.MapPath
	out.TotalMs = res.TotalMs
	out.SpeechMs = res.SpeechMs

	if err := d.Store.EndSession(ctx, id, session.StatusCompleted); err != nil {
		return out, fmt.Errorf("record: end session %d: %w", id, err)
	}
	d.Log.Info("session completed", "id", id,
		"file", wavPath, "total_ms", res.TotalMs, "speech_ms", res.SpeechMs)
	return out, nil
}

// fail marks the session errored and returns cause. The store update is
// best-effort; its own failure is logged, not returned.
func fail(ctx context.Context, d *Deps, id int64, cause error) error {
	if err := d.Store.EndSession(ctx, id, session.StatusError); err != nil {
		d.Log.Error("mark session errored", "id", id, "error", err)
	}
	return cause
}

// modelLabel is the model_size key transcripts are stored under.
func (d *Deps) modelLabel() string {
	for _, e := range d.Cfg.ASR.Engines {
		if e.ModelPath != "" {
			base := filepath.Base(e.ModelPath)
			return strings.TrimSuffix(base, filepath.Ext(base))
		}
	}
	return "default"
}

// renderTranscript joins lines in the bracketed format, one per line with a
// trailing newline. Empty input yields the empty string.
func renderTranscript(lines []stream.Line) string {
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	for _, ln := range lines {
		b.WriteString(ln.String())
		b.WriteByte('\n')
	}
	return b.String()
}
