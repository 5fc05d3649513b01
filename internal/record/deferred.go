package record

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hushcut/hushcut/internal/session"
	"github.com/hushcut/hushcut/internal/stream"
	"github.com/hushcut/hushcut/pkg/audio"
)

// Deferred is a recording session that transcribes after the fact: capture
// writes the WAV file only, and [Deferred.Stop] runs a single transcription
// pass over the finished recording. Cheaper than live streaming when nobody
// needs the transcript while recording.
type Deferred struct {
	deps    *Deps
	id      int64
	wavPath string
	started time.Time

	wav *audio.Writer
	src Source

	paused  atomic.Bool
	dropped atomic.Int64

	mu      sync.Mutex
	lastErr error
	stopped bool
}

// StartDeferred creates the session row, opens the WAV writer and the
// capture source, and begins recording.
func StartDeferred(ctx context.Context, deps Deps, title string) (*Deferred, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	deps.fill()

	start := time.Now()
	wavPath, err := newRecordingPath(deps.Cfg.Output.Dir, title, start)
	if err != nil {
		return nil, err
	}

	id, err := deps.Store.CreateSession(ctx, session.Session{
		Title:      title,
		FilePath:   wavPath,
		Device:     deps.Cfg.Audio.Device,
		SampleRate: deps.Cfg.Audio.SampleRate,
		Channels:   1,
		Model:      deps.modelLabel(),
		StartTime:  start,
	})
	if err != nil {
		return nil, fmt.Errorf("record: create session: %w", err)
	}

	d := &Deferred{deps: &deps, id: id, wavPath: wavPath, started: start}

	d.wav, err = audio.NewWriter(wavPath, deps.Cfg.Audio.SampleRate)
	if err != nil {
		return nil, fail(ctx, &deps, id, err)
	}

	d.src, err = deps.Source(d.onBlock)
	if err != nil {
		d.wav.Close()
		return nil, fail(ctx, &deps, id, fmt.Errorf("record: open source: %w", err))
	}
	if err := d.src.Start(); err != nil {
		d.src.Close()
		d.wav.Close()
		return nil, fail(ctx, &deps, id, fmt.Errorf("record: start source: %w", err))
	}

	deps.Metrics.ActiveSessions.Add(ctx, 1)
	deps.Log.Info("deferred session started", "id", id, "file", wavPath,
		"rate", deps.Cfg.Audio.SampleRate, "device", deps.Cfg.Audio.Device)
	return d, nil
}

// onBlock runs on the capture thread. Paused blocks are counted and
// discarded so the recording contains only audible time.
func (d *Deferred) onBlock(block []float32) {
	if d.paused.Load() {
		d.dropped.Add(1)
		d.deps.Metrics.RecordBlockDropped(context.Background(), "paused")
		return
	}
	if err := d.wav.WriteBlock(block); err != nil {
		d.mu.Lock()
		d.lastErr = err
		d.mu.Unlock()
		d.deps.Log.Warn("deferred session write", "id", d.id, "error", err)
	}
}

// Pause suspends recording. Audio arriving while paused is discarded.
func (d *Deferred) Pause() { d.paused.Store(true) }

// Resume continues recording after a pause.
func (d *Deferred) Resume() { d.paused.Store(false) }

// Status reports the current session state. Lines is always zero; the
// transcript only exists after Stop.
func (d *Deferred) Status() Status {
	return Status{
		SessionID:     d.id,
		Path:          d.wavPath,
		Paused:        d.paused.Load(),
		DroppedBlocks: d.dropped.Load(),
		Elapsed:       time.Since(d.started),
	}
}

// Stop ends capture, transcribes the finished recording in one pass, stores
// the transcript, compacts the recording and closes out the session row.
func (d *Deferred) Stop(ctx context.Context) (*Outcome, error) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil, errors.New("record: session already stopped")
	}
	d.stopped = true
	writeErr := d.lastErr
	d.mu.Unlock()

	defer d.deps.Metrics.ActiveSessions.Add(ctx, -1)

	var errs []error
	if err := d.src.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := d.src.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.wav.Close(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, writeErr)
	if err := errors.Join(errs...); err != nil {
		return nil, fail(ctx, d.deps, d.id, err)
	}

	transcript, err := d.transcribeFile(ctx)
	if err != nil {
		return nil, fail(ctx, d.deps, d.id, err)
	}
	return finalize(ctx, d.deps, d.id, d.wavPath, transcript)
}

// transcribeFile runs the engine over the whole recording and renders the
// segments in the bracketed line format.
func (d *Deferred) transcribeFile(ctx context.Context) (string, error) {
	samples, rate, err := audio.ReadFile(d.wavPath)
	if err != nil {
		return "", fmt.Errorf("record: read recording: %w", err)
	}
	if len(samples) == 0 {
		return "", nil
	}
	if rate != d.deps.Cfg.Audio.SampleRate {
		d.deps.Log.Warn("recording rate mismatch", "id", d.id,
			"file_rate", rate, "configured", d.deps.Cfg.Audio.SampleRate)
	}

	segs, err := d.deps.Engine.Transcribe(ctx, samples, d.deps.Cfg.ASROptions())
	if err != nil {
		return "", fmt.Errorf("record: transcribe recording: %w", err)
	}

	lines := make([]stream.Line, 0, len(segs))
	for _, s := range segs {
		lines = append(lines, stream.Line{Start: s.Start, End: s.End, Text: s.Text})
	}
	return renderTranscript(lines), nil
}
