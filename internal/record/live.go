package record

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hushcut/hushcut/internal/session"
	"github.com/hushcut/hushcut/internal/stream"
	"github.com/hushcut/hushcut/pkg/audio"
)

// Live is a recording session with streaming transcription: every capture
// block is written to the WAV file and pushed to the streaming controller,
// so the transcript grows while the recording runs.
//
// The capture callback runs on the audio thread and must stay cheap; it
// writes one block and enqueues one copy. Everything else happens on the
// controller's consumer goroutine or in [Live.Stop].
type Live struct {
	deps    *Deps
	id      int64
	wavPath string
	started time.Time

	ctl *stream.Controller
	wav *audio.Writer
	src Source

	mu      sync.Mutex
	lines   []stream.Line
	lastErr error
	stopped bool
}

// StartLive creates the session row, opens the WAV writer and the capture
// source, and begins streaming. The returned session is recording when
// StartLive returns without error.
func StartLive(ctx context.Context, deps Deps, title string) (*Live, error) {
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

	l := &Live{deps: &deps, id: id, wavPath: wavPath, started: start}

	l.wav, err = audio.NewWriter(wavPath, deps.Cfg.Audio.SampleRate)
	if err != nil {
		return nil, fail(ctx, &deps, id, err)
	}

	l.ctl, err = stream.New(deps.Engine, deps.Classifier, deps.Cfg.StreamParams(),
		stream.WithLogger(deps.Log),
		stream.WithMetrics(deps.Metrics),
		stream.WithOnSegment(l.appendLine),
		stream.WithOnError(l.noteError),
	)
	if err != nil {
		l.wav.Close()
		return nil, fail(ctx, &deps, id, err)
	}
	l.ctl.Start(ctx)

	l.src, err = deps.Source(l.onBlock)
	if err != nil {
		l.ctl.Stop()
		l.wav.Close()
		return nil, fail(ctx, &deps, id, fmt.Errorf("record: open source: %w", err))
	}
	if err := l.src.Start(); err != nil {
		l.src.Close()
		l.ctl.Stop()
		l.wav.Close()
		return nil, fail(ctx, &deps, id, fmt.Errorf("record: start source: %w", err))
	}

	deps.Metrics.ActiveSessions.Add(ctx, 1)
	deps.Log.Info("live session started", "id", id, "file", wavPath,
		"rate", deps.Cfg.Audio.SampleRate, "device", deps.Cfg.Audio.Device)
	return l, nil
}

// onBlock runs on the capture thread. Paused blocks are dropped entirely so
// the WAV file and the stream stay aligned.
func (l *Live) onBlock(block []float32) {
	if l.ctl.Paused() {
		return
	}
	if err := l.wav.WriteBlock(block); err != nil {
		l.noteError(err)
		return
	}
	l.ctl.Push(block)
}

func (l *Live) appendLine(ln stream.Line) {
	l.mu.Lock()
	l.lines = append(l.lines, ln)
	l.mu.Unlock()
}

func (l *Live) noteError(err error) {
	l.mu.Lock()
	l.lastErr = err
	l.mu.Unlock()
	l.deps.Log.Warn("live session error", "id", l.id, "error", err)
}

// Pause flushes buffered speech and suspends capture. Audio arriving while
// paused is discarded, not recorded.
func (l *Live) Pause() { l.ctl.Pause() }

// Resume continues capture after a pause.
func (l *Live) Resume() { l.ctl.Resume() }

// Lines returns a copy of the transcript lines emitted so far.
func (l *Live) Lines() []stream.Line {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]stream.Line, len(l.lines))
	copy(out, l.lines)
	return out
}

// Status reports the current session state.
func (l *Live) Status() Status {
	l.mu.Lock()
	n := len(l.lines)
	l.mu.Unlock()
	return Status{
		SessionID:     l.id,
		Path:          l.wavPath,
		Paused:        l.ctl.Paused(),
		DroppedBlocks: l.ctl.Dropped(),
		Elapsed:       time.Since(l.started),
		Lines:         n,
	}
}

// Stop ends capture, drains the controller (final flush included), stores
// the transcript, compacts the recording and closes out the session row.
// Safe to call once; later calls return an error.
func (l *Live) Stop(ctx context.Context) (*Outcome, error) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil, errors.New("record: session already stopped")
	}
	l.stopped = true
	l.mu.Unlock()

	defer l.deps.Metrics.ActiveSessions.Add(ctx, -1)

	var errs []error
	if err := l.src.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := l.src.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := l.ctl.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("record: stop stream: %w", err))
	}
	if err := l.wav.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fail(ctx, l.deps, l.id, err)
	}

	return finalize(ctx, l.deps, l.id, l.wavPath, renderTranscript(l.Lines()))
}
