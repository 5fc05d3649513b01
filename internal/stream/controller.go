// Package stream owns the live capture path: a bounded block queue fed by
// the real-time capture callback and a consumer goroutine that classifies
// frames, accumulates speech, and flushes chunks to the ASR engine.
//
// Ownership is partitioned. The capture side only calls Push, Pause, Resume
// and Stop; the accumulation buffer, VAD state and cursors belong exclusively
// to the consumer goroutine and never cross the queue boundary.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hushcut/hushcut/internal/observe"
	"github.com/hushcut/hushcut/pkg/asr"
	"github.com/hushcut/hushcut/pkg/vad"
)

// ErrJoinTimeout is returned by [Controller.Stop] when the consumer goroutine
// fails to exit before the configured join timeout. Callers should treat it
// as fatal, not retry.
var ErrJoinTimeout = errors.New("stream: consumer did not exit before join timeout")

const (
	// dedupWindowSec absorbs re-decodes of the overlap tail: a returned
	// segment whose absolute end falls within this window of the last
	// emitted end is dropped.
	dedupWindowSec = 0.05

	// promptTailChars is how much accumulated transcript text is carried
	// into the next chunk as the decoder's initial prompt.
	promptTailChars = 1200
)

// Line is one emitted transcript segment with absolute session timestamps.
type Line struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// String renders the line in the transcript file format.
func (l Line) String() string {
	return fmt.Sprintf("[%.2fs -> %.2fs]  %s", l.Start.Seconds(), l.End.Seconds(), l.Text)
}

// Config tunes a [Controller]. The zero value is not usable; start from
// [DefaultConfig].
type Config struct {
	// SampleRate of pushed sample blocks in Hz.
	SampleRate int

	// FrameMs is the classifier frame length in milliseconds.
	FrameMs int

	// QueueBlocks caps the capture queue. A push against a full queue
	// drops the new block; the capture callback never blocks.
	QueueBlocks int

	// SilenceThresholdSec is the confirmed trailing silence that triggers
	// a flush once speech has been seen.
	SilenceThresholdSec float64

	// MaxBufferSec is the hard safety cap: buffered audio reaching it
	// flushes regardless of VAD state.
	MaxBufferSec float64

	// OverlapSec is the processed-audio tail retained after a flush for
	// decoding context. Not retained on the final stop flush.
	OverlapSec float64

	// JoinTimeout bounds Stop's wait for the consumer goroutine.
	JoinTimeout time.Duration

	// ASR are the decoding options passed on every flush. InitialPrompt
	// is overwritten with the running transcript tail.
	ASR asr.Options
}

// DefaultConfig returns the streaming defaults.
func DefaultConfig() Config {
	return Config{
		SampleRate:          16000,
		FrameMs:             20,
		QueueBlocks:         256,
		SilenceThresholdSec: 0.2,
		MaxBufferSec:        10,
		OverlapSec:          0.3,
		JoinTimeout:         30 * time.Second,
	}
}

// Validate reports every invalid field joined into one error.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate))
	}
	if c.FrameMs <= 0 {
		errs = append(errs, fmt.Errorf("frame_ms must be positive, got %d", c.FrameMs))
	}
	if c.QueueBlocks <= 0 {
		errs = append(errs, fmt.Errorf("queue_blocks must be positive, got %d", c.QueueBlocks))
	}
	if c.SilenceThresholdSec <= 0 {
		errs = append(errs, fmt.Errorf("silence_threshold_sec must be positive, got %g", c.SilenceThresholdSec))
	}
	if c.MaxBufferSec <= c.SilenceThresholdSec {
		errs = append(errs, fmt.Errorf("max_buffer_sec %g must exceed silence_threshold_sec %g",
			c.MaxBufferSec, c.SilenceThresholdSec))
	}
	if c.OverlapSec < 0 {
		errs = append(errs, fmt.Errorf("overlap_sec must not be negative, got %g", c.OverlapSec))
	}
	if c.JoinTimeout <= 0 {
		errs = append(errs, fmt.Errorf("join timeout must be positive, got %v", c.JoinTimeout))
	}
	return errors.Join(errs...)
}

type itemOp uint8

const (
	opAudio itemOp = iota
	opPause
	opStop
)

// item crosses the queue boundary. samples is only set for opAudio.
type item struct {
	samples []float32
	op      itemOp
}

// Controller runs the streaming transcription loop.
type Controller struct {
	cfg      Config
	engine   asr.Engine
	classify vad.FrameClassifier
	metrics  *observe.Metrics
	log      *slog.Logger

	queue   chan item
	done    chan struct{}
	paused  atomic.Bool
	stopped atomic.Bool
	started atomic.Bool
	dropped atomic.Int64

	onSegment func(Line)
	onError   func(error)

	// Consumer-goroutine state. Never touched from the capture side.
	ctx             context.Context
	buf             []float32
	pending         []float32
	trailingSilence float64
	hadSpeech       bool
	offsetSec       float64
	lastEmittedEnd  float64
	promptText      string
}

// Option configures a [Controller].
type Option func(*Controller)

// WithLogger sets the logger; nil selects slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithMetrics sets the metrics instance; nil selects observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithOnSegment registers the callback invoked from the consumer goroutine
// for every emitted transcript line, in order.
func WithOnSegment(fn func(Line)) Option {
	return func(c *Controller) { c.onSegment = fn }
}

// WithOnError registers the callback invoked when a flush's ASR call fails.
// Buffer and cursor state are preserved across the failure, so processing
// resumes from the last committed cursor on the next flush.
func WithOnError(fn func(error)) Option {
	return func(c *Controller) { c.onError = fn }
}

// New creates a Controller. Both collaborators are required; the classifier
// carries per-frame state and must not be shared with another controller.
func New(engine asr.Engine, classify vad.FrameClassifier, cfg Config, opts ...Option) (*Controller, error) {
	if engine == nil {
		return nil, errors.New("stream: engine must not be nil")
	}
	if classify == nil {
		return nil, errors.New("stream: frame classifier must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("stream: invalid config: %w", err)
	}

	c := &Controller{
		cfg:      cfg,
		engine:   engine,
		classify: classify,
		queue:    make(chan item, cfg.QueueBlocks),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// Start launches the consumer goroutine. It may be called once.
func (c *Controller) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	c.ctx = ctx
	go c.run()
}

// Push enqueues one capture block. It never blocks: a full queue, a paused
// or stopped controller all drop the block and report true. The block is
// copied, so the caller may reuse its buffer immediately.
func (c *Controller) Push(samples []float32) (dropped bool) {
	if len(samples) == 0 {
		return false
	}
	if c.stopped.Load() {
		return true
	}
	if c.paused.Load() {
		c.metrics.RecordBlockDropped(context.Background(), "paused")
		return true
	}

	blk := make([]float32, len(samples))
	copy(blk, samples)
	select {
	case c.queue <- item{samples: blk, op: opAudio}:
		c.metrics.QueueDepth.Add(context.Background(), 1)
		return false
	default:
		c.dropped.Add(1)
		c.metrics.RecordBlockDropped(context.Background(), "overflow")
		c.log.Debug("capture queue full, dropping block",
			"block_samples", len(samples), "dropped_total", c.dropped.Load())
		return true
	}
}

// Pause stops admission of new blocks and asks the consumer to flush
// anything heard so far. Audio captured while paused is dropped, not
// buffered for replay.
func (c *Controller) Pause() {
	if c.paused.Swap(true) || c.stopped.Load() {
		return
	}
	select {
	case c.queue <- item{op: opPause}:
	case <-c.done:
	}
}

// Resume re-enables admission. The consumer continues from a clean
// post-flush state.
func (c *Controller) Resume() {
	c.paused.Store(false)
}

// Paused reports whether the controller is currently paused.
func (c *Controller) Paused() bool { return c.paused.Load() }

// Dropped returns the number of blocks discarded on overflow.
func (c *Controller) Dropped() int64 { return c.dropped.Load() }

// QueueDepth returns the number of blocks currently waiting.
func (c *Controller) QueueDepth() int { return len(c.queue) }

// Stop flushes whatever remains once the queue is drained and joins the
// consumer goroutine with a bounded timeout.
func (c *Controller) Stop() error {
	if c.stopped.Swap(true) {
		return nil
	}
	if !c.started.Load() {
		return nil
	}
	select {
	case c.queue <- item{op: opStop}:
	case <-c.done:
		return nil
	}
	select {
	case <-c.done:
		return nil
	case <-time.After(c.cfg.JoinTimeout):
		return ErrJoinTimeout
	}
}

// run is the consumer loop. The stop sentinel is guaranteed to sit behind
// all audio enqueued before Stop, so reaching it means the queue is drained.
func (c *Controller) run() {
	defer close(c.done)
	for it := range c.queue {
		switch it.op {
		case opStop:
			c.flush("stop", false)
			return
		case opPause:
			if c.hadSpeech && len(c.buf) > 0 {
				c.flush("pause", false)
			}
			c.pending = c.pending[:0]
			c.trailingSilence = 0
			c.hadSpeech = false
		case opAudio:
			c.metrics.QueueDepth.Add(c.ctx, -1)
			c.ingest(it.samples)
		}
	}
}

// ingest appends a block and classifies complete frames, carrying any
// sub-frame remainder to the next block.
func (c *Controller) ingest(samples []float32) {
	c.pending = append(c.pending, samples...)
	frame := c.cfg.SampleRate * c.cfg.FrameMs / 1000
	frameSec := float64(c.cfg.FrameMs) / 1000

	for len(c.pending) >= frame {
		f := c.pending[:frame]
		c.pending = c.pending[frame:]

		speech := c.classify.SpeechFrame(f)
		c.metrics.RecordFrame(c.ctx, speech)
		c.buf = append(c.buf, f...)
		if speech {
			c.hadSpeech = true
			c.trailingSilence = 0
		} else {
			c.trailingSilence += frameSec
		}

		if c.hadSpeech && c.trailingSilence >= c.cfg.SilenceThresholdSec {
			c.flush("silence", true)
		} else if float64(len(c.buf))/float64(c.cfg.SampleRate) >= c.cfg.MaxBufferSec {
			c.flush("cap", true)
		}
	}
}

// flush trims the confirmed trailing-silence tail, submits the speech prefix
// to the ASR engine, emits deduplicated lines, and advances the offset
// cursor. keepOverlap retains a short processed tail for decoding context.
//
// On ASR failure the buffer and cursors are left untouched so the next flush
// retries from the same committed state.
func (c *Controller) flush(trigger string, keepOverlap bool) {
	start := time.Now()
	rate := float64(c.cfg.SampleRate)

	trim := int(c.trailingSilence * rate)
	if trim > len(c.buf) {
		trim = len(c.buf)
	}
	submit := c.buf[:len(c.buf)-trim]

	if len(submit) == 0 || !c.hadSpeech {
		// Nothing worth decoding. Advance past the buffered silence so
		// the buffer cannot grow without bound.
		c.offsetSec += float64(len(c.buf)) / rate
		c.buf = c.buf[:0]
		c.trailingSilence = 0
		c.hadSpeech = false
		return
	}

	opts := c.cfg.ASR
	opts.InitialPrompt = c.promptText

	asrStart := time.Now()
	segs, err := c.engine.Transcribe(c.ctx, submit, opts)
	c.metrics.ASRDuration.Record(c.ctx, time.Since(asrStart).Seconds())
	if err != nil {
		c.metrics.RecordASRError(c.ctx, "stream")
		c.log.Warn("transcription failed, keeping buffer for retry",
			"trigger", trigger, "buffered_sec", float64(len(c.buf))/rate, "error", err)
		if c.onError != nil {
			c.onError(err)
		}
		return
	}

	emitted := 0
	for _, s := range segs {
		absStart := c.offsetSec + s.Start.Seconds()
		absEnd := c.offsetSec + s.End.Seconds()
		if absEnd <= c.lastEmittedEnd+dedupWindowSec {
			continue
		}
		c.lastEmittedEnd = absEnd
		c.appendPrompt(s.Text)
		emitted++
		if c.onSegment != nil {
			c.onSegment(Line{
				Start: time.Duration(absStart * float64(time.Second)),
				End:   time.Duration(absEnd * float64(time.Second)),
				Text:  s.Text,
			})
		}
	}

	if keepOverlap {
		overlap := int(c.cfg.OverlapSec * rate)
		if overlap > len(c.buf) {
			overlap = len(c.buf)
		}
		c.offsetSec += float64(len(c.buf)-overlap) / rate
		tail := make([]float32, overlap)
		copy(tail, c.buf[len(c.buf)-overlap:])
		c.buf = tail
	} else {
		c.offsetSec += float64(len(c.buf)) / rate
		c.buf = c.buf[:0]
	}
	c.trailingSilence = 0
	c.hadSpeech = false

	c.metrics.RecordFlush(c.ctx, trigger, time.Since(start).Seconds())
	c.log.Debug("flush complete",
		"trigger", trigger, "segments", emitted, "offset_sec", c.offsetSec)
}

// appendPrompt accumulates transcript text and keeps only the tail carried
// as the next chunk's initial prompt.
func (c *Controller) appendPrompt(text string) {
	if c.promptText == "" {
		c.promptText = text
	} else {
		c.promptText += " " + text
	}
	if len(c.promptText) > promptTailChars {
		r := []rune(c.promptText)
		if len(r) > promptTailChars {
			c.promptText = string(r[len(r)-promptTailChars:])
		}
	}
}
