// This file contains the native engine backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/hushcut/hushcut/pkg/asr"
)

// Native implements [asr.Engine] with in-process whisper.cpp inference. The
// model is loaded once at construction and shared; each Transcribe call uses
// a fresh whisper context, so the engine survives any number of calls but
// serves one at a time.
type Native struct {
	model      whisperlib.Model
	modelPath  string
	sampleRate int
	language   string
	threads    int
	log        *slog.Logger
}

var _ asr.Engine = (*Native)(nil)

// NativeOption configures a [Native] engine.
type NativeOption func(*Native)

// WithNativeLanguage sets the default BCP-47 language code used when a call's
// Options leave it empty. Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(e *Native) { e.language = lang }
}

// WithNativeSampleRate declares the sample rate of buffers passed to
// Transcribe. Buffers are resampled to 16 kHz when the rates differ.
// Defaults to 16000.
func WithNativeSampleRate(rate int) NativeOption {
	return func(e *Native) { e.sampleRate = rate }
}

// WithNativeThreads sets the inference thread count; zero keeps the
// whisper.cpp default.
func WithNativeThreads(n int) NativeOption {
	return func(e *Native) { e.threads = n }
}

// WithNativeLogger sets the logger; nil selects slog.Default.
func WithNativeLogger(log *slog.Logger) NativeOption {
	return func(e *Native) { e.log = log }
}

// NewNative loads the whisper.cpp model at modelPath. The caller must Close
// the engine to release the model.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	e := &Native{
		model:      model,
		modelPath:  modelPath,
		sampleRate: whisperRate,
		language:   defaultLanguage,
	}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e, nil
}

// Close releases the model.
func (e *Native) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// Transcribe runs whisper.cpp inference over the buffer and returns its
// segments. The context is checked before the (uninterruptible) native call.
func (e *Native) Transcribe(ctx context.Context, samples []float32, opts asr.Options) ([]asr.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context done before inference: %w", err)
	}
	samples, shift := prepareSamples(samples, e.sampleRate, opts)
	if len(samples) == 0 {
		return nil, nil
	}

	wctx, err := e.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}

	lang := opts.Language
	if lang == "" {
		lang = e.language
	}
	if err := wctx.SetLanguage(lang); err != nil {
		e.log.Warn("failed to set language, keeping model default", "language", lang, "error", err)
	}
	wctx.SetTranslate(opts.Translate)
	if opts.BeamSize > 0 {
		wctx.SetBeamSize(opts.BeamSize)
	} else {
		wctx.SetBeamSize(defaultBeamSize)
	}
	if opts.InitialPrompt != "" {
		wctx.SetInitialPrompt(opts.InitialPrompt)
	}
	if e.threads > 0 {
		wctx.SetThreads(uint(e.threads))
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var segs []asr.Segment
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		segs = append(segs, asr.Segment{Start: seg.Start, End: seg.End, Text: seg.Text})
	}
	return cleanSegments(segs, shift), nil
}
