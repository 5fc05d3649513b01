// Package whisper provides the two whisper.cpp-backed [asr.Engine]
// implementations: a native engine using the CGO bindings (the whisper.cpp
// static library and headers must be available at link time) and an HTTP
// engine talking to a running whisper-server binary. The native engine is the
// accelerated primary; the HTTP engine is the CPU/remote fallback.
package whisper

import (
	"strings"
	"time"

	"github.com/hushcut/hushcut/pkg/asr"
	"github.com/hushcut/hushcut/pkg/audio"
	"github.com/hushcut/hushcut/pkg/vad"
)

const (
	// whisperRate is the only sample rate whisper.cpp decodes.
	whisperRate = 16000

	defaultLanguage = "en"
	defaultBeamSize = 5
)

// prepareSamples resamples the buffer to the whisper rate when needed and,
// when opts requests VAD filtering, trims leading and trailing non-speech.
// It returns the samples to decode and the leading trim to add back onto
// returned timestamps.
func prepareSamples(samples []float32, sampleRate int, opts asr.Options) ([]float32, time.Duration) {
	samples = audio.ResampleMono(samples, sampleRate, whisperRate)
	if !opts.VADFilter || len(samples) == 0 {
		return samples, 0
	}
	return trimNonSpeech(samples, opts)
}

// trimNonSpeech cuts the buffer down to its first-to-last speech segment as
// found by the fused classifier, widened by SpeechPadMs. A buffer with no
// detected speech is returned unchanged: the decision to skip decoding
// belongs to the caller's silence gate, not to this trim.
func trimNonSpeech(samples []float32, opts asr.Options) ([]float32, time.Duration) {
	cfg := vad.DefaultConfig()
	cfg.Strategy = vad.StrategyFused
	if opts.MinSilenceDurationMs > 0 {
		cfg.MinSilenceMs = opts.MinSilenceDurationMs
	}
	if opts.SpeechPadMs > 0 {
		cfg.PadMs = opts.SpeechPadMs
	}

	p, err := vad.NewPipeline(whisperRate, cfg)
	if err != nil {
		return samples, 0
	}
	res := p.Run(samples)
	if len(res.Segments) == 0 {
		return samples, 0
	}

	startMs := res.Segments[0].StartMs
	endMs := res.Segments[len(res.Segments)-1].EndMs
	lo := min(len(samples), startMs*whisperRate/1000)
	hi := min(len(samples), endMs*whisperRate/1000)
	if lo >= hi {
		return samples, 0
	}
	return samples[lo:hi], time.Duration(startMs) * time.Millisecond
}

// cleanSegments drops empty-text segments, trims whitespace and shifts
// timestamps by the leading VAD trim.
func cleanSegments(segs []asr.Segment, shift time.Duration) []asr.Segment {
	out := segs[:0]
	for _, s := range segs {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		s.Start += shift
		s.End += shift
		out = append(out, s)
	}
	return out
}
