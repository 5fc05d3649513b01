package resilience

import (
	"context"
	"errors"

	"github.com/hushcut/hushcut/pkg/asr"
)

// ASRFallback implements [asr.Engine] with automatic failover across multiple
// transcription backends, typically the native whisper.cpp engine first and a
// whisper-server instance behind it. Each backend has its own circuit breaker.
type ASRFallback struct {
	group *FallbackGroup[asr.Engine]
}

// Compile-time interface assertion.
var _ asr.Engine = (*ASRFallback)(nil)

// NewASRFallback creates an [ASRFallback] with primary as the preferred backend.
func NewASRFallback(primary asr.Engine, primaryName string, cfg FallbackConfig) *ASRFallback {
	return &ASRFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional engine as a fallback.
func (f *ASRFallback) AddFallback(name string, engine asr.Engine) {
	f.group.AddFallback(name, engine)
}

// Transcribe decodes the buffer against the first healthy engine. If the
// primary fails (or its breaker is open), subsequent fallbacks are tried with
// the same buffer and options.
func (f *ASRFallback) Transcribe(ctx context.Context, samples []float32, opts asr.Options) ([]asr.Segment, error) {
	return ExecuteWithResult(f.group, func(e asr.Engine) ([]asr.Segment, error) {
		return e.Transcribe(ctx, samples, opts)
	})
}

// Close closes every registered engine and joins their errors.
func (f *ASRFallback) Close() error {
	var errs []error
	for i := range f.group.entries {
		if err := f.group.entries[i].value.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
