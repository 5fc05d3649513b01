// Package asr defines the speech-to-text collaborator contract used by the
// streaming controller and the recording sessions.
//
// Engines accept a buffer of normalized mono float32 samples plus decoding
// options and return ordered, timestamped segments. Implementations live in
// subpackages (whisper.cpp native bindings and the whisper-server HTTP API);
// callers that need failover wrap engines in a fallback chain.
package asr

import (
	"context"
	"time"
)

// Segment is one transcribed utterance, timestamped relative to the start of
// the submitted buffer.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Options tunes one transcription call. The zero value requests the engine's
// defaults.
type Options struct {
	// Language is the BCP-47 language code ("en", "de", ...). Empty lets
	// the engine decide.
	Language string

	// BeamSize is the decoder beam width; zero keeps the engine default.
	BeamSize int

	// InitialPrompt conditions decoding on prior context, typically the
	// tail of the transcript so far.
	InitialPrompt string

	// VADFilter trims non-speech from the buffer edges before decoding.
	VADFilter bool

	// MinSilenceDurationMs and SpeechPadMs tune the VADFilter trim.
	MinSilenceDurationMs int
	SpeechPadMs          int

	// Translate requests translation to English instead of transcription.
	Translate bool
}

// Engine transcribes sample buffers. Implementations need not be safe for
// concurrent Transcribe calls; callers serialize.
type Engine interface {
	// Transcribe decodes the buffer and returns segments ordered by start
	// time. An empty buffer yields no segments and no error.
	Transcribe(ctx context.Context, samples []float32, opts Options) ([]Segment, error)

	// Close releases engine resources (model memory, connections).
	Close() error
}
