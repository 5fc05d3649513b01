package vad

import (
	"errors"
	"fmt"

	"github.com/visvasity/webrtcvad"

	"github.com/hushcut/hushcut/pkg/audio"
)

// ErrUnsupportedFormat reports a sample rate or frame length the narrowband
// classifier cannot process.
var ErrUnsupportedFormat = errors.New("vad: narrowband classifier requires 8/16/32/48 kHz and 10/20/30 ms frames")

// Narrowband delegates each frame to the WebRTC voice activity detector. It
// accepts only 10/20/30 ms frames at 8/16/32/48 kHz; a per-frame detector
// error degrades to an any-nonzero-sample decision for that frame and never
// aborts the stream.
type Narrowband struct {
	vad        *webrtcvad.VAD
	sampleRate int
}

var (
	_ Classifier      = (*Narrowband)(nil)
	_ FrameClassifier = (*Narrowband)(nil)
)

// NewNarrowband validates the format, creates the detector and sets its
// aggressiveness mode (0 permissive .. 3 most conservative).
func NewNarrowband(sampleRate, frameMs, mode int) (*Narrowband, error) {
	switch sampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return nil, fmt.Errorf("%w: sample rate %d", ErrUnsupportedFormat, sampleRate)
	}
	switch frameMs {
	case 10, 20, 30:
	default:
		return nil, fmt.Errorf("%w: frame_ms %d", ErrUnsupportedFormat, frameMs)
	}

	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("vad: create narrowband detector: %w", err)
	}
	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("vad: set narrowband mode %d: %w", mode, err)
	}
	return &Narrowband{vad: v, sampleRate: sampleRate}, nil
}

// Classify runs the detector over every frame in order.
func (n *Narrowband) Classify(frames [][]float32, _ []Features) []bool {
	if len(frames) == 0 {
		return nil
	}
	out := make([]bool, len(frames))
	for i, fr := range frames {
		out[i] = n.SpeechFrame(fr)
	}
	return out
}

// SpeechFrame classifies one frame, falling back to an any-nonzero-sample
// decision if the detector errors on it.
func (n *Narrowband) SpeechFrame(frame []float32) bool {
	speech, err := n.vad.Process(n.sampleRate, audio.BytesFromSamples(frame))
	if err != nil {
		return anyQuantizedNonZero(frame)
	}
	return speech
}

// anyQuantizedNonZero reports whether any sample survives 16-bit
// quantization, matching what the detector would have seen.
func anyQuantizedNonZero(frame []float32) bool {
	for _, s := range frame {
		if int32(s*32767) != 0 {
			return true
		}
	}
	return false
}
