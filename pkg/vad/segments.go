package vad

import (
	"cmp"
	"slices"
)

// Span is a half-open [StartMs, EndMs) interval on the original timeline.
type Span struct {
	StartMs int
	EndMs   int
}

// DurationMs returns the span length in milliseconds.
func (s Span) DurationMs() int { return s.EndMs - s.StartMs }

// Segmenter turns a gated frame mask into final speech segments: contiguous
// true-runs become spans, close spans merge, short spans drop, and the
// survivors are padded and re-merged. The same inputs always produce the
// same output.
type Segmenter struct {
	frameMs      int
	minSpeechMs  int
	minSilenceMs int
	padMs        int
}

// NewSegmenter builds a segmenter from the config's segment parameters.
func NewSegmenter(cfg Config) *Segmenter {
	return &Segmenter{
		frameMs:      cfg.FrameMs,
		minSpeechMs:  cfg.MinSpeechMs,
		minSilenceMs: cfg.MinSilenceMs,
		padMs:        cfg.PadMs,
	}
}

// Segments derives the final speech segments from a gated mask over a signal
// of totalMs. An empty mask or all-false mask yields no segments; the
// silence complement then covers the whole duration.
func (s *Segmenter) Segments(mask []bool, totalMs int) []Span {
	segs := runsFromMask(mask, s.frameMs)
	segs = mergeClose(segs, s.minSilenceMs)
	segs = dropShort(segs, s.minSpeechMs)
	return padAndClip(segs, s.padMs, totalMs)
}

// runsFromMask converts contiguous true-runs to millisecond spans.
func runsFromMask(mask []bool, frameMs int) []Span {
	var segs []Span
	i := 0
	for i < len(mask) {
		if !mask[i] {
			i++
			continue
		}
		start := i
		for i < len(mask) && mask[i] {
			i++
		}
		segs = append(segs, Span{StartMs: start * frameMs, EndMs: i * frameMs})
	}
	return segs
}

// mergeClose joins adjacent spans whose gap is at most minSilenceMs.
func mergeClose(segs []Span, minSilenceMs int) []Span {
	if len(segs) == 0 {
		return nil
	}
	out := make([]Span, 0, len(segs))
	cur := segs[0]
	for _, s := range segs[1:] {
		if s.StartMs-cur.EndMs <= minSilenceMs {
			cur.EndMs = max(cur.EndMs, s.EndMs)
		} else {
			out = append(out, cur)
			cur = s
		}
	}
	return append(out, cur)
}

// dropShort removes spans shorter than minSpeechMs. This runs after merging,
// so a run of short bursts separated by brief gaps still survives as one
// merged span.
func dropShort(segs []Span, minSpeechMs int) []Span {
	out := segs[:0]
	for _, s := range segs {
		if s.DurationMs() >= minSpeechMs {
			out = append(out, s)
		}
	}
	return out
}

// padAndClip widens each span by padMs on both sides, clips to [0, totalMs],
// and re-merges any overlaps the padding created.
func padAndClip(segs []Span, padMs, totalMs int) []Span {
	if len(segs) == 0 {
		return nil
	}
	padded := make([]Span, len(segs))
	for i, s := range segs {
		padded[i] = Span{
			StartMs: max(0, s.StartMs-padMs),
			EndMs:   min(totalMs, s.EndMs+padMs),
		}
	}
	slices.SortFunc(padded, func(a, b Span) int { return cmp.Compare(a.StartMs, b.StartMs) })

	out := make([]Span, 0, len(padded))
	cur := padded[0]
	for _, s := range padded[1:] {
		if s.StartMs <= cur.EndMs {
			cur.EndMs = max(cur.EndMs, s.EndMs)
		} else {
			out = append(out, cur)
			cur = s
		}
	}
	return append(out, cur)
}

// Complement returns the exact silence complement of sorted, non-overlapping
// speech segments over [0, totalMs].
func Complement(segs []Span, totalMs int) []Span {
	var out []Span
	cur := 0
	for _, s := range segs {
		if s.StartMs > cur {
			out = append(out, Span{StartMs: cur, EndMs: s.StartMs})
		}
		cur = s.EndMs
	}
	if cur < totalMs {
		out = append(out, Span{StartMs: cur, EndMs: totalMs})
	}
	return out
}

// SpeechMs sums the durations of the given spans.
func SpeechMs(segs []Span) int {
	total := 0
	for _, s := range segs {
		total += s.DurationMs()
	}
	return total
}
