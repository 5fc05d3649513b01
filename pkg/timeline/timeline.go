// Package timeline maps positions between the original capture timeline and
// the compacted speech-only timeline.
//
// Only silence spans are ever persisted (see the TSV codec in mapfile.go);
// the correspondence list is re-derived on load by complementing the spans
// against the known total duration. Re-deriving from the same spans and the
// same total duration reproduces identical segment boundaries.
package timeline

import (
	"cmp"
	"slices"
	"sort"

	"github.com/hushcut/hushcut/pkg/vad"
)

// Correspondence links one speech region on the original timeline to its
// position on the compacted speech-only timeline. Intervals are half-open.
type Correspondence struct {
	OriginalStartMs int `json:"original_start_ms"`
	OriginalEndMs   int `json:"original_end_ms"`
	SpeechStartMs   int `json:"speech_start_ms"`
	SpeechEndMs     int `json:"speech_end_ms"`
	DurationMs      int `json:"duration_ms"`

	// GapFromPrevMs is the silence removed between this region and the
	// previous one (zero for the first region). Derived, not serialized.
	GapFromPrevMs int `json:"-"`
}

// SilenceSpan is one removed interval on the original timeline, in the shape
// the query surface reports.
type SilenceSpan struct {
	StartMs    int `json:"start_ms"`
	EndMs      int `json:"end_ms"`
	DurationMs int `json:"duration_ms"`
}

// Timeline is the query-surface view of a mapping: speech segments with both
// coordinate systems, the removed silence spans, and the two totals.
type Timeline struct {
	Segments        []Correspondence `json:"segments"`
	SilenceSpans    []SilenceSpan    `json:"silence_spans"`
	TotalOriginalMs int              `json:"total_original_ms"`
	TotalSpeechMs   int              `json:"total_speech_ms"`
}

// Mapping is the bidirectional original<->speech correspondence for one
// recording. Immutable once built.
type Mapping struct {
	corrs    []Correspondence
	silences []vad.Span
	totalMs  int
	speechMs int
}

// FromSilences builds a mapping by walking merged silence spans left to right
// over [0, totalMs]. Every gap between consecutive silences is a speech
// region; the speech cursor advances by each region's duration. Overlapping
// or unsorted input spans are merged first, so the mapping is a pure function
// of the span set.
func FromSilences(silences []vad.Span, totalMs int) *Mapping {
	merged := mergeSpans(silences, totalMs)

	m := &Mapping{silences: merged, totalMs: totalMs}
	cur := 0
	speechCursor := 0
	prevEnd := 0
	emit := func(origStart, origEnd int) {
		dur := origEnd - origStart
		if dur <= 0 {
			return
		}
		m.corrs = append(m.corrs, Correspondence{
			OriginalStartMs: origStart,
			OriginalEndMs:   origEnd,
			SpeechStartMs:   speechCursor,
			SpeechEndMs:     speechCursor + dur,
			DurationMs:      dur,
			GapFromPrevMs:   origStart - prevEnd,
		})
		speechCursor += dur
		prevEnd = origEnd
	}

	for _, s := range merged {
		start := max(cur, s.StartMs)
		emit(cur, start)
		cur = max(cur, s.EndMs)
	}
	emit(cur, totalMs)

	m.speechMs = speechCursor
	return m
}

// mergeSpans sorts spans, clamps them to [0, totalMs] and joins overlapping
// or touching neighbours.
func mergeSpans(spans []vad.Span, totalMs int) []vad.Span {
	clamped := make([]vad.Span, 0, len(spans))
	for _, s := range spans {
		s.StartMs = max(0, s.StartMs)
		if totalMs > 0 {
			s.EndMs = min(s.EndMs, totalMs)
		}
		if s.EndMs > s.StartMs {
			clamped = append(clamped, s)
		}
	}
	if len(clamped) == 0 {
		return nil
	}
	slices.SortFunc(clamped, func(a, b vad.Span) int { return cmp.Compare(a.StartMs, b.StartMs) })

	out := clamped[:1]
	for _, s := range clamped[1:] {
		last := &out[len(out)-1]
		if s.StartMs <= last.EndMs {
			last.EndMs = max(last.EndMs, s.EndMs)
		} else {
			out = append(out, s)
		}
	}
	return out
}

// Correspondences returns the ordered correspondence records.
func (m *Mapping) Correspondences() []Correspondence { return m.corrs }

// Silences returns the merged silence spans the mapping was built from.
func (m *Mapping) Silences() []vad.Span { return m.silences }

// TotalOriginalMs returns the duration of the original timeline.
func (m *Mapping) TotalOriginalMs() int { return m.totalMs }

// TotalSpeechMs returns the duration of the compacted speech-only timeline.
func (m *Mapping) TotalSpeechMs() int { return m.speechMs }

// ToOriginalMs maps a position on the speech-only timeline back to the
// original timeline. Positions past the end clamp to the final
// correspondence; ok is false only when the mapping has no speech at all.
func (m *Mapping) ToOriginalMs(speechMs int) (originalMs int, ok bool) {
	if len(m.corrs) == 0 {
		return 0, false
	}
	if speechMs < 0 {
		speechMs = 0
	}
	i := sort.Search(len(m.corrs), func(i int) bool {
		return m.corrs[i].SpeechEndMs > speechMs
	})
	if i == len(m.corrs) {
		last := m.corrs[len(m.corrs)-1]
		return last.OriginalEndMs, true
	}
	c := m.corrs[i]
	if speechMs < c.SpeechStartMs {
		return c.OriginalStartMs, true
	}
	return c.OriginalStartMs + (speechMs - c.SpeechStartMs), true
}

// Timeline returns the query-surface view of the mapping.
func (m *Mapping) Timeline() Timeline {
	segs := make([]Correspondence, len(m.corrs))
	copy(segs, m.corrs)
	spans := make([]SilenceSpan, len(m.silences))
	for i, s := range m.silences {
		spans[i] = SilenceSpan{StartMs: s.StartMs, EndMs: s.EndMs, DurationMs: max(0, s.EndMs-s.StartMs)}
	}
	return Timeline{
		Segments:        segs,
		SilenceSpans:    spans,
		TotalOriginalMs: m.totalMs,
		TotalSpeechMs:   m.speechMs,
	}
}

// Load reads a persisted silence map and derives the mapping for a recording
// of totalMs.
func Load(mapPath string, totalMs int) (*Mapping, error) {
	spans, err := ReadMapFile(mapPath)
	if err != nil {
		return nil, err
	}
	return FromSilences(spans, totalMs), nil
}
