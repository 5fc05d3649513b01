package timeline_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/hushcut/hushcut/pkg/timeline"
	"github.com/hushcut/hushcut/pkg/vad"
)

func TestFromSilences_ForwardConstruction(t *testing.T) {
	t.Parallel()

	silences := []vad.Span{{StartMs: 1000, EndMs: 1200}, {StartMs: 5000, EndMs: 5300}}
	m := timeline.FromSilences(silences, 6000)

	want := []timeline.Correspondence{
		{OriginalStartMs: 0, OriginalEndMs: 1000, SpeechStartMs: 0, SpeechEndMs: 1000, DurationMs: 1000, GapFromPrevMs: 0},
		{OriginalStartMs: 1200, OriginalEndMs: 5000, SpeechStartMs: 1000, SpeechEndMs: 4800, DurationMs: 3800, GapFromPrevMs: 200},
		{OriginalStartMs: 5300, OriginalEndMs: 6000, SpeechStartMs: 4800, SpeechEndMs: 5500, DurationMs: 700, GapFromPrevMs: 300},
	}
	if got := m.Correspondences(); !slices.Equal(got, want) {
		t.Errorf("correspondences = %+v,\nwant %+v", got, want)
	}
	if got := m.TotalSpeechMs(); got != 5500 {
		t.Errorf("TotalSpeechMs = %d, want 5500", got)
	}
	if got := m.TotalOriginalMs(); got != 6000 {
		t.Errorf("TotalOriginalMs = %d, want 6000", got)
	}
}

func TestFromSilences_DurationInvariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		silences []vad.Span
		totalMs  int
	}{
		{"leading silence", []vad.Span{{StartMs: 0, EndMs: 700}}, 3000},
		{"trailing silence", []vad.Span{{StartMs: 2500, EndMs: 3000}}, 3000},
		{"all silence", []vad.Span{{StartMs: 0, EndMs: 3000}}, 3000},
		{"no silence", nil, 3000},
		{"unsorted overlapping input", []vad.Span{{StartMs: 900, EndMs: 1500}, {StartMs: 100, EndMs: 1000}}, 3000},
		{"span past total is clamped", []vad.Span{{StartMs: 2000, EndMs: 9000}}, 3000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := timeline.FromSilences(tt.silences, tt.totalMs)

			sum := 0
			prevSpeechEnd := 0
			for _, c := range m.Correspondences() {
				sum += c.DurationMs
				if c.SpeechStartMs != prevSpeechEnd {
					t.Errorf("speech cursor jumped: start %d after end %d", c.SpeechStartMs, prevSpeechEnd)
				}
				if c.DurationMs != c.OriginalEndMs-c.OriginalStartMs {
					t.Errorf("duration %d does not match original interval %+v", c.DurationMs, c)
				}
				prevSpeechEnd = c.SpeechEndMs
			}
			if sum != m.TotalSpeechMs() {
				t.Errorf("sum of durations = %d, want TotalSpeechMs %d", sum, m.TotalSpeechMs())
			}
			if m.TotalSpeechMs() > m.TotalOriginalMs() {
				t.Errorf("TotalSpeechMs %d exceeds TotalOriginalMs %d", m.TotalSpeechMs(), m.TotalOriginalMs())
			}
		})
	}
}

func TestMapping_ToOriginalMs(t *testing.T) {
	t.Parallel()

	m := timeline.FromSilences([]vad.Span{{StartMs: 1000, EndMs: 1200}, {StartMs: 5000, EndMs: 5300}}, 6000)

	tests := []struct {
		speechMs int
		want     int
	}{
		{0, 0},
		{999, 999},
		{1000, 1200}, // first frame after the removed gap
		{2000, 2200},
		{4800, 5300},
		{5499, 5999},
		{9999, 6000}, // past the end clamps to the final correspondence
		{-5, 0},
	}
	for _, tt := range tests {
		got, ok := m.ToOriginalMs(tt.speechMs)
		if !ok {
			t.Fatalf("ToOriginalMs(%d): not ok", tt.speechMs)
		}
		if got != tt.want {
			t.Errorf("ToOriginalMs(%d) = %d, want %d", tt.speechMs, got, tt.want)
		}
	}

	empty := timeline.FromSilences([]vad.Span{{StartMs: 0, EndMs: 1000}}, 1000)
	if _, ok := empty.ToOriginalMs(0); ok {
		t.Error("ToOriginalMs on an all-silence mapping reported ok")
	}
}

func TestMapFile_RoundTrip(t *testing.T) {
	t.Parallel()

	spans := []vad.Span{{StartMs: 1000, EndMs: 1200}, {StartMs: 5000, EndMs: 5300}}
	path := t.TempDir() + "/silence_map.tsv"
	if err := timeline.WriteMapFile(path, spans); err != nil {
		t.Fatalf("WriteMapFile: %v", err)
	}

	got, err := timeline.ReadMapFile(path)
	if err != nil {
		t.Fatalf("ReadMapFile: %v", err)
	}
	if !slices.Equal(got, spans) {
		t.Errorf("round-trip spans = %v, want %v", got, spans)
	}

	// Re-deriving the mapping from the persisted form reproduces identical
	// segment boundaries.
	orig := timeline.FromSilences(spans, 6000)
	reloaded, err := timeline.Load(path, 6000)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !slices.Equal(orig.Correspondences(), reloaded.Correspondences()) {
		t.Errorf("reloaded correspondences differ:\n got %+v\nwant %+v",
			reloaded.Correspondences(), orig.Correspondences())
	}
}

func TestReadMap_SkipsMalformedRows(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"start_ms\tend_ms\tdur_ms",
		"",
		"1000\t1200\t200",
		"not\tnumbers\there",
		"500",            // too few columns
		"300\t100\t-200", // end < start
		"5000\t5300\t300",
		"  ",
	}, "\n") + "\n"

	got, err := timeline.ReadMap(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadMap: %v", err)
	}
	want := []vad.Span{{StartMs: 1000, EndMs: 1200}, {StartMs: 5000, EndMs: 5300}}
	if !slices.Equal(got, want) {
		t.Errorf("spans = %v, want %v", got, want)
	}
}

func TestWriteMap_Format(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	err := timeline.WriteMap(&sb, []vad.Span{{StartMs: 0, EndMs: 250}})
	if err != nil {
		t.Fatalf("WriteMap: %v", err)
	}
	want := "start_ms\tend_ms\tdur_ms\n0\t250\t250\n"
	if sb.String() != want {
		t.Errorf("output = %q, want %q", sb.String(), want)
	}
}

func TestMapping_TimelineView(t *testing.T) {
	t.Parallel()

	m := timeline.FromSilences([]vad.Span{{StartMs: 1000, EndMs: 1200}}, 2000)
	tl := m.Timeline()

	if len(tl.Segments) != 2 {
		t.Fatalf("segments = %+v, want 2", tl.Segments)
	}
	if len(tl.SilenceSpans) != 1 || tl.SilenceSpans[0].DurationMs != 200 {
		t.Errorf("silence spans = %+v, want one 200 ms span", tl.SilenceSpans)
	}
	if tl.TotalOriginalMs != 2000 || tl.TotalSpeechMs != 1800 {
		t.Errorf("totals = %d/%d, want 2000/1800", tl.TotalOriginalMs, tl.TotalSpeechMs)
	}
}
