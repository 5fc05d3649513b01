package vad_test

import (
	"slices"
	"testing"

	"github.com/hushcut/hushcut/pkg/vad"
)

func segConfig(minSpeech, minSilence, pad int) vad.Config {
	cfg := vad.DefaultConfig()
	cfg.FrameMs = 20
	cfg.MinSpeechMs = minSpeech
	cfg.MinSilenceMs = minSilence
	cfg.PadMs = pad
	return cfg
}

// maskWithRuns builds a mask of n frames with the given true runs
// (inclusive start, exclusive end frame indices).
func maskWithRuns(n int, runs ...[2]int) []bool {
	mask := make([]bool, n)
	for _, r := range runs {
		for i := r[0]; i < r[1]; i++ {
			mask[i] = true
		}
	}
	return mask
}

func TestSegmenter_MergesCloseRuns(t *testing.T) {
	t.Parallel()

	// Two runs 200 ms apart (gap <= min_silence 220 ms) merge into one.
	s := vad.NewSegmenter(segConfig(150, 220, 0))
	mask := maskWithRuns(100, [2]int{10, 20}, [2]int{30, 40})

	got := s.Segments(mask, 2000)
	want := []vad.Span{{StartMs: 200, EndMs: 800}}
	if !slices.Equal(got, want) {
		t.Errorf("segments = %v, want %v", got, want)
	}
}

func TestSegmenter_DropsShortAfterMerge(t *testing.T) {
	t.Parallel()

	// Each run is 100 ms (below min_speech 150 ms) but the pair merges into
	// 300 ms and survives: the length filter is post-merge.
	s := vad.NewSegmenter(segConfig(150, 220, 0))
	mask := maskWithRuns(100, [2]int{0, 5}, [2]int{10, 15})

	got := s.Segments(mask, 2000)
	want := []vad.Span{{StartMs: 0, EndMs: 300}}
	if !slices.Equal(got, want) {
		t.Errorf("segments = %v, want %v", got, want)
	}

	// An isolated 100 ms run far from anything is dropped.
	mask = maskWithRuns(100, [2]int{50, 55})
	if got := s.Segments(mask, 2000); len(got) != 0 {
		t.Errorf("segments = %v, want none for an isolated short run", got)
	}
}

func TestSegmenter_PadClipsAndRemerges(t *testing.T) {
	t.Parallel()

	// Padding by 60 ms pushes the first segment to the signal start and
	// closes the 100 ms gap between the two runs.
	s := vad.NewSegmenter(segConfig(150, 0, 60))
	mask := maskWithRuns(100, [2]int{0, 10}, [2]int{15, 25})

	got := s.Segments(mask, 2000)
	want := []vad.Span{{StartMs: 0, EndMs: 560}}
	if !slices.Equal(got, want) {
		t.Errorf("segments = %v, want %v", got, want)
	}
}

func TestSegmenter_PadClipsToTotal(t *testing.T) {
	t.Parallel()

	s := vad.NewSegmenter(segConfig(150, 220, 60))
	mask := maskWithRuns(10, [2]int{0, 10})

	got := s.Segments(mask, 200)
	want := []vad.Span{{StartMs: 0, EndMs: 200}}
	if !slices.Equal(got, want) {
		t.Errorf("segments = %v, want %v", got, want)
	}
}

func TestSegmenter_EmptyMask(t *testing.T) {
	t.Parallel()

	s := vad.NewSegmenter(segConfig(150, 220, 60))
	if got := s.Segments(nil, 5000); len(got) != 0 {
		t.Errorf("segments = %v, want none for empty mask", got)
	}
	// The silence complement then covers the full duration.
	sil := vad.Complement(nil, 5000)
	want := []vad.Span{{StartMs: 0, EndMs: 5000}}
	if !slices.Equal(sil, want) {
		t.Errorf("complement = %v, want %v", sil, want)
	}
}

func TestSegmenter_Deterministic(t *testing.T) {
	t.Parallel()

	s := vad.NewSegmenter(segConfig(150, 220, 60))
	mask := maskWithRuns(200, [2]int{3, 14}, [2]int{20, 29}, [2]int{90, 130})

	first := s.Segments(mask, 4000)
	second := s.Segments(mask, 4000)
	if !slices.Equal(first, second) {
		t.Errorf("segments differ across runs: %v vs %v", first, second)
	}
}

func TestSegmenter_OutputInvariants(t *testing.T) {
	t.Parallel()

	cfg := segConfig(150, 220, 60)
	s := vad.NewSegmenter(cfg)
	mask := maskWithRuns(500, [2]int{10, 30}, [2]int{33, 60}, [2]int{100, 108}, [2]int{200, 260}, [2]int{490, 500})

	segs := s.Segments(mask, 10_000)
	for i := 1; i < len(segs); i++ {
		if segs[i].StartMs < segs[i-1].EndMs {
			t.Errorf("segments overlap: %v then %v", segs[i-1], segs[i])
		}
		if gap := segs[i].StartMs - segs[i-1].EndMs; gap <= cfg.MinSilenceMs-2*cfg.PadMs {
			// Pre-pad gaps above min_silence shrink by at most 2*pad.
			t.Errorf("gap %d ms between %v and %v should have merged", gap, segs[i-1], segs[i])
		}
	}
}

func TestComplement_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		segs    []vad.Span
		totalMs int
	}{
		{"interior segments", []vad.Span{{StartMs: 1000, EndMs: 2000}, {StartMs: 3000, EndMs: 4500}}, 6000},
		{"segment at start", []vad.Span{{StartMs: 0, EndMs: 500}}, 1000},
		{"segment at end", []vad.Span{{StartMs: 500, EndMs: 1000}}, 1000},
		{"full coverage", []vad.Span{{StartMs: 0, EndMs: 1000}}, 1000},
		{"no segments", nil, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			silences := vad.Complement(tt.segs, tt.totalMs)
			back := vad.Complement(silences, tt.totalMs)
			if !slices.Equal(back, tt.segs) {
				t.Errorf("round-trip = %v, want %v (silences %v)", back, tt.segs, silences)
			}
		})
	}
}

func TestSpeechMs(t *testing.T) {
	t.Parallel()

	segs := []vad.Span{{StartMs: 0, EndMs: 100}, {StartMs: 400, EndMs: 1000}}
	if got := vad.SpeechMs(segs); got != 700 {
		t.Errorf("SpeechMs = %d, want 700", got)
	}
}
