package vad_test

import (
	"testing"

	"github.com/hushcut/hushcut/pkg/vad"
)

func gateConfig(requireOn, hangover int) vad.Config {
	cfg := vad.DefaultConfig()
	cfg.RequireConsecutiveOn = requireOn
	cfg.HangoverOff = hangover
	return cfg
}

func maskFromInts(bits []int) []bool {
	out := make([]bool, len(bits))
	for i, b := range bits {
		out[i] = b != 0
	}
	return out
}

func TestGateApply_AbsorbsShortGap(t *testing.T) {
	t.Parallel()

	// A 2-frame gap inside a speech run is absorbed by the hangover; the run
	// ends on its last confirmed speech frame.
	mask := maskFromInts([]int{0, 0, 0, 1, 1, 1, 1, 0, 0, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0})
	g := vad.NewGate(gateConfig(3, 2))

	got := g.Apply(mask)

	want := make([]bool, len(mask))
	for i := 3; i <= 13; i++ {
		want[i] = true
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestGateApply_IsolatedFrameNeverSwitchesOn(t *testing.T) {
	t.Parallel()

	mask := maskFromInts([]int{0, 0, 0, 0, 1, 0, 0, 0, 0})
	g := vad.NewGate(gateConfig(3, 2))

	for i, on := range g.Apply(mask) {
		if on {
			t.Errorf("frame %d: gate switched on for an isolated true frame", i)
		}
	}
}

func TestGateApply_RequiresConsecutiveOn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mask   []int
		wantOn bool
	}{
		{"two frames below threshold", []int{1, 1, 0, 0, 0}, false},
		{"exactly three frames", []int{1, 1, 1, 0, 0}, true},
		{"alternating flicker", []int{1, 0, 1, 0, 1, 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := vad.NewGate(gateConfig(3, 2))
			out := g.Apply(maskFromInts(tt.mask))
			anyOn := false
			for _, v := range out {
				anyOn = anyOn || v
			}
			if anyOn != tt.wantOn {
				t.Errorf("gate on = %v, want %v for mask %v", anyOn, tt.wantOn, tt.mask)
			}
		})
	}
}

func TestGateApply_MarksConfirmingRunFromFirstFrame(t *testing.T) {
	t.Parallel()

	mask := maskFromInts([]int{0, 1, 1, 1, 1, 0, 0, 0})
	g := vad.NewGate(gateConfig(3, 2))
	got := g.Apply(mask)

	// The run is confirmed at frame 3 but must be marked from frame 1.
	for i := 1; i <= 4; i++ {
		if !got[i] {
			t.Errorf("frame %d: got off, want on", i)
		}
	}
	if got[0] {
		t.Error("frame 0: got on, want off")
	}
}

func TestGateStep_MatchesIncrementalState(t *testing.T) {
	t.Parallel()

	g := vad.NewGate(gateConfig(3, 2))

	feed := func(speech bool, n int) (last bool) {
		for range n {
			last = g.Step(speech)
		}
		return last
	}

	if on := feed(true, 2); on {
		t.Fatal("gate on after 2 speech frames, want off")
	}
	if on := feed(true, 1); !on {
		t.Fatal("gate off after 3 consecutive speech frames, want on")
	}
	// Two silent frames are tolerated.
	if on := feed(false, 2); !on {
		t.Fatal("gate off during hangover, want on")
	}
	// A speech frame resets the off counter.
	if on := feed(true, 1); !on {
		t.Fatal("gate off after speech resumed in hangover, want on")
	}
	if on := feed(false, 3); on {
		t.Fatal("gate on after hangover exhausted, want off")
	}

	g.Reset()
	if on := g.Step(true); on {
		t.Fatal("gate on immediately after Reset, want off")
	}
}
