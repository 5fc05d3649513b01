package vad

// Gate debounces raw per-frame speech decisions with hysteresis: sustained
// evidence is required to switch on, and brief lapses are tolerated before
// switching off. This suppresses single-frame flicker and keeps trailing
// phoneme tails attached to their segment.
type Gate struct {
	requireOn int
	hangover  int

	// incremental state for Step
	onCount  int
	offCount int
	inSpeech bool
}

// NewGate builds a gate from the config's hysteresis parameters.
func NewGate(cfg Config) *Gate {
	return &Gate{requireOn: cfg.RequireConsecutiveOn, hangover: cfg.HangoverOff}
}

// Step advances the incremental state machine by one frame and reports
// whether the gate is on afterwards. While off, requireOn consecutive true
// frames switch it on; while on, more than hangover consecutive false frames
// switch it off, and any true frame resets the off counter.
func (g *Gate) Step(speech bool) bool {
	if speech {
		g.onCount++
		g.offCount = 0
	} else {
		g.offCount++
		g.onCount = 0
	}
	if !g.inSpeech && g.onCount >= g.requireOn {
		g.inSpeech = true
	}
	if g.inSpeech && g.offCount > g.hangover {
		g.inSpeech = false
		g.onCount = 0
		g.offCount = 0
	}
	return g.inSpeech
}

// Reset clears the incremental state.
func (g *Gate) Reset() {
	g.onCount = 0
	g.offCount = 0
	g.inSpeech = false
}

// Apply gates a whole mask in one strict left-to-right pass. When the gate
// switches on, the confirming run of true frames is marked from its first
// frame. A false gap of at most hangover frames inside a speech run is
// marked true once speech resumes; a trailing gap that exhausts the hangover
// stays unmarked, so runs end on their last confirmed speech frame.
func (g *Gate) Apply(mask []bool) []bool {
	out := make([]bool, len(mask))
	onCount, offCount := 0, 0
	inSpeech := false
	for i, v := range mask {
		if v {
			onCount++
			offCount = 0
		} else {
			offCount++
			onCount = 0
		}

		if !inSpeech {
			if onCount >= g.requireOn {
				inSpeech = true
				for j := i - onCount + 1; j <= i; j++ {
					out[j] = true
				}
			}
			continue
		}

		if v {
			// Speech resumed inside the hangover window: absorb the gap.
			for j := i - 1; j >= 0 && !out[j]; j-- {
				out[j] = true
			}
			out[i] = true
			continue
		}
		if offCount > g.hangover {
			inSpeech = false
			onCount = 0
			offCount = 0
		}
	}
	return out
}
