// Package logits holds sampling parameter resolution and the logit telemetry
// scan. Token selection itself is a backend capability; what lives here is
// the policy around it.
package logits

import "math"

// Params are the user-facing sampling knobs passed to the backend sampler.
type Params struct {
	Temp          float64
	TopP          float64
	TopK          int
	RepeatLastN   int
	RepeatPenalty float64
}

// Greedy reports whether the parameters already describe deterministic
// argmax selection.
func (p Params) Greedy() bool {
	return p.Temp == 0 && p.TopP == 1 && p.TopK == 1
}

// Resolve collapses the parameters to the fast preset when requested or when
// they already sit at the greedy fixpoint. The preset disables the
// repetition window so two runs over identical cache state emit identical
// tokens.
func Resolve(p Params, fast bool) Params {
	if fast || p.Greedy() {
		return Params{Temp: 0, TopP: 1, TopK: 1, RepeatLastN: 0, RepeatPenalty: 1.0}
	}
	return p
}

// Top2 scans a logits vector for its two largest values in a single pass.
// Both start at -Inf so a duplicated maximum yields max2 == max1 and a zero
// margin.
func Top2(logits []float32) (max1, max2 float32) {
	if len(logits) == 0 {
		return 0, 0
	}
	max1 = float32(math.Inf(-1))
	max2 = float32(math.Inf(-1))
	for _, v := range logits {
		if v > max1 {
			max2 = max1
			max1 = v
		} else if v > max2 {
			max2 = v
		}
	}
	return max1, max2
}
