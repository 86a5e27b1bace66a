package balancer

import (
	"math/rand/v2"
)

// IntN returns a uniform value in [0, n). math/rand/v2.IntN is used unless a
// deterministic source is injected.
type IntN func(n int) int

// Random picks a target uniformly.
type Random struct {
	intN IntN
}

func NewRandom(intN IntN) *Random {
	if intN == nil {
		intN = rand.IntN
	}
	return &Random{intN: intN}
}

func (r *Random) Select(available []Target) Target {
	if len(available) == 0 {
		return nil
	}
	return available[r.intN(len(available))]
}

// WeightedRandom draws a value in [0, total weight) and returns the first
// target whose cumulative weight exceeds it.
type WeightedRandom struct {
	intN IntN
}

func NewWeightedRandom(intN IntN) *WeightedRandom {
	if intN == nil {
		intN = rand.IntN
	}
	return &WeightedRandom{intN: intN}
}

func (w *WeightedRandom) Select(available []Target) Target {
	if len(available) == 0 {
		return nil
	}

	total := 0
	for _, t := range available {
		total += effectiveWeight(t)
	}

	draw := w.intN(total)
	cumulative := 0
	for _, t := range available {
		cumulative += effectiveWeight(t)
		if cumulative > draw {
			return t
		}
	}
	return available[len(available)-1]
}
