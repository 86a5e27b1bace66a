package balancer

import (
	"sync"
	"sync/atomic"
)

// RoundRobin cycles over the available targets. The counter advances on
// every call and is never reset, so targets joining or leaving do not need
// any bookkeeping.
type RoundRobin struct {
	current uint64
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (r *RoundRobin) Select(available []Target) Target {
	next := atomic.AddUint64(&r.current, 1)
	if len(available) == 0 {
		return nil
	}
	return available[(next-1)%uint64(len(available))]
}

// WeightedRoundRobin is the smooth weighted round robin: each call adds
// every target's weight to its running weight, picks the highest running
// weight and subtracts the total from it. Over time every target is picked
// proportionally to its weight, without bursts.
type WeightedRoundRobin struct {
	mu      sync.Mutex
	current map[string]int
}

func NewWeightedRoundRobin() *WeightedRoundRobin {
	return &WeightedRoundRobin{current: make(map[string]int)}
}

func (w *WeightedRoundRobin) Select(available []Target) Target {
	if len(available) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.current) > len(available) {
		w.prune(available)
	}

	var (
		best       Target
		bestWeight int
		total      int
	)
	for _, t := range available {
		weight := effectiveWeight(t)
		total += weight
		cur := w.current[t.Name()] + weight
		w.current[t.Name()] = cur
		if best == nil || cur > bestWeight {
			best, bestWeight = t, cur
		}
	}
	w.current[best.Name()] -= total
	return best
}

func (w *WeightedRoundRobin) prune(available []Target) {
	alive := make(map[string]struct{}, len(available))
	for _, t := range available {
		alive[t.Name()] = struct{}{}
	}
	for name := range w.current {
		if _, ok := alive[name]; !ok {
			delete(w.current, name)
		}
	}
}

func effectiveWeight(t Target) int {
	if w := t.Weight(); w > 0 {
		return w
	}
	return 1
}
