package pool

import (
	"sync"
	"sync/atomic"
)

// Metrics receives routing counters.
type Metrics interface {
	Inc(counter, group string)
}

// NopMetrics drops every counter.
type NopMetrics struct{}

func (NopMetrics) Inc(string, string) {}

// Counters is an in-process Metrics keeping one atomic counter per
// (group, counter) pair.
type Counters struct {
	mu     sync.RWMutex
	values map[string]map[string]*uint64
}

var _ Metrics = (*Counters)(nil)

func NewCounters() *Counters {
	return &Counters{values: make(map[string]map[string]*uint64)}
}

func (c *Counters) Inc(counter, group string) {
	atomic.AddUint64(c.counter(counter, group), 1)
}

// Get returns the current value of a counter.
func (c *Counters) Get(counter, group string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if v := c.values[group][counter]; v != nil {
		return atomic.LoadUint64(v)
	}
	return 0
}

// Snapshot returns group -> counter -> value.
func (c *Counters) Snapshot() map[string]map[string]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ret := make(map[string]map[string]uint64, len(c.values))
	for group, counters := range c.values {
		m := make(map[string]uint64, len(counters))
		for name, v := range counters {
			m[name] = atomic.LoadUint64(v)
		}
		ret[group] = m
	}
	return ret
}

func (c *Counters) counter(counter, group string) *uint64 {
	c.mu.RLock()
	v := c.values[group][counter]
	c.mu.RUnlock()
	if v != nil {
		return v
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	counters := c.values[group]
	if counters == nil {
		counters = make(map[string]*uint64)
		c.values[group] = counters
	}
	if v = counters[counter]; v == nil {
		v = new(uint64)
		counters[counter] = v
	}
	return v
}
