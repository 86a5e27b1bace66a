package pool

import "fmt"

const (
	StatusUp   = "UP"
	StatusDown = "DOWN"
)

// HealthStatus is a point-in-time view of one replica.
type HealthStatus struct {
	Available bool `json:"available" msgpack:"available"`
	// LagMs is nil when the lag is unknown.
	LagMs    *int64 `json:"lag_ms" msgpack:"lag_ms"`
	Failures int    `json:"failures" msgpack:"failures"`
}

// GroupHealth aggregates the replicas of a group. A group is UP when at
// least one replica is available.
type GroupHealth struct {
	Group    string                  `json:"group" msgpack:"group"`
	Status   string                  `json:"status" msgpack:"status"`
	Primary  string                  `json:"primary" msgpack:"primary"`
	MaxLagMs *int64                  `json:"max_lag_ms,omitempty" msgpack:"max_lag_ms,omitempty"`
	Replicas map[string]HealthStatus `json:"replicas" msgpack:"replicas"`
}

// Status returns the state of the replica.
func (r *Replica) Status() HealthStatus {
	st := HealthStatus{
		Available: r.Available(),
		Failures:  r.Failures(),
	}
	if lag, ok := r.Lag(); ok {
		ms := lag.Milliseconds()
		st.LagMs = &ms
	}
	return st
}

// Health aggregates the replicas of the group. Replicas are keyed by
// their full name. The group is DOWN as soon as one replica is unavailable.
func (g *Group) Health() GroupHealth {
	h := GroupHealth{
		Group:    g.name,
		Status:   StatusUp,
		Primary:  g.primary,
		Replicas: make(map[string]HealthStatus, len(g.replicas)),
	}
	for _, r := range g.replicas {
		st := r.Status()
		if !st.Available {
			h.Status = StatusDown
		}
		if st.LagMs != nil && (h.MaxLagMs == nil || *st.LagMs > *h.MaxLagMs) {
			lag := *st.LagMs
			h.MaxLagMs = &lag
		}
		h.Replicas[r.FullName()] = st
	}
	return h
}

// Health returns the health of every group sorted by name.
func (c *Cluster) Health() []GroupHealth {
	groups := c.Groups()
	ret := make([]GroupHealth, 0, len(groups))
	for _, g := range groups {
		ret = append(ret, g.Health())
	}
	return ret
}

// GroupHealth returns the health of the named group.
func (c *Cluster) GroupHealth(name string) (GroupHealth, error) {
	g, err := c.Group(name)
	if err != nil {
		return GroupHealth{}, fmt.Errorf("health: %w", err)
	}
	return g.Health(), nil
}
