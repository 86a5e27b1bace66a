package balancer

// LeastConnections picks the target with the fewest in-flight operations.
// Ties go to the earlier target in the list so that equal load does not make
// the choice oscillate.
type LeastConnections struct{}

func NewLeastConnections() *LeastConnections {
	return &LeastConnections{}
}

func (LeastConnections) Select(available []Target) Target {
	var (
		best      Target
		bestConns int64
	)
	for _, t := range available {
		conns := t.ActiveConns()
		if best == nil || conns < bestConns {
			best, bestConns = t, conns
		}
	}
	return best
}
