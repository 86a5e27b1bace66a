package pool

import "time"

// Role describes the role of a routing target within its group.
type Role uint32

const (
	UnknownRole Role = iota
	PrimaryRole      // The single writable target of a group.
	ReplicaRole      // A read-only target eligible for reads.
)

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case PrimaryRole:
		return "primary"
	case ReplicaRole:
		return "replica"
	default:
		return "unknown"
	}
}

// Counter names reported to Metrics.
const (
	MasterRouted = "master_routed"
	SlaveRouted  = "slave_routed"
	Fallback     = "fallback"
	Replay       = "replay"
)

// Defaults of the health monitor.
const (
	DefaultCheckInterval     = 30 * time.Second
	DefaultProbeTimeout      = 5 * time.Second
	DefaultFailureThreshold  = 3
	DefaultConsistencyWindow = time.Second
)
