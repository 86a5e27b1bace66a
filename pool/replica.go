package pool

import (
	"sync/atomic"
	"time"

	"github.com/ice-blockchain/go-rwsplit/balancer"
)

const lagUnknown = -1

// Replica is a read-only routing target. Its mutable state is kept in
// atomics: it is read on every resolution and written by the health monitor
// and by admin overrides.
type Replica struct {
	group  string
	name   string
	weight int

	state    availability
	failures int32
	lagMs    int64
	conns    int64
}

var _ balancer.Target = (*Replica)(nil)

func newReplica(group string, opts ReplicaOpts) *Replica {
	r := &Replica{
		group:  group,
		name:   opts.Name,
		weight: opts.Weight,
		lagMs:  lagUnknown,
	}
	if opts.Unavailable {
		r.state.set(unavailable)
	}
	return r
}

// Name is unique within the group.
func (r *Replica) Name() string {
	return r.name
}

// FullName is "group.replica", unique within a cluster.
func (r *Replica) FullName() string {
	return r.group + "." + r.name
}

// Group returns the name of the owning group.
func (r *Replica) Group() string {
	return r.group
}

func (r *Replica) Weight() int {
	return r.weight
}

// ActiveConns is the estimate of operations currently running on the
// replica. It feeds the least-connections strategy.
func (r *Replica) ActiveConns() int64 {
	return atomic.LoadInt64(&r.conns)
}

// Acquire increments the connection estimate. Every Acquire must be paired
// with a Release.
func (r *Replica) Acquire() {
	atomic.AddInt64(&r.conns, 1)
}

func (r *Replica) Release() {
	atomic.AddInt64(&r.conns, -1)
}

// Available reports the last known availability. It may be stale for up to
// one probe interval.
func (r *Replica) Available() bool {
	return r.state.get() == available
}

// Failures returns the number of consecutive failed probes.
func (r *Replica) Failures() int {
	return int(atomic.LoadInt32(&r.failures))
}

// Lag returns the last measured replication lag and false if it is unknown.
func (r *Replica) Lag() (time.Duration, bool) {
	ms := atomic.LoadInt64(&r.lagMs)
	if ms < 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// markAvailable returns true if the replica was unavailable before.
func (r *Replica) markAvailable() bool {
	return r.state.cas(unavailable, available)
}

// markUnavailable returns true if the replica was available before.
func (r *Replica) markUnavailable() bool {
	return r.state.cas(available, unavailable)
}

func (r *Replica) recordFailure() int {
	return int(atomic.AddInt32(&r.failures, 1))
}

func (r *Replica) resetFailures() {
	atomic.StoreInt32(&r.failures, 0)
}

func (r *Replica) setLag(lag time.Duration, known bool) {
	if !known {
		atomic.StoreInt64(&r.lagMs, lagUnknown)
		return
	}
	atomic.StoreInt64(&r.lagMs, lag.Milliseconds())
}
