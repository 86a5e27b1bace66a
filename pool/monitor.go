package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ice-blockchain/go-rwsplit"
)

var ErrMonitorStarted = errors.New("monitor is already started")

// ProbeResult is the outcome of a successful probe.
type ProbeResult struct {
	// LagKnown is false when the replica could not report its lag. An
	// unknown lag does not count as a failure.
	LagKnown bool
	Lag      time.Duration
	// LagErr optionally explains an unknown lag.
	LagErr error
}

// Prober checks a single replica. It must honour ctx.
type Prober interface {
	Probe(ctx context.Context, replica *Replica) (ProbeResult, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, replica *Replica) (ProbeResult, error)

func (f ProberFunc) Probe(ctx context.Context, replica *Replica) (ProbeResult, error) {
	return f(ctx, replica)
}

// MonitorOpts configures a Monitor. Zero values are replaced with defaults.
type MonitorOpts struct {
	// Interval between two probes of the same replica.
	Interval time.Duration
	// Timeout of one probe. A timed out probe is a failure and is not
	// retried before the next tick.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures after which a
	// replica is marked unavailable.
	FailureThreshold int
	// LagTolerance is the maximum accepted replication lag. Zero disables
	// the check.
	LagTolerance time.Duration
	Logger       rwsplit.Logger
}

// Monitor periodically probes every replica of a cluster and keeps the
// availability flags up to date.
type Monitor struct {
	cluster *Cluster
	prober  Prober
	opts    MonitorOpts

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMonitor(cluster *Cluster, prober Prober, opts MonitorOpts) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultCheckInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultProbeTimeout
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.LagTolerance < 0 {
		opts.LagTolerance = 0
	}
	if opts.Logger == nil {
		opts.Logger = rwsplit.NopLogger{}
	}
	return &Monitor{
		cluster: cluster,
		prober:  prober,
		opts:    opts,
	}
}

// Opts returns the effective options.
func (m *Monitor) Opts() MonitorOpts {
	return m.opts
}

// Start runs one controller goroutine per replica. Every controller checks
// its replica at once and then on each tick, so a hung replica never delays
// the others.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return ErrMonitorStarted
	}
	ctx, m.cancel = context.WithCancel(ctx)

	for _, r := range m.cluster.Replicas() {
		m.wg.Add(1)
		go m.controller(ctx, r)
	}
	m.opts.Logger.Report(rwsplit.NewMonitorEvent("started", m.opts.Interval))
	return nil
}

// Stop cancels the controllers and waits for them. It is a no-op on a
// stopped monitor.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
	m.opts.Logger.Report(rwsplit.NewMonitorEvent("stopped", m.opts.Interval))
}

// CheckAll probes every replica once, concurrently, and returns when all
// probes are done.
func (m *Monitor) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, r := range m.cluster.Replicas() {
		wg.Add(1)
		go func(r *Replica) {
			defer wg.Done()
			m.Check(ctx, r)
		}(r)
	}
	wg.Wait()
}

func (m *Monitor) controller(ctx context.Context, r *Replica) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	m.Check(ctx, r)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx, r)
		}
	}
}

// Check probes one replica and applies the result.
func (m *Monitor) Check(ctx context.Context, r *Replica) {
	if ctx.Err() != nil {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	res, err := m.prober.Probe(probeCtx, r)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			// Shutting down, not the replica's fault.
			return
		}
		m.fail(r, err)
		return
	}

	r.setLag(res.Lag, res.LagKnown)
	if !res.LagKnown {
		m.opts.Logger.Report(rwsplit.NewLagUnknownEvent(r.group, r.name, res.LagErr))
	} else if m.opts.LagTolerance > 0 && res.Lag > m.opts.LagTolerance {
		m.opts.Logger.Report(rwsplit.NewLagExceededEvent(r.group, r.name, res.Lag, m.opts.LagTolerance))
		m.fail(r, nil)
		return
	}

	r.resetFailures()
	if r.markAvailable() {
		m.opts.Logger.Report(rwsplit.NewReplicaRecoveredEvent(r.group, r.name))
	}
}

func (m *Monitor) fail(r *Replica, err error) {
	failures := r.recordFailure()
	if err != nil {
		m.opts.Logger.Report(rwsplit.NewProbeFailedEvent(r.group, r.name, failures,
			m.opts.FailureThreshold, err))
	}
	if failures >= m.opts.FailureThreshold && r.markUnavailable() {
		m.opts.Logger.Report(rwsplit.NewReplicaUnavailableEvent(r.group, r.name, failures))
	}
}
