package pool

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/ice-blockchain/go-rwsplit"
	"github.com/ice-blockchain/go-rwsplit/balancer"
)

var (
	ErrEmptyGroupName   = errors.New("group name should not be empty")
	ErrEmptyPrimary     = errors.New("primary target name should not be empty")
	ErrEmptyReplicaName = errors.New("replica name should not be empty")
	ErrDuplicateTarget  = errors.New("duplicate target name")
	ErrWrongWeight      = errors.New("wrong replica weight, must be greater than 0")
)

// ReplicaOpts describes one replica of a group.
type ReplicaOpts struct {
	Name string
	// Weight is used by the weighted strategies. Zero means 1.
	Weight int
	// Unavailable sets the initial availability; replicas start available by
	// default.
	Unavailable bool
}

// GroupOpts describes a group: one primary and an ordered list of replicas.
type GroupOpts struct {
	Name     string
	Primary  string
	Replicas []ReplicaOpts
	// Strategy picks the load balancer. Empty means round robin.
	Strategy balancer.Strategy
	// Balancer overrides Strategy with a ready instance.
	Balancer balancer.Balancer
	// ConsistencyWindow is the read-after-write window used by callers that
	// do not pass their own. Zero means DefaultConsistencyWindow.
	ConsistencyWindow time.Duration
	Metrics           Metrics
	Logger            rwsplit.Logger
}

// Route is the outcome of a resolution.
type Route struct {
	// Target is the name of the primary or of the chosen replica.
	Target string
	Role   Role
	// Replica is nil when the primary was chosen.
	Replica *Replica
	// Fallback is set when a replica was wanted but none was available.
	Fallback bool
}

// Group owns the primary and the replicas of one logical database and
// resolves every operation to one of them. The topology is fixed at
// construction, only availability and counters change afterwards, so the
// request path takes no group-level lock.
type Group struct {
	name     string
	primary  string
	replicas []*Replica
	byName   map[string]*Replica

	strategy balancer.Strategy
	balancer balancer.Balancer
	window   time.Duration
	metrics  Metrics
	logger   rwsplit.Logger
}

// NewGroup validates opts and creates a group. Every problem found is
// reported at once.
func NewGroup(opts GroupOpts) (*Group, error) {
	var errs *multierror.Error

	if opts.Name == "" {
		errs = multierror.Append(errs, ErrEmptyGroupName)
	}
	if opts.Primary == "" {
		errs = multierror.Append(errs, ErrEmptyPrimary)
	}

	g := &Group{
		name:     opts.Name,
		primary:  opts.Primary,
		replicas: make([]*Replica, 0, len(opts.Replicas)),
		byName:   make(map[string]*Replica, len(opts.Replicas)),
		window:   opts.ConsistencyWindow,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}

	for _, ro := range opts.Replicas {
		switch {
		case ro.Name == "":
			errs = multierror.Append(errs, ErrEmptyReplicaName)
			continue
		case ro.Name == opts.Primary:
			errs = multierror.Append(errs, fmt.Errorf("%w: %q", ErrDuplicateTarget, ro.Name))
			continue
		case g.byName[ro.Name] != nil:
			errs = multierror.Append(errs, fmt.Errorf("%w: %q", ErrDuplicateTarget, ro.Name))
			continue
		case ro.Weight < 0:
			errs = multierror.Append(errs, fmt.Errorf("%w: replica %q has %d", ErrWrongWeight, ro.Name, ro.Weight))
			continue
		}
		if ro.Weight == 0 {
			ro.Weight = 1
		}
		r := newReplica(opts.Name, ro)
		g.replicas = append(g.replicas, r)
		g.byName[r.name] = r
	}

	g.strategy = opts.Strategy
	g.balancer = opts.Balancer
	if g.balancer == nil {
		if g.strategy == "" {
			g.strategy = balancer.RoundRobinStrategy
		}
		b, err := balancer.New(g.strategy)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		g.balancer = b
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, rwsplit.ConfigError{Group: opts.Name, Err: err}
	}

	if g.window <= 0 {
		g.window = DefaultConsistencyWindow
	}
	if g.metrics == nil {
		g.metrics = NopMetrics{}
	}
	if g.logger == nil {
		g.logger = rwsplit.NopLogger{}
	}
	return g, nil
}

func (g *Group) Name() string {
	return g.name
}

// Primary returns the name of the primary target.
func (g *Group) Primary() string {
	return g.primary
}

// Strategy returns the configured strategy, empty if a custom balancer was
// supplied.
func (g *Group) Strategy() balancer.Strategy {
	return g.strategy
}

// ConsistencyWindow returns the group's read-after-write window.
func (g *Group) ConsistencyWindow() time.Duration {
	return g.window
}

// Replicas returns the replicas in configuration order.
func (g *Group) Replicas() []*Replica {
	ret := make([]*Replica, len(g.replicas))
	copy(ret, g.replicas)
	return ret
}

// Replica returns the named replica or nil.
func (g *Group) Replica(name string) *Replica {
	return g.byName[name]
}

// Targets returns the names of the primary and of every replica.
func (g *Group) Targets() []string {
	names := make([]string, 0, len(g.replicas)+1)
	names = append(names, g.primary)
	for _, r := range g.replicas {
		names = append(names, r.name)
	}
	return names
}

// Resolve picks the target for the next operation of scope:
//
//  1. the primary if the scope requires it (forced, Master override, or a
//     write less than window ago);
//  2. the pinned replica if the scope asks for a replica and the pinned one
//     is available (the pin is consumed either way);
//  3. the balancer's choice among available replicas;
//  4. the primary as a fallback when no replica is available.
//
// A nil scope behaves like an empty one. Resolve never blocks on I/O.
func (g *Group) Resolve(scope *rwsplit.Scope, window time.Duration) Route {
	if scope != nil {
		if scope.ShouldUseMaster(window) {
			g.metrics.Inc(MasterRouted, g.name)
			return Route{Target: g.primary, Role: PrimaryRole}
		}

		if scope.Current() == rwsplit.Slave {
			if pinned := scope.TakePinnedReplica(); pinned != "" {
				if r := g.byName[pinned]; r != nil && r.Available() {
					g.metrics.Inc(SlaveRouted, g.name)
					return Route{Target: r.name, Role: ReplicaRole, Replica: r}
				}
				g.logger.Report(rwsplit.NewPinnedReplicaUnavailableEvent(g.name, pinned))
			}
		}
	}

	if t := g.balancer.Select(g.availableTargets()); t != nil {
		if r, ok := t.(*Replica); ok {
			g.metrics.Inc(SlaveRouted, g.name)
			return Route{Target: r.name, Role: ReplicaRole, Replica: r}
		}
	}

	g.logger.Report(rwsplit.NewFallbackEvent(g.name, g.primary))
	g.metrics.Inc(Fallback, g.name)
	return Route{Target: g.primary, Role: PrimaryRole, Fallback: true}
}

// ResolveTarget is Resolve returning only the target name.
func (g *Group) ResolveTarget(scope *rwsplit.Scope, window time.Duration) string {
	return g.Resolve(scope, window).Target
}

func (g *Group) availableTargets() []balancer.Target {
	ret := make([]balancer.Target, 0, len(g.replicas))
	for _, r := range g.replicas {
		if r.Available() {
			ret = append(ret, r)
		}
	}
	return ret
}

// MarkAvailable is an admin override. It is idempotent.
func (g *Group) MarkAvailable(name string) error {
	r := g.byName[name]
	if r == nil {
		return fmt.Errorf("%w: %q in group %q", rwsplit.ErrUnknownReplica, name, g.name)
	}
	if r.markAvailable() {
		g.logger.Report(rwsplit.NewReplicaRecoveredEvent(g.name, name))
	}
	return nil
}

// MarkUnavailable is an admin override. It is idempotent. A later successful
// probe makes the replica available again.
func (g *Group) MarkUnavailable(name string) error {
	r := g.byName[name]
	if r == nil {
		return fmt.Errorf("%w: %q in group %q", rwsplit.ErrUnknownReplica, name, g.name)
	}
	if r.markUnavailable() {
		g.logger.Report(rwsplit.NewReplicaUnavailableEvent(g.name, name, 0))
	}
	return nil
}

// Availability returns a snapshot replica name -> available.
func (g *Group) Availability() map[string]bool {
	ret := make(map[string]bool, len(g.replicas))
	for _, r := range g.replicas {
		ret[r.name] = r.Available()
	}
	return ret
}
