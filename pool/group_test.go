package pool_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ice-blockchain/go-rwsplit"
	"github.com/ice-blockchain/go-rwsplit/balancer"
	"github.com/ice-blockchain/go-rwsplit/pool"
	"github.com/ice-blockchain/go-rwsplit/test_helpers"
)

const window = time.Second

func newTestGroup(t *testing.T, opts pool.GroupOpts) (*pool.Group, *pool.Counters, *test_helpers.RecordingLogger) {
	t.Helper()

	counters := pool.NewCounters()
	logger := &test_helpers.RecordingLogger{}
	if opts.Name == "" {
		opts.Name = "orders"
	}
	if opts.Primary == "" {
		opts.Primary = "primary"
	}
	if opts.Replicas == nil {
		opts.Replicas = []pool.ReplicaOpts{{Name: "r1"}, {Name: "r2"}}
	}
	opts.Metrics = counters
	opts.Logger = logger

	g, err := pool.NewGroup(opts)
	require.NoError(t, err)
	return g, counters, logger
}

func TestNewGroup_Defaults(t *testing.T) {
	g, _, _ := newTestGroup(t, pool.GroupOpts{})

	require.Equal(t, "orders", g.Name())
	require.Equal(t, "primary", g.Primary())
	require.Equal(t, balancer.RoundRobinStrategy, g.Strategy())
	require.Equal(t, pool.DefaultConsistencyWindow, g.ConsistencyWindow())
	require.Equal(t, []string{"primary", "r1", "r2"}, g.Targets())

	replicas := g.Replicas()
	require.Len(t, replicas, 2)
	for _, r := range replicas {
		require.Equal(t, 1, r.Weight())
		require.True(t, r.Available())
		require.Equal(t, "orders", r.Group())
		require.Equal(t, "orders."+r.Name(), r.FullName())
		_, known := r.Lag()
		require.False(t, known)
	}
	require.Nil(t, g.Replica("unknown"))
}

func TestNewGroup_Validation(t *testing.T) {
	_, err := pool.NewGroup(pool.GroupOpts{
		Primary: "db",
		Replicas: []pool.ReplicaOpts{
			{Name: "db"},
			{Name: "r1"},
			{Name: "r1"},
			{Name: ""},
			{Name: "r2", Weight: -1},
		},
		Strategy: "fastest",
	})
	require.Error(t, err)

	var cfgErr rwsplit.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.ErrorIs(t, err, pool.ErrEmptyGroupName)
	assert.ErrorIs(t, err, pool.ErrDuplicateTarget)
	assert.ErrorIs(t, err, pool.ErrEmptyReplicaName)
	assert.ErrorIs(t, err, pool.ErrWrongWeight)
	assert.ErrorIs(t, err, balancer.ErrUnknownStrategy)
}

func TestNewGroup_EmptyPrimary(t *testing.T) {
	_, err := pool.NewGroup(pool.GroupOpts{Name: "g"})
	require.ErrorIs(t, err, pool.ErrEmptyPrimary)
}

func TestGroup_Resolve_WriteGoesToPrimary(t *testing.T) {
	g, counters, _ := newTestGroup(t, pool.GroupOpts{})

	scope := rwsplit.NewScope()
	scope.Push(rwsplit.Master)
	defer scope.Pop()

	route := g.Resolve(scope, window)
	require.Equal(t, "primary", route.Target)
	require.Equal(t, pool.PrimaryRole, route.Role)
	require.Nil(t, route.Replica)
	require.False(t, route.Fallback)
	require.EqualValues(t, 1, counters.Get(pool.MasterRouted, "orders"))
}

func TestGroup_Resolve_ReadsAreBalanced(t *testing.T) {
	g, counters, _ := newTestGroup(t, pool.GroupOpts{
		Replicas: []pool.ReplicaOpts{{Name: "r1"}, {Name: "r2"}, {Name: "r3"}},
	})

	scope := rwsplit.NewScope()
	scope.Push(rwsplit.Slave)

	seen := map[string]int{}
	for i := 0; i < 3; i++ {
		route := g.Resolve(scope, window)
		require.Equal(t, pool.ReplicaRole, route.Role)
		require.NotNil(t, route.Replica)
		seen[route.Target]++
	}
	require.Equal(t, map[string]int{"r1": 1, "r2": 1, "r3": 1}, seen)
	require.EqualValues(t, 3, counters.Get(pool.SlaveRouted, "orders"))
}

func TestGroup_Resolve_NilScope(t *testing.T) {
	g, _, _ := newTestGroup(t, pool.GroupOpts{})

	require.Equal(t, pool.ReplicaRole, g.Resolve(nil, window).Role)
}

func TestGroup_Resolve_ForcedPrimary(t *testing.T) {
	g, _, _ := newTestGroup(t, pool.GroupOpts{})

	scope := rwsplit.NewScope()
	scope.ForcePrimary()
	scope.Push(rwsplit.Slave)

	require.Equal(t, "primary", g.ResolveTarget(scope, window))

	scope.ClearForcePrimary()
	require.NotEqual(t, "primary", g.ResolveTarget(scope, window))
}

func TestGroup_Resolve_ConsistencyWindow(t *testing.T) {
	g, _, _ := newTestGroup(t, pool.GroupOpts{})
	clock := test_helpers.NewFakeClock(time.Time{})

	scope := rwsplit.NewScope(rwsplit.WithClock(clock.Now))
	scope.MarkWrite()

	clock.Advance(500 * time.Millisecond)
	require.Equal(t, "primary", g.ResolveTarget(scope, window))

	clock.Advance(499 * time.Millisecond)
	require.Equal(t, "primary", g.ResolveTarget(scope, window))

	clock.Advance(time.Millisecond)
	require.NotEqual(t, "primary", g.ResolveTarget(scope, window))
}

func TestGroup_Resolve_Fallback(t *testing.T) {
	g, counters, logger := newTestGroup(t, pool.GroupOpts{})

	require.NoError(t, g.MarkUnavailable("r1"))
	require.NoError(t, g.MarkUnavailable("r2"))

	route := g.Resolve(rwsplit.NewScope(), window)
	require.Equal(t, "primary", route.Target)
	require.Equal(t, pool.PrimaryRole, route.Role)
	require.True(t, route.Fallback)
	require.EqualValues(t, 1, counters.Get(pool.Fallback, "orders"))
	require.EqualValues(t, 0, counters.Get(pool.MasterRouted, "orders"))
	require.Equal(t, 1, logger.Count("fallback"))
}

func TestGroup_Resolve_SkipsUnavailable(t *testing.T) {
	g, _, _ := newTestGroup(t, pool.GroupOpts{})

	require.NoError(t, g.MarkUnavailable("r1"))
	for i := 0; i < 4; i++ {
		require.Equal(t, "r2", g.ResolveTarget(nil, window))
	}

	require.NoError(t, g.MarkAvailable("r1"))
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		seen[g.ResolveTarget(nil, window)] = true
	}
	require.Equal(t, map[string]bool{"r1": true, "r2": true}, seen)
}

func TestGroup_Resolve_PinnedReplica(t *testing.T) {
	g, _, logger := newTestGroup(t, pool.GroupOpts{
		Replicas: []pool.ReplicaOpts{{Name: "r1"}, {Name: "r2"}, {Name: "r3"}},
	})

	scope := rwsplit.NewScope()
	scope.Push(rwsplit.Slave)

	for i := 0; i < 3; i++ {
		scope.PinReplica("r3")
		require.Equal(t, "r3", g.ResolveTarget(scope, window))
		require.Empty(t, scope.PinnedReplica())
	}

	require.NoError(t, g.MarkUnavailable("r3"))
	scope.PinReplica("r3")
	route := g.Resolve(scope, window)
	require.Equal(t, pool.ReplicaRole, route.Role)
	require.NotEqual(t, "r3", route.Target)
	require.Empty(t, scope.PinnedReplica())
	require.Equal(t, 1, logger.Count("pinned_replica_unavailable"))

	scope.PinReplica("nope")
	require.NotEqual(t, "nope", g.ResolveTarget(scope, window))
	require.Equal(t, 2, logger.Count("pinned_replica_unavailable"))
}

func TestGroup_Resolve_PinIgnoredWithoutSlave(t *testing.T) {
	g, _, _ := newTestGroup(t, pool.GroupOpts{})

	scope := rwsplit.NewScope()
	scope.PinReplica("r2")
	scope.Push(rwsplit.Master)

	require.Equal(t, "primary", g.ResolveTarget(scope, window))
	require.Equal(t, "r2", scope.PinnedReplica())
}

func TestGroup_MarkAvailability(t *testing.T) {
	g, _, logger := newTestGroup(t, pool.GroupOpts{
		Replicas: []pool.ReplicaOpts{{Name: "r1"}, {Name: "r2", Unavailable: true}},
	})

	require.Equal(t, map[string]bool{"r1": true, "r2": false}, g.Availability())

	require.NoError(t, g.MarkAvailable("r2"))
	require.NoError(t, g.MarkAvailable("r2"))
	require.NoError(t, g.MarkUnavailable("r1"))
	require.NoError(t, g.MarkUnavailable("r1"))
	require.Equal(t, map[string]bool{"r1": false, "r2": true}, g.Availability())

	require.Equal(t, []string{"replica_recovered", "replica_unavailable"}, logger.Names())

	require.ErrorIs(t, g.MarkAvailable("r9"), rwsplit.ErrUnknownReplica)
	require.ErrorIs(t, g.MarkUnavailable("r9"), rwsplit.ErrUnknownReplica)
}

func TestGroup_CustomBalancer(t *testing.T) {
	g, _, _ := newTestGroup(t, pool.GroupOpts{
		Replicas: []pool.ReplicaOpts{{Name: "r1"}, {Name: "r2"}},
		Balancer: balancer.NewRandom(func(n int) int { return n - 1 }),
	})

	require.Equal(t, balancer.Strategy(""), g.Strategy())
	require.Equal(t, "r2", g.ResolveTarget(nil, window))
}

func TestGroup_LeastConnections(t *testing.T) {
	g, _, _ := newTestGroup(t, pool.GroupOpts{Strategy: balancer.LeastConnectionsStrategy})

	g.Replica("r1").Acquire()
	require.Equal(t, "r2", g.ResolveTarget(nil, window))

	g.Replica("r1").Release()
	g.Replica("r2").Acquire()
	require.Equal(t, "r1", g.ResolveTarget(nil, window))
}

func TestCluster(t *testing.T) {
	orders, _, _ := newTestGroup(t, pool.GroupOpts{Name: "orders"})
	users, _, _ := newTestGroup(t, pool.GroupOpts{Name: "users"})

	cluster, err := pool.NewCluster(users, orders)
	require.NoError(t, err)

	g, err := cluster.Group("orders")
	require.NoError(t, err)
	require.Same(t, orders, g)

	require.Equal(t, []*pool.Group{orders, users}, cluster.Groups())
	require.Len(t, cluster.Replicas(), 4)

	_, err = cluster.Group("billing")
	require.ErrorIs(t, err, rwsplit.ErrUnknownGroup)
	var cfgErr rwsplit.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "billing", cfgErr.Group)
}

func TestCluster_DuplicateGroup(t *testing.T) {
	a, _, _ := newTestGroup(t, pool.GroupOpts{Name: "orders"})
	b, _, _ := newTestGroup(t, pool.GroupOpts{Name: "orders"})

	_, err := pool.NewCluster(a, b)
	require.ErrorIs(t, err, pool.ErrDuplicateTarget)
}

func TestCounters(t *testing.T) {
	c := pool.NewCounters()
	c.Inc(pool.Fallback, "orders")
	c.Inc(pool.Fallback, "orders")
	c.Inc(pool.Replay, "users")

	require.EqualValues(t, 2, c.Get(pool.Fallback, "orders"))
	require.EqualValues(t, 0, c.Get(pool.Replay, "orders"))
	require.Equal(t, map[string]map[string]uint64{
		"orders": {pool.Fallback: 2},
		"users":  {pool.Replay: 1},
	}, c.Snapshot())
}

func TestGroup_UnavailableExcludedByEveryStrategy(t *testing.T) {
	for _, strategy := range balancer.Strategies {
		t.Run(string(strategy), func(t *testing.T) {
			g, counters, _ := newTestGroup(t, pool.GroupOpts{
				Strategy: strategy,
				Replicas: []pool.ReplicaOpts{
					{Name: "r1", Weight: 5},
					{Name: "r2", Weight: 1},
					{Name: "r3", Weight: 3},
				},
			})
			require.NoError(t, g.MarkUnavailable("r1"))
			require.NoError(t, g.MarkUnavailable("r3"))

			for i := 0; i < 50; i++ {
				require.Equal(t, "r2", g.ResolveTarget(nil, window))
			}

			require.NoError(t, g.MarkUnavailable("r2"))
			require.Equal(t, "primary", g.ResolveTarget(nil, window))
			require.EqualValues(t, 1, counters.Get(pool.Fallback, "orders"))
		})
	}
}

// An Auto read goes to the only available replica, except inside the
// consistency window that follows a write.
func TestGroup_OrdersReadAfterWrite(t *testing.T) {
	clock := test_helpers.NewFakeClock(time.Time{})
	g, _, _ := newTestGroup(t, pool.GroupOpts{
		Name:    "orders",
		Primary: "M",
		Replicas: []pool.ReplicaOpts{
			{Name: "R1", Weight: 1},
			{Name: "R2", Weight: 1, Unavailable: true},
		},
	})
	scope := rwsplit.NewScope(rwsplit.WithClock(clock.Now))

	for i := 0; i < 10; i++ {
		require.Equal(t, "R1", g.ResolveTarget(scope, window))
	}

	scope.Push(rwsplit.Master)
	require.Equal(t, "M", g.ResolveTarget(scope, window))
	scope.Pop()
	scope.MarkWrite()

	clock.Advance(10 * time.Millisecond)
	require.Equal(t, "M", g.ResolveTarget(scope, window))
	require.True(t, g.Replica("R1").Available())

	clock.Advance(window)
	require.Equal(t, "R1", g.ResolveTarget(scope, window))
}

func TestGroup_ConcurrentResolve(t *testing.T) {
	counters := pool.NewCounters()
	g, err := pool.NewGroup(pool.GroupOpts{
		Name:     "orders",
		Primary:  "primary",
		Replicas: []pool.ReplicaOpts{{Name: "r1"}, {Name: "r2"}, {Name: "r3"}},
		Strategy: balancer.WeightedRoundRobinStrategy,
		Metrics:  counters,
	})
	require.NoError(t, err)
	cluster, err := pool.NewCluster(g)
	require.NoError(t, err)

	prober := newStubProber()
	prober.set("orders.r3", pool.ProbeResult{}, errors.New("connection refused"))
	m := pool.NewMonitor(cluster, prober, pool.MonitorOpts{FailureThreshold: 1})
	ctx := context.Background()

	const (
		workers   = 8
		perWorker = 500
	)

	stop := make(chan struct{})
	var background sync.WaitGroup
	background.Add(2)
	go func() {
		defer background.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			_ = g.MarkUnavailable("r2")
			_ = g.MarkAvailable("r2")
		}
	}()
	go func() {
		defer background.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			m.CheckAll(ctx)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scope := rwsplit.NewScope()
			for j := 0; j < perWorker; j++ {
				route := g.Resolve(scope, window)
				if route.Replica != nil {
					route.Replica.Acquire()
					_ = route.Replica.Status()
					route.Replica.Release()
				}
				_ = g.Health()
			}
		}()
	}
	wg.Wait()
	close(stop)
	background.Wait()

	// r1 is never taken out, so every read reached a replica.
	require.EqualValues(t, workers*perWorker, counters.Get(pool.SlaveRouted, "orders"))
	require.Zero(t, counters.Get(pool.MasterRouted, "orders"))
	require.Zero(t, counters.Get(pool.Fallback, "orders"))

	m.CheckAll(ctx)
	require.NoError(t, g.MarkUnavailable("r2"))
	require.False(t, g.Replica("r3").Available())

	for i := 0; i < 50; i++ {
		require.Equal(t, "r1", g.ResolveTarget(nil, window))
	}
	for _, r := range g.Replicas() {
		require.Zero(t, r.ActiveConns(), r.Name())
	}
}
