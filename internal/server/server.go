// Package server wires a configuration into a running router: database
// handles, groups, health monitor and the HTTP endpoint.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"

	"github.com/ice-blockchain/go-rwsplit"
	"github.com/ice-blockchain/go-rwsplit/config"
	"github.com/ice-blockchain/go-rwsplit/httpapi"
	"github.com/ice-blockchain/go-rwsplit/pool"
	"github.com/ice-blockchain/go-rwsplit/sqlrouter"
)

const shutdownTimeout = 10 * time.Second

// Opener opens the handle of one target.
type Opener func(driver, dsn string) (*sql.DB, error)

type Opts struct {
	Logger rwsplit.Logger
	// Opener defaults to sql.Open.
	Opener Opener
}

type Server struct {
	logger   rwsplit.Logger
	counters *pool.Counters
	cluster  *pool.Cluster
	prober   *pool.SQLProber
	monitor  *pool.Monitor
	routers  map[string]*sqlrouter.DB
	engine   *gin.Engine

	mu  sync.Mutex
	cfg *config.Config
}

// New opens every target of cfg and builds the groups. Handles opened
// before a failure are closed.
func New(cfg *config.Config, opts Opts) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = rwsplit.NopLogger{}
	}
	if opts.Opener == nil {
		opts.Opener = sql.Open
	}

	s := &Server{
		cfg:      cfg,
		logger:   opts.Logger,
		counters: pool.NewCounters(),
		prober:   pool.NewSQLProber(),
		routers:  make(map[string]*sqlrouter.DB, len(cfg.Groups)),
	}

	var (
		groups []*pool.Group
		opened []*sql.DB
	)
	fail := func(err error) (*Server, error) {
		for _, db := range opened {
			_ = db.Close()
		}
		return nil, err
	}

	for _, gc := range cfg.Groups {
		gopts, err := cfg.GroupOpts(gc)
		if err != nil {
			return fail(err)
		}
		gopts.Metrics = s.counters
		gopts.Logger = s.logger

		group, err := pool.NewGroup(gopts)
		if err != nil {
			return fail(err)
		}

		handles := make(map[string]*sql.DB, len(gc.Replicas)+1)
		open := func(t config.TargetConfig) error {
			db, err := opts.Opener(t.Driver, t.DSN)
			if err != nil {
				return rwsplit.ConfigError{Group: gc.Name, Err: fmt.Errorf("open %q: %w", t.Name, err)}
			}
			opened = append(opened, db)
			handles[t.Name] = db
			return nil
		}

		if err := open(gc.Primary); err != nil {
			return fail(err)
		}
		for _, rc := range gc.Replicas {
			if err := open(rc.TargetConfig); err != nil {
				return fail(err)
			}
			s.prober.Add(group.Replica(rc.Name).FullName(), handles[rc.Name], pool.DialectForDriver(rc.Driver))
		}

		router, err := sqlrouter.New(group, handles, sqlrouter.Opts{
			Metrics: s.counters,
			Logger:  s.logger,
		})
		if err != nil {
			return fail(err)
		}
		s.routers[gc.Name] = router
		groups = append(groups, group)
	}

	cluster, err := pool.NewCluster(groups...)
	if err != nil {
		return fail(err)
	}
	s.cluster = cluster

	mopts := cfg.MonitorOpts()
	mopts.Logger = s.logger
	s.monitor = pool.NewMonitor(cluster, s.prober, mopts)

	s.engine = httpapi.NewRouter(httpapi.Opts{
		Cluster: cluster,
		Metrics: s.counters,
		Logger:  s.logger,
	})
	return s, nil
}

func (s *Server) Cluster() *pool.Cluster {
	return s.cluster
}

func (s *Server) Counters() *pool.Counters {
	return s.counters
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Router returns the statement router of a group.
func (s *Server) Router(group string) (*sqlrouter.DB, error) {
	if r, ok := s.routers[group]; ok {
		return r, nil
	}
	return nil, rwsplit.ConfigError{Group: group, Err: rwsplit.ErrUnknownGroup}
}

// Status runs one probe pass over every replica and returns the resulting
// health.
func (s *Server) Status(ctx context.Context) []pool.GroupHealth {
	s.monitor.CheckAll(ctx)
	return s.cluster.Health()
}

// Run starts the health monitor and the HTTP endpoint and blocks until ctx
// is done or the endpoint fails.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	if cfg.HealthCheck.IsEnabled() {
		if err := s.monitor.Start(ctx); err != nil {
			return err
		}
		defer s.monitor.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ApplyConfig takes over the replica availability of a reloaded
// configuration as admin overrides. Topology, weights and strategies need a
// restart; such differences are reported and ignored. It returns the number
// of overrides applied.
func (s *Server) ApplyConfig(cfg *config.Config) int {
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	s.mu.Unlock()

	applied := 0
	for _, gc := range cfg.Groups {
		group, err := s.cluster.Group(gc.Name)
		if err != nil {
			s.logger.Report(NewConfigIgnoredEvent(fmt.Sprintf("new group %q", gc.Name), nil))
			continue
		}
		prev, _ := old.Group(gc.Name)
		if !sameTopology(prev, gc) {
			s.logger.Report(NewConfigIgnoredEvent(
				fmt.Sprintf("topology, weights or strategy of group %q changed", gc.Name), nil))
		}

		for _, rc := range gc.Replicas {
			r := group.Replica(rc.Name)
			if r == nil || r.Available() == rc.IsAvailable() {
				continue
			}
			if rc.IsAvailable() {
				err = group.MarkAvailable(rc.Name)
			} else {
				err = group.MarkUnavailable(rc.Name)
			}
			if err == nil {
				applied++
			}
		}
	}
	return applied
}

func sameTopology(a, b config.GroupConfig) bool {
	if a.Strategy != b.Strategy || a.Primary != b.Primary || len(a.Replicas) != len(b.Replicas) {
		return false
	}
	for i := range a.Replicas {
		if a.Replicas[i].TargetConfig != b.Replicas[i].TargetConfig || a.Replicas[i].Weight != b.Replicas[i].Weight {
			return false
		}
	}
	return true
}

// Watch applies every change of the configuration file until ctx is done.
func (s *Server) Watch(ctx context.Context, path string) error {
	return config.Watch(ctx, path, config.DefaultDebounce, func(cfg *config.Config, err error) {
		if err != nil {
			s.logger.Report(NewConfigIgnoredEvent("reload failed", err))
			return
		}
		s.logger.Report(NewConfigReloadedEvent(path, s.ApplyConfig(cfg)))
	})
}

// Close closes every database handle.
func (s *Server) Close() error {
	var errs *multierror.Error
	for _, group := range s.cluster.Groups() {
		if err := s.routers[group.Name()].Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
