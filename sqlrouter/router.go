package sqlrouter

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-multierror"

	"github.com/ice-blockchain/go-rwsplit"
	"github.com/ice-blockchain/go-rwsplit/classify"
	"github.com/ice-blockchain/go-rwsplit/pool"
)

var (
	ErrMissingTarget = errors.New("no database handle for target")
	ErrNilGroup      = errors.New("group is nil")
)

// Executor is the statement execution surface shared by DB and Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *Row
}

var _ Executor = (*DB)(nil)

// Opts configures a DB.
type Opts struct {
	// Rewriters run on every statement after hint removal and before
	// classification.
	Rewriters []Rewriter
	// ConsistencyWindow overrides the window of the group.
	ConsistencyWindow time.Duration
	// Metrics receives the replay counter. Routing counters are reported
	// by the group itself.
	Metrics pool.Metrics
	Logger  rwsplit.Logger
	// Replayable decides whether a failed replica read is replayed on the
	// primary. Defaults to IsConnectionError.
	Replayable func(err error) bool
	// DisableReplay turns replays off.
	DisableReplay bool
	// RequireScope rejects statements whose context carries no scope with
	// rwsplit.ErrNoScope instead of routing them with a transient one.
	RequireScope bool
}

// DB routes statements of one group over its *sql.DB handles.
type DB struct {
	group   *pool.Group
	targets map[string]*sql.DB
	window  time.Duration
	opts    Opts
}

// New wraps the handles of group. targets must contain a handle for the
// primary and for every replica.
func New(group *pool.Group, targets map[string]*sql.DB, opts Opts) (*DB, error) {
	if group == nil {
		return nil, rwsplit.ConfigError{Err: ErrNilGroup}
	}

	var errs *multierror.Error
	for _, name := range group.Targets() {
		if targets[name] == nil {
			errs = multierror.Append(errs, fmt.Errorf("%w: %q", ErrMissingTarget, name))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, rwsplit.ConfigError{Group: group.Name(), Err: err}
	}

	if opts.Metrics == nil {
		opts.Metrics = pool.NopMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = rwsplit.NopLogger{}
	}
	if opts.Replayable == nil {
		opts.Replayable = IsConnectionError
	}

	window := opts.ConsistencyWindow
	if window <= 0 {
		window = group.ConsistencyWindow()
	}

	handles := make(map[string]*sql.DB, len(targets))
	for _, name := range group.Targets() {
		handles[name] = targets[name]
	}
	return &DB{
		group:   group,
		targets: handles,
		window:  window,
		opts:    opts,
	}, nil
}

// Group returns the routed group.
func (db *DB) Group() *pool.Group {
	return db.group
}

// Target returns the handle of a target by name, or nil.
func (db *DB) Target(name string) *sql.DB {
	return db.targets[name]
}

// IsConnectionError reports errors after which the statement has most
// likely not been executed by the server.
func IsConnectionError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// statement is a prepared routing decision.
type statement struct {
	query string
	hint  classify.Hint
	class classify.Classification
}

func (st statement) routingType() rwsplit.RoutingType {
	if st.hint.Kind != classify.HintNone {
		return st.hint.RoutingType()
	}
	return st.class.RoutingType()
}

func (db *DB) prepare(ctx context.Context, query string, kind classify.CommandKind) (statement, error) {
	hint := classify.ParseHint(query)
	text, err := db.rewrite(ctx, query)
	if err != nil {
		return statement{}, err
	}
	class, _ := classify.Classify(text, kind)
	return statement{query: text, hint: hint, class: class}, nil
}

func (db *DB) rewrite(ctx context.Context, query string) (string, error) {
	text := classify.StripHints(query)
	for _, rw := range db.opts.Rewriters {
		var err error
		if text, err = rw.Rewrite(ctx, text); err != nil {
			return "", fmt.Errorf("rewrite failed: %w", err)
		}
	}
	return text, nil
}

// scope returns the scope of ctx or a transient one without read-after-write
// memory.
func (db *DB) scope(ctx context.Context) (*rwsplit.Scope, error) {
	if scope := rwsplit.FromContext(ctx); scope != nil {
		return scope, nil
	}
	if db.opts.RequireScope {
		return nil, rwsplit.ErrNoScope
	}
	return rwsplit.NewScope(rwsplit.WithLogger(db.opts.Logger)), nil
}

// run resolves the target of st and calls fn with its handle. With hold set
// the connection estimate of a replica is kept after a successful call and
// the returned func gives it back; otherwise the func is a no-op.
func (db *DB) run(ctx context.Context, st statement, hold bool, fn func(target *sql.DB) error) (func(), error) {
	scope, err := db.scope(ctx)
	if err != nil {
		return noop, err
	}

	if t := st.routingType(); t != rwsplit.Auto {
		scope.Push(t)
		defer scope.Pop()
	}
	if st.hint.Kind == classify.HintSlave && st.hint.Replica != "" {
		scope.PinReplica(st.hint.Replica)
		// The pin belongs to this statement only, even if it was resolved
		// to the primary.
		defer scope.TakePinnedReplica()
	}

	route := db.group.Resolve(scope, db.window)
	release, err := db.exec(route, hold, fn)

	if err != nil && route.Replica != nil && st.class != classify.Write &&
		!db.opts.DisableReplay && db.opts.Replayable(err) {
		db.opts.Logger.Report(rwsplit.NewReplayEvent(db.group.Name(), route.Target, err))
		db.opts.Metrics.Inc(pool.Replay, db.group.Name())
		err = fn(db.targets[db.group.Primary()])
	}

	if st.class == classify.Write {
		scope.MarkWrite()
	}
	return release, err
}

func (db *DB) exec(route pool.Route, hold bool, fn func(target *sql.DB) error) (func(), error) {
	if route.Replica == nil {
		return noop, fn(db.targets[route.Target])
	}

	route.Replica.Acquire()
	if err := fn(db.targets[route.Target]); err != nil || !hold {
		route.Replica.Release()
		return noop, err
	}
	return route.Replica.Release, nil
}

func noop() {}

// ExecContext executes a statement that does not return rows. Statements
// that cannot be classified are treated as writes.
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	st, err := db.prepare(ctx, query, classify.KindWrite)
	if err != nil {
		return nil, err
	}

	var res sql.Result
	_, err = db.run(ctx, st, false, func(target *sql.DB) error {
		var err error
		res, err = target.ExecContext(ctx, st.query, args...)
		return err
	})
	return res, err
}

// QueryContext executes a statement that returns rows. Statements that
// cannot be classified keep the current routing of the scope. A replica
// counts the query as in flight until the rows are closed or exhausted.
func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*Rows, error) {
	st, err := db.prepare(ctx, query, classify.KindUnknown)
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	release, err := db.run(ctx, st, true, func(target *sql.DB) error {
		var err error
		rows, err = target.QueryContext(ctx, st.query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return newRows(rows, release), nil
}

// QueryRowContext executes a statement that is expected to return at most
// one row. Errors are deferred until Row.Scan.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *Row {
	rows, err := db.QueryContext(ctx, query, args...)
	return &Row{rows: rows, err: err}
}

// PingContext pings every target of the group.
func (db *DB) PingContext(ctx context.Context) error {
	var errs *multierror.Error
	for _, name := range db.group.Targets() {
		if err := db.targets[name].PingContext(ctx); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errs.ErrorOrNil()
}

// Close closes every handle.
func (db *DB) Close() error {
	var errs *multierror.Error
	for _, name := range db.group.Targets() {
		if err := db.targets[name].Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errs.ErrorOrNil()
}
