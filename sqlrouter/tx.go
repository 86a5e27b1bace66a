package sqlrouter

import (
	"context"
	"database/sql"
	"sync"

	"github.com/ice-blockchain/go-rwsplit"
	"github.com/ice-blockchain/go-rwsplit/pool"
)

// Tx is a transaction pinned to one target for its whole life. Every
// statement has its hints removed and runs through the rewriters; the
// underlying *sql.Tx is not exposed.
type Tx struct {
	tx *sql.Tx

	db      *DB
	scope   *rwsplit.Scope
	route   pool.Route
	release sync.Once
	write   bool
}

var _ Executor = (*Tx)(nil)

// BeginTx starts a transaction. Read-write transactions always run on the
// primary; read-only ones are resolved like a read.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	scope, err := db.scope(ctx)
	if err != nil {
		return nil, err
	}

	t := rwsplit.Master
	if opts != nil && opts.ReadOnly {
		t = rwsplit.Slave
	}
	scope.Push(t)
	route := db.group.Resolve(scope, db.window)
	scope.Pop()

	if route.Replica != nil {
		route.Replica.Acquire()
	}
	tx, err := db.targets[route.Target].BeginTx(ctx, opts)
	if err != nil {
		if route.Replica != nil {
			route.Replica.Release()
		}
		return nil, err
	}
	return &Tx{
		tx:    tx,
		db:    db,
		scope: scope,
		route: route,
		write: t == rwsplit.Master,
	}, nil
}

// Target returns the name of the target running the transaction.
func (tx *Tx) Target() string {
	return tx.route.Target
}

// Commit commits the transaction. A read-write transaction records a write
// in the scope.
func (tx *Tx) Commit() error {
	defer tx.done()

	err := tx.tx.Commit()
	if tx.write {
		tx.scope.MarkWrite()
	}
	return err
}

func (tx *Tx) Rollback() error {
	defer tx.done()
	return tx.tx.Rollback()
}

// ExecContext removes routing hints and applies the rewriters before
// executing query within the transaction.
func (tx *Tx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	text, err := tx.db.rewrite(ctx, query)
	if err != nil {
		return nil, err
	}
	return tx.tx.ExecContext(ctx, text, args...)
}

// QueryContext removes routing hints and applies the rewriters before
// running query within the transaction.
func (tx *Tx) QueryContext(ctx context.Context, query string, args ...interface{}) (*Rows, error) {
	text, err := tx.db.rewrite(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := tx.tx.QueryContext(ctx, text, args...)
	if err != nil {
		return nil, err
	}
	// The transaction holds the connection estimate until it ends.
	return newRows(rows, nil), nil
}

func (tx *Tx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *Row {
	rows, err := tx.QueryContext(ctx, query, args...)
	return &Row{rows: rows, err: err}
}

// PrepareContext prepares the rewritten statement within the transaction.
func (tx *Tx) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	text, err := tx.db.rewrite(ctx, query)
	if err != nil {
		return nil, err
	}
	return tx.tx.PrepareContext(ctx, text)
}

func (tx *Tx) done() {
	tx.release.Do(func() {
		if tx.route.Replica != nil {
			tx.route.Replica.Release()
		}
	})
}
