// Package rwsplit routes SQL statements of an application between a
// primary database and its read replicas.
//
// Every logical execution unit (an HTTP request, a job) carries a Scope in
// its context.Context. The scope holds explicit routing overrides, the time
// of the last write and a replica pinned by a statement hint:
//
//	ctx, release := rwsplit.Enter(ctx)
//	defer release()
//
//	_, err := db.ExecContext(ctx, "INSERT INTO orders (id) VALUES (?)", id)
//	// Reads within the consistency window after a write go to the primary.
//	row := db.QueryRowContext(ctx, "SELECT status FROM orders WHERE id = ?", id)
//
// Subpackages:
//
//   - classify recognizes statement kinds and routing hints.
//   - balancer picks a replica out of the available ones.
//   - pool keeps replica groups, resolves routing decisions and monitors
//     replica health.
//   - sqlrouter wraps database/sql handles of one group into a router.
//   - config loads the YAML configuration.
//   - httpapi exposes health and admin endpoints.
package rwsplit
