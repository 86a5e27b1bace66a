// Package sqlrouter wraps the *sql.DB handles of a group and routes every
// statement to the primary or to a replica.
//
// Each statement goes through the same steps, always in this order:
//
//  1. the routing hint is read from the statement as written by the caller;
//  2. every hint marker is removed from the text;
//  3. the configured rewriters run, in registration order;
//  4. the rewritten text is classified;
//  5. the hint (or, without a hint, the classification) is pushed onto the
//     scope of the context, the group resolves a target, the statement runs
//     there and the routing type is popped;
//  6. a write records the write time in the scope, even if it failed.
//
// Reads that fail on a replica with a connection level error are replayed
// once on the primary.
//
//	db, err := sqlrouter.New(group, handles, sqlrouter.Opts{})
//	ctx, release := rwsplit.Enter(ctx)
//	defer release()
//	_, err = db.ExecContext(ctx, "UPDATE orders SET state = ? WHERE id = ?", "paid", 42)
//	row := db.QueryRowContext(ctx, "SELECT state FROM orders WHERE id = ?", 42) // primary
package sqlrouter
