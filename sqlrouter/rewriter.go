package sqlrouter

import "context"

// Rewriter transforms a statement before it is classified, e.g. to add a
// tenant row filter. Routing hints are already removed from query.
type Rewriter interface {
	Rewrite(ctx context.Context, query string) (string, error)
}

// RewriterFunc adapts a function to Rewriter.
type RewriterFunc func(ctx context.Context, query string) (string, error)

func (f RewriterFunc) Rewrite(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}
