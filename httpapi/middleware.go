package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/ice-blockchain/go-rwsplit"
)

const RequestIDHeader = "X-Request-Id"

// ScopeMiddleware makes every request its own execution unit: it attaches a
// fresh scope to the request context and clears it once the handlers are
// done. The scope takes its ID from the X-Request-Id header when present and
// echoes it back.
func ScopeMiddleware(logger rwsplit.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		opts := []rwsplit.ScopeOption{rwsplit.WithLogger(logger)}
		if id := c.GetHeader(RequestIDHeader); id != "" {
			opts = append(opts, rwsplit.WithID(id))
		}

		ctx, release := rwsplit.Enter(c.Request.Context(), opts...)
		defer release()

		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIDHeader, rwsplit.FromContext(ctx).ID())
		c.Next()
	}
}

// Scope returns the scope of the request, nil outside ScopeMiddleware.
func Scope(c *gin.Context) *rwsplit.Scope {
	return rwsplit.FromContext(c.Request.Context())
}
