package httpapi_test

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/ice-blockchain/go-rwsplit"
	"github.com/ice-blockchain/go-rwsplit/httpapi"
)

func TestScopeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var scope *rwsplit.Scope
	r := gin.New()
	r.Use(httpapi.ScopeMiddleware(rwsplit.NopLogger{}))
	r.GET("/write", func(c *gin.Context) {
		scope = httpapi.Scope(c)
		require.NotNil(t, scope)
		require.Same(t, scope, rwsplit.FromContext(c.Request.Context()))

		scope.Push(rwsplit.Master)
		scope.MarkWrite()
		c.Status(http.StatusNoContent)
	})

	w := do(r, http.MethodGet, "/write", http.Header{httpapi.RequestIDHeader: {"req-42"}})
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "req-42", w.Header().Get(httpapi.RequestIDHeader))

	// The execution unit is over: nothing leaks into a reused scope.
	require.Equal(t, "req-42", scope.ID())
	require.Zero(t, scope.Depth())
	_, hasWrite := scope.LastWriteTime()
	require.False(t, hasWrite)

	w = do(r, http.MethodGet, "/write", nil)
	id := w.Header().Get(httpapi.RequestIDHeader)
	require.NotEmpty(t, id)
	require.NotEqual(t, "req-42", id)
}

func TestScope_OutsideMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		require.Nil(t, httpapi.Scope(c))
		c.Status(http.StatusOK)
	})
	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/", nil).Code)
}
