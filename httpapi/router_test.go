package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ice-blockchain/go-rwsplit/httpapi"
	"github.com/ice-blockchain/go-rwsplit/pool"
)

func newTestRouter(t *testing.T) (*gin.Engine, *pool.Cluster, *pool.Counters) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	counters := pool.NewCounters()
	orders, err := pool.NewGroup(pool.GroupOpts{
		Name:     "orders",
		Primary:  "m",
		Replicas: []pool.ReplicaOpts{{Name: "r1"}, {Name: "r2"}},
		Metrics:  counters,
	})
	require.NoError(t, err)
	users, err := pool.NewGroup(pool.GroupOpts{
		Name:     "users",
		Primary:  "m",
		Replicas: []pool.ReplicaOpts{{Name: "r1"}},
		Metrics:  counters,
	})
	require.NoError(t, err)
	cluster, err := pool.NewCluster(orders, users)
	require.NoError(t, err)

	return httpapi.NewRouter(httpapi.Opts{Cluster: cluster, Metrics: counters}), cluster, counters
}

func do(r http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := do(r, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"ok":true}`, w.Body.String())
	require.NotEmpty(t, w.Header().Get(httpapi.RequestIDHeader))
}

func TestHealth(t *testing.T) {
	r, cluster, _ := newTestRouter(t)

	w := do(r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var groups []pool.GroupHealth
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &groups))
	require.Len(t, groups, 2)
	require.Equal(t, "orders", groups[0].Group)
	require.Equal(t, pool.StatusUp, groups[0].Status)
	require.Contains(t, groups[0].Replicas, "orders.r1")

	users, err := cluster.Group("users")
	require.NoError(t, err)
	require.NoError(t, users.MarkUnavailable("r1"))

	w = do(r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGroupHealth(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := do(r, http.MethodGet, "/health/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var g pool.GroupHealth
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &g))
	require.Equal(t, "orders", g.Group)
	require.Equal(t, "m", g.Primary)
	require.Len(t, g.Replicas, 2)
	require.Nil(t, g.Replicas["orders.r1"].LagMs)

	w = do(r, http.MethodGet, "/health/billing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "unknown group")
}

func TestGroupHealth_Msgpack(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := do(r, http.MethodGet, "/health/users", http.Header{"Accept": {httpapi.MIMEMsgpack}})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, httpapi.MIMEMsgpack, w.Header().Get("Content-Type"))

	var g pool.GroupHealth
	require.NoError(t, msgpack.Unmarshal(w.Body.Bytes(), &g))
	require.Equal(t, "users", g.Group)
	require.True(t, g.Replicas["users.r1"].Available)
}

func TestRoutingMetrics(t *testing.T) {
	r, cluster, _ := newTestRouter(t)

	orders, err := cluster.Group("orders")
	require.NoError(t, err)
	orders.ResolveTarget(nil, 0)
	orders.ResolveTarget(nil, 0)

	w := do(r, http.MethodGet, "/metrics/routing", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"orders":{"slave_routed":2}}`, w.Body.String())
}

func TestAdminOverrides(t *testing.T) {
	r, cluster, _ := newTestRouter(t)
	orders, err := cluster.Group("orders")
	require.NoError(t, err)

	w := do(r, http.MethodPost, "/groups/orders/replicas/r2/unavailable", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, orders.Replica("r2").Available())

	var g pool.GroupHealth
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &g))
	require.False(t, g.Replicas["orders.r2"].Available)
	require.Equal(t, pool.StatusDown, g.Status)

	w = do(r, http.MethodGet, "/health/orders", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(r, http.MethodPost, "/groups/orders/replicas/r2/available", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, orders.Replica("r2").Available())

	w = do(r, http.MethodPost, "/groups/orders/replicas/r9/available", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "unknown replica")

	w = do(r, http.MethodPost, "/groups/billing/replicas/r1/available", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, cluster, _ := newTestRouter(t)
	r := httpapi.NewRouter(httpapi.Opts{Cluster: cluster, DisableAdmin: true})

	w := do(r, http.MethodPost, "/groups/orders/replicas/r2/unavailable", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/metrics/routing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
