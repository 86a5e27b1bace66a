// Package httpapi exposes the health and routing counters of a cluster over
// HTTP, plus admin overrides of replica availability.
package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ice-blockchain/go-rwsplit"
	"github.com/ice-blockchain/go-rwsplit/pool"
)

const MIMEMsgpack = "application/msgpack"

// Snapshotter is implemented by pool.Counters.
type Snapshotter interface {
	Snapshot() map[string]map[string]uint64
}

type Opts struct {
	Cluster *pool.Cluster
	// Metrics backs /metrics/routing. The route is not registered when nil.
	Metrics Snapshotter
	Logger  rwsplit.Logger
	// DisableAdmin removes the availability override routes.
	DisableAdmin bool
}

type errorResponse struct {
	Error string `json:"error" msgpack:"error"`
}

// NewRouter builds the gin engine.
func NewRouter(opts Opts) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = rwsplit.NopLogger{}
	}
	h := &handlers{cluster: opts.Cluster, metrics: opts.Metrics}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ScopeMiddleware(opts.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/health", h.health)
	r.GET("/health/:group", h.groupHealth)
	if opts.Metrics != nil {
		r.GET("/metrics/routing", h.routingMetrics)
	}

	if !opts.DisableAdmin {
		admin := r.Group("/groups/:group/replicas/:replica")
		admin.POST("/available", h.markAvailable)
		admin.POST("/unavailable", h.markUnavailable)
	}
	return r
}

type handlers struct {
	cluster *pool.Cluster
	metrics Snapshotter
}

// health answers 503 as soon as one group is DOWN.
func (h *handlers) health(c *gin.Context) {
	groups := h.cluster.Health()
	code := http.StatusOK
	for _, g := range groups {
		if g.Status != pool.StatusUp {
			code = http.StatusServiceUnavailable
		}
	}
	render(c, code, groups)
}

func (h *handlers) groupHealth(c *gin.Context) {
	g, err := h.cluster.GroupHealth(c.Param("group"))
	if err != nil {
		renderError(c, err)
		return
	}
	code := http.StatusOK
	if g.Status != pool.StatusUp {
		code = http.StatusServiceUnavailable
	}
	render(c, code, g)
}

func (h *handlers) routingMetrics(c *gin.Context) {
	render(c, http.StatusOK, h.metrics.Snapshot())
}

func (h *handlers) markAvailable(c *gin.Context) {
	h.override(c, (*pool.Group).MarkAvailable)
}

func (h *handlers) markUnavailable(c *gin.Context) {
	h.override(c, (*pool.Group).MarkUnavailable)
}

func (h *handlers) override(c *gin.Context, mark func(*pool.Group, string) error) {
	g, err := h.cluster.Group(c.Param("group"))
	if err != nil {
		renderError(c, err)
		return
	}
	if err := mark(g, c.Param("replica")); err != nil {
		renderError(c, err)
		return
	}
	render(c, http.StatusOK, g.Health())
}

func renderError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, rwsplit.ErrUnknownGroup) || errors.Is(err, rwsplit.ErrUnknownReplica) {
		code = http.StatusNotFound
	}
	render(c, code, errorResponse{Error: err.Error()})
}

// render writes obj as msgpack when the client asks for it, JSON otherwise.
func render(c *gin.Context, code int, obj interface{}) {
	if !strings.Contains(c.GetHeader("Accept"), MIMEMsgpack) {
		c.JSON(code, obj)
		return
	}
	b, err := msgpack.Marshal(obj)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	c.Data(code, MIMEMsgpack, b)
}
