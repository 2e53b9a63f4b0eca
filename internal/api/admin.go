// Package api wires up the Gin router for the admin surface.
//
// The admin listener is read-only and optional: health for probes, store
// counters for monitoring, and the topology listing for operators. The data
// path stays on the wire protocol; peers never touch these endpoints.
package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"distributed-kvcache/internal/cluster"
	"distributed-kvcache/internal/store"
)

// Handler holds the dependencies injected from main.
type Handler struct {
	store  *store.Store
	topo   *cluster.Topology // nil in standalone mode
	nodeID int
}

// NewHandler creates a Handler.
func NewHandler(s *store.Store, topo *cluster.Topology, nodeID int) *Handler {
	return &Handler{store: s, topo: topo, nodeID: nodeID}
}

// NewEngine builds the admin router: every route group goes through the
// access log and the panic guard, so a broken admin request costs a 500
// response and its log lines, never the node.
func NewEngine(h *Handler) *gin.Engine {
	engine := gin.New()
	engine.Use(h.accessLog, h.recover)
	h.Register(engine)
	return engine
}

// Register mounts all admin routes on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)
	r.GET("/cluster/nodes", h.ListNodes)
}

// accessLog is the per-request log line for the admin surface, tagged with
// the node ID so that logs from co-located cluster nodes stay attributable.
func (h *Handler) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	log.Printf("node %d: admin %s %s -> %d (%s)",
		h.nodeID, c.Request.Method, c.Request.URL.Path,
		c.Writer.Status(), time.Since(start))
}

// recover converts a handler panic into a 500. The cache itself must keep
// serving no matter what an admin request does.
func (h *Handler) recover(c *gin.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("node %d: admin panic on %s: %v", h.nodeID, c.Request.URL.Path, r)
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				gin.H{"error": "internal server error"})
		}
	}()
	c.Next()
}

// Health handles GET /health — useful for load balancers and readiness
// probes.
func (h *Handler) Health(c *gin.Context) {
	shards := 0
	if h.topo != nil {
		shards = h.topo.ShardCount()
	}
	c.JSON(http.StatusOK, gin.H{
		"node":   h.nodeID,
		"status": "ok",
		"shards": shards,
	})
}

// Stats handles GET /stats and reports the store counters and current size.
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"keys":  h.store.Len(),
		"stats": h.store.Stats(),
	})
}

// ListNodes handles GET /cluster/nodes.
func (h *Handler) ListNodes(c *gin.Context) {
	if h.topo == nil {
		c.JSON(http.StatusOK, gin.H{"nodes": []cluster.Node{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": h.topo.Nodes()})
}
