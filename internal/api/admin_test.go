package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distributed-kvcache/internal/cluster"
	"distributed-kvcache/internal/store"
)

func newTestRouter(t *testing.T, topo *cluster.Topology) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.New()
	t.Cleanup(st.Stop)

	engine := NewEngine(NewHandler(st, topo, 1))
	return engine, st
}

func TestHealth(t *testing.T) {
	topo, err := cluster.NewTopology(cluster.DefaultShards, []cluster.Node{
		{ID: 1, Address: "a"}, {ID: 2, Address: "b"}, {ID: 3, Address: "c"},
	})
	require.NoError(t, err)

	engine, _ := newTestRouter(t, topo)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 3, body["shards"])
}

func TestStatsReportsCounters(t *testing.T) {
	engine, st := newTestRouter(t, nil)

	st.Put("a", "1", 0)
	st.Get("a")
	st.Get("missing")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Keys  int         `json:"keys"`
		Stats store.Stats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Keys)
	assert.Equal(t, uint64(1), body.Stats.Hits)
	assert.Equal(t, uint64(1), body.Stats.Misses)
}

func TestListNodesStandalone(t *testing.T) {
	engine, _ := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cluster/nodes", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Nodes []cluster.Node `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Nodes)
}
