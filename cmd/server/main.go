// cmd/server is the main entrypoint for a cache node.
//
// Configuration is via flags with environment fallback so a single binary
// can serve any role in the cluster.
//
// Example — standalone:
//
//	./server --port 7001
//
// Example — 3-node cluster on one machine:
//
//	./server --id 1 --port 7001 --nodes 1=localhost:7001,2=localhost:7002,3=localhost:7003
//	./server --id 2 --port 7002 --nodes 1=localhost:7001,2=localhost:7002,3=localhost:7003
//	./server --id 3 --port 7003 --nodes 1=localhost:7001,2=localhost:7002,3=localhost:7003
//
// NODE_ID, PORT, MAX_KEYS, NODES and ADMIN_ADDR are honored as environment
// defaults for the matching flags. NODE_ID 0 (or unset) selects standalone
// mode: no router, no routing checks, every command served locally.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"distributed-kvcache/internal/api"
	"distributed-kvcache/internal/cluster"
	"distributed-kvcache/internal/server"
	"distributed-kvcache/internal/store"
)

// defaultNodes is the built-in topology table for the reference three-node
// deployment. The logical hostnames resolve inside the container network;
// override with --nodes for local runs.
var defaultNodes = []cluster.Node{
	{ID: 1, Address: "kv-node-1:7000"},
	{ID: 2, Address: "kv-node-2:7000"},
	{ID: 3, Address: "kv-node-3:7000"},
}

func main() {
	// ── Flags ──────────────────────────────────────────────────────────────
	nodeID := flag.Int("id", envInt("NODE_ID", 0), "Node ID (1..N for cluster mode, 0 for standalone)")
	port := flag.Int("port", envInt("PORT", 7000), "Listening TCP port")
	maxKeys := flag.Int("max-keys", envInt("MAX_KEYS", store.DefaultMaxKeys), "Cache capacity")
	nodesFlag := flag.String("nodes", os.Getenv("NODES"), "Topology override: comma-separated id=host:port")
	adminAddr := flag.String("admin-addr", os.Getenv("ADMIN_ADDR"), "Admin HTTP listen address (empty disables)")
	sweepInterval := flag.Duration("sweep-interval", time.Second, "Background expiration sweep period (0 disables)")
	peerTimeout := flag.Duration("peer-timeout", cluster.DefaultPeerTimeout, "Timeout for forwards and replication")
	flag.Parse()

	// ── Store ──────────────────────────────────────────────────────────────
	st := store.New(
		store.WithMaxKeys(*maxKeys),
		store.WithSweepInterval(*sweepInterval),
	)
	defer st.Stop()

	// ── Topology and router ────────────────────────────────────────────────
	var (
		topo   *cluster.Topology
		router *cluster.Router
	)
	if *nodeID > 0 {
		nodes := defaultNodes
		if *nodesFlag != "" {
			var err error
			if nodes, err = parseNodes(*nodesFlag); err != nil {
				log.Fatalf("FATAL: invalid --nodes: %v", err)
			}
		}
		var err error
		if topo, err = cluster.NewTopology(cluster.DefaultShards, nodes); err != nil {
			log.Fatalf("FATAL: invalid topology: %v", err)
		}
		if !topo.HasNode(*nodeID) {
			log.Fatalf("FATAL: node %d is not in the topology", *nodeID)
		}
		router = cluster.NewRouter(*nodeID, topo, *peerTimeout)
		defer router.Close()
	}

	srv := server.New(fmt.Sprintf(":%d", *port), *nodeID, st, topo, router, server.DefaultConfig())

	// ── Lifecycle ──────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		mode := "standalone"
		if *nodeID > 0 {
			mode = fmt.Sprintf("cluster node %d", *nodeID)
		}
		log.Printf("%s listening on :%d (max-keys=%d)", mode, *port, *maxKeys)
		return srv.ListenAndServe()
	})

	var admin *http.Server
	if *adminAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		admin = &http.Server{
			Addr:         *adminAddr,
			Handler:      api.NewEngine(api.NewHandler(st, topo, *nodeID)),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Printf("admin listening on %s", *adminAddr)
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Printf("shutting down")
		srv.Shutdown()
		if admin != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			admin.Shutdown(shutdownCtx)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	log.Printf("shutdown complete")
}

// parseNodes parses "1=host:port,2=host:port,..." into a node list.
func parseNodes(s string) ([]cluster.Node, error) {
	var nodes []cluster.Node
	for _, entry := range strings.Split(s, ",") {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("entry %q: expected id=host:port", entry)
		}
		id, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("entry %q: bad node id: %w", entry, err)
		}
		nodes = append(nodes, cluster.Node{ID: id, Address: parts[1]})
	}
	return nodes, nil
}

// envInt reads an integer environment variable with a fallback.
func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("FATAL: %s=%q is not an integer", name, v)
	}
	return n
}
