// Package cluster holds the static cluster topology and the outbound router
// used for forwarding and replication.
//
// Membership is fixed at startup: a shard table mapping each shard to a
// (primary, replica) pair of node IDs, and an address per node. There is no
// discovery, no gossip and no failover; in production you would put a
// membership protocol underneath, but a static table is the contract here.
package cluster

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// Node is one cluster member.
type Node struct {
	ID      int    `json:"id"`
	Address string `json:"address"` // host:port
}

// Shard assigns one keyspace partition to a primary and a replica node.
type Shard struct {
	Primary int `json:"primary"`
	Replica int `json:"replica"`
}

// DefaultShards is the reference three-node layout: every node is primary of
// one shard and replica of another.
var DefaultShards = []Shard{
	{Primary: 1, Replica: 3},
	{Primary: 2, Replica: 1},
	{Primary: 3, Replica: 2},
}

// Topology is the immutable shard and node table. All lookups are pure and
// lock-free; nothing mutates a Topology after NewTopology returns.
type Topology struct {
	shards []Shard
	nodes  map[int]Node
}

// NewTopology validates and builds a topology. Every shard must name two
// distinct, known nodes.
func NewTopology(shards []Shard, nodes []Node) (*Topology, error) {
	if len(shards) == 0 {
		return nil, fmt.Errorf("topology has no shards")
	}
	byID := make(map[int]Node, len(nodes))
	for _, n := range nodes {
		if n.ID <= 0 {
			return nil, fmt.Errorf("invalid node id %d", n.ID)
		}
		if n.Address == "" {
			return nil, fmt.Errorf("node %d has no address", n.ID)
		}
		if _, dup := byID[n.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %d", n.ID)
		}
		byID[n.ID] = n
	}
	for i, sh := range shards {
		if sh.Primary == sh.Replica {
			return nil, fmt.Errorf("shard %d: primary and replica are both node %d", i, sh.Primary)
		}
		if _, ok := byID[sh.Primary]; !ok {
			return nil, fmt.Errorf("shard %d: unknown primary node %d", i, sh.Primary)
		}
		if _, ok := byID[sh.Replica]; !ok {
			return nil, fmt.Errorf("shard %d: unknown replica node %d", i, sh.Replica)
		}
	}
	return &Topology{shards: shards, nodes: byID}, nil
}

// ShardCount returns the number of shards.
func (t *Topology) ShardCount() int {
	return len(t.shards)
}

// Shard maps a key to its shard index: hash(key) mod S.
func (t *Topology) Shard(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(t.shards)))
}

// Primary returns the node ID owning the key's shard.
func (t *Topology) Primary(key string) int {
	return t.shards[t.Shard(key)].Primary
}

// Replica returns the node ID mirroring the key's shard.
func (t *Topology) Replica(key string) int {
	return t.shards[t.Shard(key)].Replica
}

// IsPrimary reports whether nodeID owns the key's shard.
func (t *Topology) IsPrimary(key string, nodeID int) bool {
	return t.Primary(key) == nodeID
}

// IsReplica reports whether nodeID mirrors the key's shard.
func (t *Topology) IsReplica(key string, nodeID int) bool {
	return t.Replica(key) == nodeID
}

// HasNode reports whether nodeID is part of the topology.
func (t *Topology) HasNode(nodeID int) bool {
	_, ok := t.nodes[nodeID]
	return ok
}

// Addr returns the address of a node.
func (t *Topology) Addr(nodeID int) (string, error) {
	n, ok := t.nodes[nodeID]
	if !ok {
		return "", fmt.Errorf("unknown node %d", nodeID)
	}
	return n.Address, nil
}

// Nodes returns all members ordered by ID.
func (t *Topology) Nodes() []Node {
	out := make([]Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
