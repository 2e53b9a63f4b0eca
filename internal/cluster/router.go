package cluster

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"distributed-kvcache/internal/protocol"
)

// DefaultPeerTimeout bounds dials and round-trips to a peer.
const DefaultPeerTimeout = 3 * time.Second

// Router owns the outbound side of cluster communication: one lazily dialed,
// persistent TCP connection per peer, reused across requests.
//
// Each peer entry carries its own mutex, held for a full round-trip. That
// enforces exactly one request in flight per peer connection — which is not
// just simplicity but a correctness property: replication to a shard's
// replica must apply in the order the primary issued it, and a single
// serialized connection gives that order for free.
//
// Any I/O error closes and drops the peer connection; the next call re-dials
// transparently.
type Router struct {
	self    int
	topo    *Topology
	timeout time.Duration

	mu    sync.Mutex
	peers map[int]*peer
}

// peer is one outbound connection slot.
type peer struct {
	addr string

	mu   sync.Mutex // held for a full request/response round-trip
	conn net.Conn
	r    *bufio.Reader
}

// NewRouter creates a router for node self. timeout <= 0 selects
// DefaultPeerTimeout.
func NewRouter(self int, topo *Topology, timeout time.Duration) *Router {
	if timeout <= 0 {
		timeout = DefaultPeerTimeout
	}
	return &Router{
		self:    self,
		topo:    topo,
		timeout: timeout,
		peers:   make(map[int]*peer),
	}
}

// ForwardToPrimary relays a client command, unchanged, to the primary of the
// key's shard and returns the primary's response line verbatim.
func (rt *Router) ForwardToPrimary(cmd protocol.Command) (string, error) {
	target := rt.topo.Primary(cmd.Key)
	if target == rt.self {
		return "", fmt.Errorf("node %d is the primary for key %q, nothing to forward", rt.self, cmd.Key)
	}
	return rt.roundTrip(target, protocol.FormatCommand(cmd))
}

// Replicate sends the applied write to the replica of the key's shard,
// tagged as internal traffic, and awaits the acknowledgement. The REPL_*
// tagging is what breaks forwarding loops: a receiving node applies the
// command locally and never routes it onward.
func (rt *Router) Replicate(cmd protocol.Command) error {
	repl := cmd
	switch cmd.Op {
	case protocol.CmdPut:
		repl.Op = protocol.CmdReplPut
	case protocol.CmdDelete:
		repl.Op = protocol.CmdReplDelete
	default:
		return fmt.Errorf("cannot replicate %s", cmd.Op)
	}

	target := rt.topo.Replica(cmd.Key)
	if target == rt.self {
		return fmt.Errorf("node %d is the replica for key %q", rt.self, cmd.Key)
	}

	line, err := rt.roundTrip(target, protocol.FormatCommand(repl))
	if err != nil {
		return err
	}
	resp, err := protocol.ParseResponse(line)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("replica node %d rejected %s: %s", target, repl.Op, resp.Message)
	}
	return nil
}

// roundTrip sends one line to a peer and reads one response line. The peer
// mutex serializes concurrent callers onto the single connection.
func (rt *Router) roundTrip(nodeID int, line string) (string, error) {
	p, err := rt.peer(nodeID)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		conn, err := net.DialTimeout("tcp", p.addr, rt.timeout)
		if err != nil {
			return "", fmt.Errorf("dial node %d (%s): %w", nodeID, p.addr, err)
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}
		p.conn = conn
		p.r = bufio.NewReader(conn)
	}

	deadline := time.Now().Add(rt.timeout)
	p.conn.SetDeadline(deadline)

	if _, err := p.conn.Write([]byte(line + "\n")); err != nil {
		p.drop()
		return "", fmt.Errorf("write to node %d: %w", nodeID, err)
	}
	resp, err := p.r.ReadString('\n')
	if err != nil {
		p.drop()
		return "", fmt.Errorf("read from node %d: %w", nodeID, err)
	}
	return strings.TrimRight(resp, "\r\n"), nil
}

// peer returns the connection slot for a node, creating it on first use.
// The local node never gets a slot.
func (rt *Router) peer(nodeID int) (*peer, error) {
	if nodeID == rt.self {
		return nil, fmt.Errorf("node %d cannot peer with itself", nodeID)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if p, ok := rt.peers[nodeID]; ok {
		return p, nil
	}
	addr, err := rt.topo.Addr(nodeID)
	if err != nil {
		return nil, err
	}
	p := &peer{addr: addr}
	rt.peers[nodeID] = p
	return p, nil
}

// drop closes and forgets the peer connection. Caller must hold the peer
// mutex.
func (p *peer) drop() {
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
		p.r = nil
	}
}

// Close tears down all peer connections.
func (rt *Router) Close() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, p := range rt.peers {
		p.mu.Lock()
		p.drop()
		p.mu.Unlock()
	}
}
