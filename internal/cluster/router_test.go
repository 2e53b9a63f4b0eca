package cluster

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distributed-kvcache/internal/protocol"
)

// fakePeer is a minimal line server standing in for a remote node. It
// records every line it receives and answers with whatever reply returns.
type fakePeer struct {
	l     net.Listener
	reply func(line string) string

	mu    sync.Mutex
	lines []string
	conns int
}

func newFakePeer(t *testing.T, reply func(string) string) *fakePeer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	p := &fakePeer{l: l, reply: reply}
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			p.mu.Lock()
			p.conns++
			p.mu.Unlock()
			go func() {
				defer conn.Close()
				sc := bufio.NewScanner(conn)
				for sc.Scan() {
					line := sc.Text()
					p.mu.Lock()
					p.lines = append(p.lines, line)
					p.mu.Unlock()
					fmt.Fprintf(conn, "%s\n", p.reply(line))
				}
			}()
		}
	}()
	t.Cleanup(func() { l.Close() })
	return p
}

func (p *fakePeer) addr() string { return p.l.Addr().String() }

func (p *fakePeer) received() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...)
}

func (p *fakePeer) connCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns
}

// keyOwnedBy scans for a key whose shard has the wanted primary.
func keyOwnedBy(t *testing.T, topo *Topology, primary int) string {
	t.Helper()
	for i := 0; i < 10000; i++ {
		key := fmt.Sprintf("key-%d", i)
		if topo.Primary(key) == primary {
			return key
		}
	}
	t.Fatalf("no key found with primary %d", primary)
	return ""
}

func routerTopology(t *testing.T, addr2, addr3 string) *Topology {
	t.Helper()
	topo, err := NewTopology(DefaultShards, []Node{
		{ID: 1, Address: "127.0.0.1:1"}, // self, never dialed
		{ID: 2, Address: addr2},
		{ID: 3, Address: addr3},
	})
	require.NoError(t, err)
	return topo
}

func TestForwardToPrimaryRelaysVerbatim(t *testing.T) {
	peer := newFakePeer(t, func(string) string { return "OK red" })
	topo := routerTopology(t, peer.addr(), peer.addr())
	rt := NewRouter(1, topo, time.Second)
	defer rt.Close()

	key := keyOwnedBy(t, topo, 2)
	line, err := rt.ForwardToPrimary(protocol.Command{Op: protocol.CmdGet, Key: key})
	require.NoError(t, err)
	assert.Equal(t, "OK red", line)

	got := peer.received()
	require.Len(t, got, 1)
	assert.Equal(t, "GET "+key, got[0], "forwarded command keeps the client form")
}

func TestReplicateRewritesVerb(t *testing.T) {
	peer := newFakePeer(t, func(string) string { return "OK stored" })
	topo := routerTopology(t, peer.addr(), peer.addr())
	rt := NewRouter(1, topo, time.Second)
	defer rt.Close()

	key := keyOwnedBy(t, topo, 1) // shard 0: primary 1, replica 3
	err := rt.Replicate(protocol.Command{Op: protocol.CmdPut, Key: key, Value: "v", TTL: 9})
	require.NoError(t, err)

	got := peer.received()
	require.Len(t, got, 1)
	assert.Equal(t, "REPL_PUT "+key+" v 9", got[0])
}

func TestReplicateDeleteRewritesVerb(t *testing.T) {
	peer := newFakePeer(t, func(string) string { return "OK deleted" })
	topo := routerTopology(t, peer.addr(), peer.addr())
	rt := NewRouter(1, topo, time.Second)
	defer rt.Close()

	key := keyOwnedBy(t, topo, 1) // replica is node 3
	err := rt.Replicate(protocol.Command{Op: protocol.CmdDelete, Key: key})
	require.NoError(t, err)

	got := peer.received()
	require.Len(t, got, 1)
	assert.Equal(t, "REPL_DELETE "+key, got[0])
}

func TestReplicateRejectedByPeer(t *testing.T) {
	peer := newFakePeer(t, func(string) string { return "ERROR not a replica for this key" })
	topo := routerTopology(t, peer.addr(), peer.addr())
	rt := NewRouter(1, topo, time.Second)
	defer rt.Close()

	key := keyOwnedBy(t, topo, 1)
	err := rt.Replicate(protocol.Command{Op: protocol.CmdPut, Key: key, Value: "v"})
	assert.Error(t, err)
}

func TestReplicateNeverForwardsReplCommands(t *testing.T) {
	topo := routerTopology(t, "127.0.0.1:1", "127.0.0.1:1")
	rt := NewRouter(1, topo, 100*time.Millisecond)
	defer rt.Close()

	err := rt.Replicate(protocol.Command{Op: protocol.CmdReplPut, Key: "k", Value: "v"})
	assert.Error(t, err, "REPL_* input must never produce outbound traffic")
}

func TestPeerConnectionReusedAndReopened(t *testing.T) {
	peer := newFakePeer(t, func(string) string { return "OK v" })
	topo := routerTopology(t, peer.addr(), peer.addr())
	rt := NewRouter(1, topo, time.Second)
	defer rt.Close()

	key := keyOwnedBy(t, topo, 2)
	cmd := protocol.Command{Op: protocol.CmdGet, Key: key}

	for i := 0; i < 5; i++ {
		_, err := rt.ForwardToPrimary(cmd)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, peer.connCount(), "one persistent connection per peer")

	// Tear down the router's peer connections and confirm the next call
	// re-dials transparently.
	rt.Close()
	_, err := rt.ForwardToPrimary(cmd)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return peer.connCount() == 2 },
		time.Second, 10*time.Millisecond)
}

func TestForwardFailureSurfacesError(t *testing.T) {
	// Nobody listens on this address.
	topo := routerTopology(t, "127.0.0.1:1", "127.0.0.1:1")
	rt := NewRouter(1, topo, 100*time.Millisecond)
	defer rt.Close()

	key := keyOwnedBy(t, topo, 2)
	_, err := rt.ForwardToPrimary(protocol.Command{Op: protocol.CmdGet, Key: key})
	assert.Error(t, err)
}
