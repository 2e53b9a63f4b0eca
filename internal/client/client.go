// Package client provides a Go SDK for talking to a cache node.
//
// Instead of hand-writing protocol lines everywhere, callers get a clean Go
// API:
//
//	c, _ := client.Dial("localhost:7001", 0)
//	defer c.Close()
//	c.Put(ctx, "greeting", "hello", 60)
//	v, err := c.Get(ctx, "greeting")
//
// The client talks to a single node over one persistent TCP connection. That
// node handles all distributed logic — forwarding to shard primaries and
// replicating — so the SDK never needs to know the topology.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"distributed-kvcache/internal/protocol"
)

// ErrNotFound is returned when a key does not exist in the cache.
var ErrNotFound = errors.New("key not found")

// ServerError carries an ERROR message sent by the server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s", e.Message)
}

// Client is a connection to one cache node. It is safe for concurrent use;
// a mutex serializes requests onto the single connection, matching the
// protocol's one-request-in-flight discipline.
type Client struct {
	addr    string
	timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to a node. timeout bounds the dial and every subsequent
// round-trip; 0 selects 10 seconds. Never call the network without a
// timeout.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{
		addr:    addr,
		timeout: timeout,
		conn:    conn,
		r:       bufio.NewReader(conn),
	}, nil
}

// Put stores key=value with a TTL in seconds; ttl 0 means no expiration.
func (c *Client) Put(ctx context.Context, key, value string, ttl int) error {
	resp, err := c.roundTrip(ctx, protocol.Command{
		Op: protocol.CmdPut, Key: key, Value: value, TTL: ttl,
	})
	if err != nil {
		return err
	}
	if !resp.OK {
		return &ServerError{Message: resp.Message}
	}
	return nil
}

// Get retrieves the value for key. A missing or expired key yields
// ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	resp, err := c.roundTrip(ctx, protocol.Command{Op: protocol.CmdGet, Key: key})
	if err != nil {
		return "", err
	}
	if !resp.OK {
		return "", asError(resp)
	}
	return resp.Payload, nil
}

// Delete removes key. A missing key yields ErrNotFound.
func (c *Client) Delete(ctx context.Context, key string) error {
	resp, err := c.roundTrip(ctx, protocol.Command{Op: protocol.CmdDelete, Key: key})
	if err != nil {
		return err
	}
	if !resp.OK {
		return asError(resp)
	}
	return nil
}

// Exists reports whether key holds a live entry.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	resp, err := c.roundTrip(ctx, protocol.Command{Op: protocol.CmdExists, Key: key})
	if err != nil {
		return false, err
	}
	if !resp.OK {
		return false, &ServerError{Message: resp.Message}
	}
	return resp.Payload == "1", nil
}

// Close sends QUIT best-effort and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.SetDeadline(time.Now().Add(time.Second))
	fmt.Fprintf(c.conn, "%s\n", protocol.CmdQuit)
	err := c.conn.Close()
	c.conn = nil
	c.r = nil
	return err
}

// roundTrip writes one command line and reads one response line. The
// effective deadline is the sooner of the context deadline and the client
// timeout.
func (c *Client) roundTrip(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return protocol.Response{}, errors.New("client is closed")
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetDeadline(deadline)

	if _, err := c.conn.Write([]byte(protocol.FormatCommand(cmd) + "\n")); err != nil {
		return protocol.Response{}, fmt.Errorf("%s request failed: %w", cmd.Op, err)
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return protocol.Response{}, fmt.Errorf("%s response failed: %w", cmd.Op, err)
	}
	return protocol.ParseResponse(strings.TrimRight(line, "\r\n"))
}

// asError converts an ERROR response into a Go error, mapping the server's
// missing-key message onto ErrNotFound.
func asError(resp protocol.Response) error {
	if resp.Message == "key not found" {
		return ErrNotFound
	}
	return &ServerError{Message: resp.Message}
}
