// Package client speaks the labkeeper protocol from the client side.
package client

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/and161185/labkeeper/internal/protocol"
)

// Client is a single protocol connection. Calls are serialized.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	r       *protocol.Reader
	w       *protocol.Writer
	catalog protocol.Catalog
}

// Dial connects to addr and reads the command catalog.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c, err := New(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// New wraps an established connection and reads the catalog frame from it.
func New(ctx context.Context, conn net.Conn) (*Client, error) {
	c := &Client{
		conn: conn,
		r:    protocol.NewReader(conn, 0),
		w:    protocol.NewWriter(conn),
	}
	stop := c.bind(ctx)
	defer stop()
	if err := c.r.ReadJSON(&c.catalog); err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return c, nil
}

// Catalog returns the command table announced by the server.
func (c *Client) Catalog() protocol.Catalog { return c.catalog }

// Do sends req and waits for its response.
func (c *Client) Do(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stop := c.bind(ctx)
	defer stop()

	var resp protocol.Response
	if err := c.w.WriteJSON(req); err != nil {
		return resp, fmt.Errorf("send %s: %w", req.CommandName, err)
	}
	if err := c.r.ReadJSON(&resp); err != nil {
		return resp, fmt.Errorf("receive %s: %w", req.CommandName, err)
	}
	return resp, nil
}

// Call is Do with the request assembled from its parts. An empty token is omitted.
func (c *Client) Call(ctx context.Context, name, token string, args ...protocol.Argument) (protocol.Response, error) {
	req := protocol.Request{CommandName: name, Arguments: args}
	if args == nil {
		req.Arguments = []protocol.Argument{}
	}
	if token != "" {
		req.Token = &token
	}
	return c.Do(ctx, req)
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

// TokenFromLogin extracts the session token from a successful login message.
func TokenFromLogin(msg string) (string, bool) {
	tok, ok := strings.CutPrefix(msg, protocol.LoginSuccessPrefix)
	if !ok || strings.TrimSpace(tok) == "" {
		return "", false
	}
	return strings.TrimSpace(tok), true
}

// bind applies the ctx deadline to the connection and interrupts blocked I/O on cancel.
func (c *Client) bind(ctx context.Context) func() {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(dl)
	}
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Unix(1, 0))
		close(interrupted)
	})
	return func() {
		// a callback already running must finish before the deadline is cleared
		if !stop() {
			<-interrupted
		}
		_ = c.conn.SetDeadline(time.Time{})
	}
}
