package dispatch

import (
	"context"
	"net"
)

type ctxKey string

const (
	peerKey   ctxKey = "lk.peer"
	connIDKey ctxKey = "lk.connID"
)

// WithPeer stores the remote address of the connection in context.
func WithPeer(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, peerKey, addr)
}

// PeerFromCtx fetches the remote address from context.
func PeerFromCtx(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(peerKey).(string)
	return v, ok
}

// WithConnID tags the context with a connection identifier for logging.
func WithConnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connIDKey, id)
}

// ConnIDFromCtx fetches the connection identifier from context.
func ConnIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(connIDKey).(string)
	return v
}

// peerHost strips the port from a remote address; the limiter keys on hosts.
func peerHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
