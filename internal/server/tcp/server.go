// Package tcpserver serves the line-delimited JSON protocol over TCP.
package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/labkeeper/internal/dispatch"
	"github.com/and161185/labkeeper/internal/metrics"
	"github.com/and161185/labkeeper/internal/protocol"
)

// ErrServerClosed is returned by Serve after Shutdown or context cancellation.
var ErrServerClosed = errors.New("tcpserver: server closed")

// Dispatcher answers one request frame with one response.
type Dispatcher interface {
	Dispatch(ctx context.Context, frame []byte) protocol.Response
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.log = l } }

// WithMaxFrame bounds a single inbound frame in bytes.
func WithMaxFrame(n int) Option { return func(s *Server) { s.maxFrame = n } }

// WithIdleTimeout closes connections that send nothing for d. Zero disables it.
func WithIdleTimeout(d time.Duration) Option { return func(s *Server) { s.idle = d } }

// Server accepts connections and runs one handler goroutine per connection.
type Server struct {
	disp     Dispatcher
	catalog  protocol.Catalog
	log      *zap.Logger
	maxFrame int
	idle     time.Duration

	mu      sync.Mutex
	lns     map[net.Listener]struct{}
	conns   map[net.Conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

// New constructs a Server. catalog is sent as the first frame of every connection.
func New(d Dispatcher, catalog protocol.Catalog, opts ...Option) *Server {
	s := &Server{
		disp:     d,
		catalog:  catalog,
		log:      zap.NewNop(),
		maxFrame: protocol.DefaultMaxFrame,
		lns:      make(map[net.Listener]struct{}),
		conns:    make(map[net.Conn]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Serve accepts connections on ln until ctx is done or Shutdown is called.
// It always returns a non-nil error; ErrServerClosed after a requested stop.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.trackListener(ln) {
		return ErrServerClosed
	}
	defer s.untrackListener(ln)

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.log.Info("listening", zap.String("addr", ln.Addr().String()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isClosing() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		if !s.trackConn(conn) {
			_ = conn.Close()
			return ErrServerClosed
		}
		go s.handle(ctx, conn)
	}
}

// Shutdown stops accepting, closes live connections and waits for their
// handlers to return or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for ln := range s.lns {
		_ = ln.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveConns returns the number of open connections.
func (s *Server) ActiveConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer s.untrackConn(conn)
	defer conn.Close()

	metrics.ConnOpened()
	defer metrics.ConnClosed()

	var id string
	if u, err := uuid.NewV4(); err == nil {
		id = u.String()
	}
	peer := conn.RemoteAddr().String()
	ctx = dispatch.WithConnID(dispatch.WithPeer(ctx, peer), id)
	log := s.log.With(zap.String("conn", id), zap.String("peer", peer))
	log.Info("connection opened")

	r := protocol.NewReader(conn, s.maxFrame)
	w := protocol.NewWriter(conn)

	if err := w.WriteJSON(s.catalog); err != nil {
		log.Warn("send catalog", zap.Error(err))
		return
	}

	for {
		if s.idle > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.idle))
		}
		frame, err := r.ReadFrame()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				log.Info("connection closed by peer")
			case errors.Is(err, protocol.ErrFrameTooLarge):
				_ = w.WriteJSON(protocol.Fail("Frame exceeds the size limit, closing connection"))
				log.Warn("frame too large", zap.Int("limit", s.maxFrame))
			default:
				log.Info("connection closed", zap.Error(err))
			}
			return
		}

		resp := s.disp.Dispatch(ctx, frame)
		if err := w.WriteJSON(resp); err != nil {
			log.Warn("write response", zap.Error(err))
			return
		}
	}
}

func (s *Server) trackListener(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.lns[ln] = struct{}{}
	return true
}

func (s *Server) untrackListener(ln net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lns, ln)
}

// trackConn registers conn and reserves its handler slot in the wait group.
func (s *Server) trackConn(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrackConn(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}
