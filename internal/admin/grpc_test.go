package admin

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func TestHealth_Check(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := NewHealth()
	require.Error(t, h.Check(ctx))

	h.SetServing(true)
	require.NoError(t, h.Check(ctx))

	h.SetServing(false)
	require.Equal(t, codes.Unavailable, status.Code(h.Check(ctx)))
}

func TestGRPCServer_HealthOverWire(t *testing.T) {
	t.Parallel()

	h := NewHealth()
	srv := NewGRPCServer(h, zaptest.NewLogger(t), false)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := healthpb.NewHealthClient(conn)

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	h.SetServing(true)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "unknown"})
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestObserveUnary_RecoversPanic(t *testing.T) {
	t.Parallel()
	ic := observeUnary(zaptest.NewLogger(t))
	info := &grpc.UnaryServerInfo{FullMethod: "/lk.Admin/Panic"}

	_, err := ic(context.Background(), "req", info, func(context.Context, any) (any, error) {
		panic("oh no")
	})
	require.Equal(t, codes.Internal, status.Code(err))

	resp, err := ic(context.Background(), "req", info, func(context.Context, any) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, resp)
}
