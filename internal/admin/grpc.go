package admin

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServiceName is the name the health service reports readiness under.
const ServiceName = "labkeeper"

// Health is the gRPC health service. Both the overall status and ServiceName
// start NOT_SERVING until SetServing is called.
type Health struct {
	hs *health.Server
}

// NewHealth returns a Health in the NOT_SERVING state.
func NewHealth() *Health {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Health{hs: hs}
}

// SetServing flips the status; the server calls it after the collection is loaded
// and again with false on shutdown.
func (h *Health) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(ServiceName, st)
}

// Check reports an error unless the service is SERVING. It doubles as an HTTP readiness check.
func (h *Health) Check(ctx context.Context) error {
	resp, err := h.hs.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return status.Error(codes.Unavailable, resp.GetStatus().String())
	}
	return nil
}

// NewGRPCServer registers the health service (and reflection when dev is set)
// on a server that logs every call and recovers from handler panics.
func NewGRPCServer(h *Health, log *zap.Logger, dev bool) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(observeUnary(log)))
	healthpb.RegisterHealthServer(s, h.hs)
	if dev {
		reflection.Register(s)
	}
	return s
}

// observeUnary logs call metadata and turns panics into codes.Internal.
func observeUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}

			var remote string
			if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
				remote = p.Addr.String()
			}
			log.Debug("grpc",
				zap.String("method", info.FullMethod),
				zap.String("code", status.Code(err).String()),
				zap.Duration("dur", time.Since(start)),
				zap.String("peer", remote),
			)
		}()
		return next(ctx, req)
	}
}
