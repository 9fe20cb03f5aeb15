// Command lk-server starts the labkeeper collection server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/labkeeper/internal/admin"
	"github.com/and161185/labkeeper/internal/command"
	"github.com/and161185/labkeeper/internal/config"
	"github.com/and161185/labkeeper/internal/dispatch"
	"github.com/and161185/labkeeper/internal/limiter"
	"github.com/and161185/labkeeper/internal/logging"
	"github.com/and161185/labkeeper/internal/metrics"
	"github.com/and161185/labkeeper/internal/migrate"
	"github.com/and161185/labkeeper/internal/repository"
	"github.com/and161185/labkeeper/internal/repository/memory"
	"github.com/and161185/labkeeper/internal/repository/postgres"
	tcpserver "github.com/and161185/labkeeper/internal/server/tcp"
	"github.com/and161185/labkeeper/internal/service"
	"github.com/and161185/labkeeper/internal/session"
	"github.com/and161185/labkeeper/internal/store"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const revocationCacheSize = 10000

type backend struct {
	users    repository.UserRepository
	labworks repository.LabWorkRepository
	lim      limiter.Limiter
	checks   map[string]admin.Check
	close    func()
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.Addr),
		zap.Bool("postgres", cfg.Database.DSN != ""),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}
	defer be.close()

	opts := []session.Option{session.WithTTL(cfg.Auth.TokenTTL), session.WithLeeway(cfg.Auth.TokenLeeway)}
	if cfg.Auth.RevokeOnLogout {
		opts = append(opts, session.WithRevocation(revocationCacheSize))
	}
	tokens, err := session.New([]byte(cfg.Auth.JWTKey), opts...)
	if err != nil {
		logger.Fatal("session authority", zap.Error(err))
	}
	logger.Info("sessions",
		zap.Duration("ttl", tokens.TTL()),
		zap.Bool("revokeOnLogout", tokens.RevocationEnabled()),
	)

	// the collection is fully loaded before the listener opens
	st := store.New(be.labworks, store.WithSizeObserver(metrics.SetLabWorks))
	if err := st.Load(ctx); err != nil {
		logger.Fatal("load collection", zap.Error(err))
	}
	logger.Info("collection loaded", zap.Int("size", st.Len()))

	authSvc := service.NewAuthService(be.users, tokens, be.lim)
	labSvc := service.NewLabWorkService(st)

	reg, err := command.NewBuiltin(authSvc, labSvc)
	if err != nil {
		logger.Fatal("command registry", zap.Error(err))
	}
	d := dispatch.New(reg, tokens, logger)

	srv := tcpserver.New(d, reg.Catalog(),
		tcpserver.WithLogger(logger),
		tcpserver.WithMaxFrame(cfg.Server.MaxFrameBytes),
		tcpserver.WithIdleTimeout(cfg.Server.IdleTimeout),
	)

	health := admin.NewHealth()
	health.SetServing(true)
	be.checks["collection"] = health.Check

	// Admin endpoints
	var httpSrv *http.Server
	if cfg.Admin.MetricsAddr != "" {
		httpSrv = admin.NewHTTPServer(cfg.Admin.MetricsAddr, admin.NewRouter(be.checks))
		go func() {
			logger.Info("admin http listening", zap.String("addr", cfg.Admin.MetricsAddr))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin http", zap.Error(err))
			}
		}()
	}
	grpcSrv := admin.NewGRPCServer(health, logger, cfg.Admin.Dev)
	if cfg.Admin.HealthAddr != "" {
		hl, err := net.Listen("tcp", cfg.Admin.HealthAddr)
		if err != nil {
			logger.Fatal("listen health", zap.Error(err))
		}
		go func() {
			logger.Info("grpc health listening", zap.String("addr", cfg.Admin.HealthAddr))
			if err := grpcSrv.Serve(hl); err != nil {
				logger.Error("grpc health", zap.Error(err))
			}
		}()
	}

	// Listen
	lis, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, lis) }()

	// Wait for stop
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, tcpserver.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}

	health.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("connections still open at shutdown", zap.Error(err))
	}
	if httpSrv != nil {
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	grpcSrv.GracefulStop()

	logger.Info("shutdown complete")
}

// openBackend picks PostgreSQL when a DSN is configured and the in-memory
// repositories otherwise.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	policy := limiter.Policy{
		Window:   cfg.Auth.LoginWindow,
		MaxFails: cfg.Auth.LoginMaxFails,
		BlockFor: cfg.Auth.LoginBlockFor,
	}

	if cfg.Database.DSN == "" {
		return &backend{
			users:    memory.NewUsers(),
			labworks: memory.NewLabWorks(),
			lim:      limiter.NewMemory(10000, policy),
			checks:   map[string]admin.Check{},
			close:    func() {},
		}, nil
	}

	if err := migrate.Up(ctx, cfg.Database.DSN); err != nil {
		return nil, fmt.Errorf("migrate up: %w", err)
	}
	db, err := postgres.New(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	return &backend{
		users:    postgres.NewUserRepo(db),
		labworks: postgres.NewLabWorkRepo(db),
		lim:      limiter.NewPG(db.Pool, policy),
		checks:   map[string]admin.Check{"postgres": db.Ping},
		close:    db.Close,
	}, nil
}
