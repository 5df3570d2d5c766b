package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/guard-e/hostel/internal/auth"
	"github.com/guard-e/hostel/internal/config"
	"github.com/guard-e/hostel/internal/db"
	"github.com/guard-e/hostel/internal/health"
	"github.com/guard-e/hostel/internal/hostel/access"
	"github.com/guard-e/hostel/internal/hostel/audit"
	auditmem "github.com/guard-e/hostel/internal/hostel/audit/memory"
	auditsqlite "github.com/guard-e/hostel/internal/hostel/audit/sqlite"
	"github.com/guard-e/hostel/internal/hostel/engine"
	"github.com/guard-e/hostel/internal/hostel/gateway"
	"github.com/guard-e/hostel/internal/hostel/gateway/memory"
	"github.com/guard-e/hostel/internal/hostel/gateway/postgres"
	gwsqlite "github.com/guard-e/hostel/internal/hostel/gateway/sqlite"
	"github.com/guard-e/hostel/internal/httpapi"
	"github.com/guard-e/hostel/internal/metrics"
)

func main() {
	envFile := flag.String("env-file", ".env", "optional file with HOSTEL_* variables")
	flag.Parse()

	if err := run(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "hostel-server: %v\n", err)
		os.Exit(1)
	}
}

// stores bundles the card store with the audit log backed by the same
// database where there is one.
type stores struct {
	cards gateway.Store
	audit audit.Store
	close func()
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using the in-memory card store; nothing survives a restart")
		s := memory.New()
		if cfg.DevAdminPassword != "" {
			hash, err := auth.HashPassword(cfg.DevAdminPassword)
			if err != nil {
				return nil, fmt.Errorf("dev admin password: %w", err)
			}
			s.AddUser("admin", access.FlagAdmin, 0, hash)
		}
		return &stores{cards: s, audit: auditmem.New(), close: func() {}}, nil

	case "sqlite":
		sqlDB, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
		if err != nil {
			return nil, err
		}
		if err := seedDevAdmin(ctx, sqlDB, cfg); err != nil {
			sqlDB.Close()
			return nil, err
		}
		writer := db.NewWorker(sqlDB)
		cards := gwsqlite.New(sqlDB, writer)
		logger.Info("sqlite card store opened", slog.String("path", cfg.DBPath))
		return &stores{
			cards: cards,
			audit: auditsqlite.New(sqlDB, writer),
			close: func() {
				_ = cards.Close()
				_ = sqlDB.Close()
			},
		}, nil

	case "postgres":
		if err := db.MigratePostgres(cfg.PostgresDSN, logger); err != nil {
			return nil, err
		}
		pool, err := db.Connect(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		cards := postgres.New(pool)
		// The legacy database is not ours to extend, so audit stays in process.
		return &stores{cards: cards, audit: auditmem.New(), close: func() { _ = cards.Close() }}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func seedDevAdmin(ctx context.Context, sqlDB *sql.DB, cfg config.Config) error {
	if cfg.Env != "dev" || cfg.DevAdminPassword == "" {
		return nil
	}
	hash, err := auth.HashPassword(cfg.DevAdminPassword)
	if err != nil {
		return fmt.Errorf("dev admin password: %w", err)
	}
	return db.SeedDev(ctx, sqlDB, db.SeedDevOptions{Users: []db.SeedUser{
		{Name: "admin", Flags: access.FlagAdmin, PasswordHash: hash},
	}})
}

func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	logger, closeLog, err := config.SetupLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	deletePolicy, err := engine.ParseDeletePolicy(cfg.DeletePolicy)
	if err != nil {
		return err
	}
	eng, err := engine.New(engine.Dependencies{
		Procedures: st.cards,
		Dumps:      st.cards,
		Logger:     logger,
		Metrics:    m,
	}, engine.Policy{
		DefaultDepartment: cfg.DefaultDepartment,
		DeleteNotFound:    deletePolicy,
		SerializePerCard:  cfg.SerializePerCard,
	})
	if err != nil {
		return err
	}

	issuer, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	var verifier auth.CredentialVerifier
	if hashes, ok := st.cards.(auth.PasswordHashes); ok {
		verifier = auth.NewBcryptVerifier(hashes)
	} else {
		logger.Warn("card store exposes no password hashes; login is disabled")
	}
	authn := auth.NewAuthenticator(st.cards, verifier, issuer, auth.NewRevoker(0, cfg.TokenTTL), logger)

	prober := health.NewProber(st.cards, health.ProberConfig{
		Interval: cfg.ProbeInterval,
		OnChange: m.SetStoreUp,
	}, logger)
	prober.Start(ctx)
	defer prober.Stop()

	pruner := audit.NewPruner(st.audit, audit.PrunerConfig{
		RetentionDays: cfg.AuditRetentionDays,
		Interval:      time.Duration(cfg.PruneIntervalHours) * time.Hour,
		OnPruned:      m.AddAuditPruned,
	}, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	srv, err := httpapi.NewServer(httpapi.Dependencies{
		Logger:       logger,
		Addr:         cfg.HTTPAddr,
		Engine:       eng,
		Auth:         authn,
		Audit:        st.audit,
		Limiter:      httpapi.NewLoginLimiter(cfg.LoginRatePerMinute),
		HTTPMetrics:  m,
		LoginMetrics: m,
		Metrics:      m.Handler(),
		Health:       prober,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", slog.String("addr", cfg.HTTPAddr))
		errCh <- srv.Start()
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, prober.GRPC())
		go func() {
			logger.Info("grpc health listening", slog.String("addr", cfg.GRPCAddr))
			errCh <- grpcServer.Serve(lis)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("server error", slog.String("error", err.Error()))
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
