package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/shaw77735-web/JuteVisionAudit/internal/config"
	"github.com/shaw77735-web/JuteVisionAudit/internal/db"
	"github.com/shaw77735-web/JuteVisionAudit/internal/health"
	"github.com/shaw77735-web/JuteVisionAudit/internal/httpapi"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/service"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store/filestore"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store/memory"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "jutevision-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.ServerFromEnv()
	if err != nil {
		return err
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel).With("app", "jutevision-server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// DB
	sqlDB, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if v, err := db.SchemaVersion(ctx, sqlDB); err == nil {
		logger.Info("database ready", "path", cfg.DBPath, "schema_version", v)
	}

	writer := db.NewWorker(sqlDB)
	defer writer.Close()

	if cfg.Env == "dev" {
		if err := seedDevLocks(ctx, sqlDB, cfg, logger); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	// Stores
	settingsStore, err := openSettingsStore(ctx, g, cfg, sqlDB, writer, logger)
	if err != nil {
		return err
	}
	captureStore := sqlite.NewCaptureStore(sqlDB, writer)
	eventStore := sqlite.NewVerifyEventStore(sqlDB, writer)

	// Health
	healthSrv := health.NewServer(logger)

	// Services
	replay := service.NewReplaySource(cfg.ReplayCounts)
	auditSvc := service.NewAuditService(replay, service.AuditOptions{
		Logger:   logger,
		OnHealth: healthSrv.SetServing,
	})
	settingsSvc := service.NewSettingsService(settingsStore, eventStore, service.SettingsOptions{
		VerifyBurst:    cfg.VerifyBurst,
		VerifyInterval: cfg.VerifyInterval,
		Logger:         logger,
	})
	captureSvc := service.NewCaptureService(replay, replay, captureStore, settingsSvc, logger)

	pruner := service.NewCapturePruner(captureStore, service.PrunerConfig{
		RetentionDays: cfg.CaptureRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:          logger,
		Addr:            cfg.HTTPAddr,
		AuditService:    auditSvc,
		SettingsService: settingsSvc,
		CaptureService:  captureSvc,
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc health listening", "addr", lis.Addr().String())
		return healthSrv.Serve(lis)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		healthSrv.Shutdown()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openSettingsStore picks the credential store backend. The file backend
// watches its file for the lifetime of g.
func openSettingsStore(ctx context.Context, g *errgroup.Group, cfg config.ServerConfig, sqlDB *sql.DB, writer *db.Worker, logger *slog.Logger) (store.SettingsStore, error) {
	switch cfg.SettingsBackend {
	case "file":
		fs, err := filestore.Open(cfg.SettingsPath, logger)
		if err != nil {
			return nil, err
		}
		g.Go(func() error { return fs.Run(ctx) })
		logger.Info("settings backend", "backend", "file", "path", cfg.SettingsPath)
		return fs, nil
	case "memory":
		logger.Warn("settings backend is in-memory; PINs are lost on restart")
		return memory.NewSettingsStore(), nil
	default:
		logger.Info("settings backend", "backend", "sqlite", "path", cfg.DBPath)
		return sqlite.NewSettingsStore(sqlDB, writer), nil
	}
}

func seedDevLocks(ctx context.Context, sqlDB *sql.DB, cfg config.ServerConfig, logger *slog.Logger) error {
	var opt db.SeedDevOptions
	var err error
	if opt.AppPINHash, err = hashDevPIN(cfg.DevAppPIN); err != nil {
		return err
	}
	if opt.FilePINHash, err = hashDevPIN(cfg.DevFilePIN); err != nil {
		return err
	}

	seeded, err := db.SeedDev(ctx, sqlDB, opt)
	if err != nil {
		return err
	}
	if seeded {
		logger.Warn("dev PIN locks installed", "app", opt.AppPINHash != "", "file", opt.FilePINHash != "")
	}
	return nil
}

func hashDevPIN(pin string) (string, error) {
	if pin == "" {
		return "", nil
	}
	b, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash dev PIN: %w", err)
	}
	return string(b), nil
}
