package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pharmadesk/pharmadesk/internal/archive"
	"github.com/pharmadesk/pharmadesk/internal/config"
	"github.com/pharmadesk/pharmadesk/internal/observability"
	opspostgres "github.com/pharmadesk/pharmadesk/internal/ops/postgres"
	s3store "github.com/pharmadesk/pharmadesk/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("pharmadesk-archiver")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	db, err := opspostgres.Open(context.Background(), opspostgres.DBConfig{
		DSN:             cfg.Store.DSN,
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxIdleTime: cfg.Store.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open store db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	store, err := s3store.New(context.Background(), s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	svc := archive.NewService(logger, opspostgres.NewRepository(db), store, archive.Config{
		RetainDays: cfg.Archive.RetainDays,
		BatchSize:  cfg.Archive.BatchSize,
		RunActor:   cfg.Archive.RunActor,
	})

	interval := cfg.Archive.Interval
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("archiver worker started", slog.Duration("interval", interval))
	if err := run(ctx, logger, svc, interval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("archiver worker failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("archiver worker stopped")
}

func run(ctx context.Context, logger *slog.Logger, svc *archive.Service, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce(ctx, logger, svc)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			runOnce(ctx, logger, svc)
		}
	}
}

func runOnce(ctx context.Context, logger *slog.Logger, svc *archive.Service) {
	summary, err := svc.RunOnce(ctx)
	if err != nil {
		logger.Error("archive run failed", slog.Any("error", err))
		return
	}
	logger.Info("archive run completed",
		slog.String("run_id", summary.RunID),
		slog.Int64("entries_archived", summary.EntriesArchived),
		slog.Int("objects_written", summary.ObjectsWritten),
		slog.Int64("pruned_entries", summary.PrunedEntries))
}
