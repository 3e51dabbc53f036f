package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pharmadesk/pharmadesk/internal/config"
	"github.com/pharmadesk/pharmadesk/internal/demo/seed"
	"github.com/pharmadesk/pharmadesk/internal/observability"
	opspostgres "github.com/pharmadesk/pharmadesk/internal/ops/postgres"
)

func main() {
	seedValue := flag.Int64("seed", 1, "random seed for deterministic data")
	clients := flag.Int("clients", 50, "number of demo clients")
	drugs := flag.Int("drugs", 20, "number of demo drugs")
	maxOrders := flag.Int("max-orders", 6, "maximum orders per client")
	flag.Parse()

	cfg, err := config.LoadFromEnv("pharmadesk-seed")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seeder := &seed.Seeder{
		Store:  opspostgres.NewRepository(db),
		Logger: logger,
		Config: seed.Config{
			Seed:               *seedValue,
			Clients:            *clients,
			Drugs:              *drugs,
			MaxOrdersPerClient: *maxOrders,
		},
	}
	if _, err := seeder.Run(ctx); err != nil {
		logger.Error("seed run failed", slog.Any("error", err))
		os.Exit(1)
	}
}
