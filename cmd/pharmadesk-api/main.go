package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pharmadesk/pharmadesk/internal/api"
	"github.com/pharmadesk/pharmadesk/internal/archive"
	"github.com/pharmadesk/pharmadesk/internal/auth"
	"github.com/pharmadesk/pharmadesk/internal/config"
	"github.com/pharmadesk/pharmadesk/internal/observability"
	opspostgres "github.com/pharmadesk/pharmadesk/internal/ops/postgres"
	"github.com/pharmadesk/pharmadesk/internal/segment"
	s3store "github.com/pharmadesk/pharmadesk/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("pharmadesk-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	storeDB, err := opspostgres.Open(context.Background(), opspostgres.DBConfig{
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
	defer func() { _ = storeDB.Close() }()

	repo := opspostgres.NewRepository(storeDB)

	limits := segment.Limits{
		DefaultLimit: cfg.Segment.DefaultLimit,
		MaxLimit:     cfg.Segment.MaxLimit,
	}
	var translator segment.Translator
	if cfg.AI.TranslateEnabled {
		translator, err = segment.NewOpenAITranslator(segment.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
			Limits:      limits,
		})
		if err != nil {
			logger.Error("failed to initialize query translator", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		translator = segment.NewRuleTranslator(limits)
	}
	executor := segment.NewExecutor(storeDB, segment.ExecutorConfig{
		ExecTimeout:  cfg.Segment.ExecTimeout,
		RetryBackoff: cfg.Segment.RetryBackoff,
	})
	segmentService := segment.NewService(logger, translator, executor, limits)

	deps := api.Dependencies{
		Logger:            logger,
		Repo:              repo,
		Segments:          segmentService,
		DefaultActor:      "pharmadesk-api",
		DependencyTimeout: time.Second,
		Readiness: api.CombineReadinessChecks(
			api.CheckStoreDSN(cfg),
			repo.HealthCheck,
		),
	}

	if cfg.ObjectStore.Endpoint != "" {
		objectStore, err := s3store.New(context.Background(), s3store.Config{
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
		deps.Archiver = archive.NewService(logger, repo, objectStore, archive.Config{
			RetainDays: cfg.Archive.RetainDays,
			BatchSize:  cfg.Archive.BatchSize,
			RunActor:   cfg.Archive.RunActor,
		})
		deps.ArchiveQuery = archive.NewEngine(objectStore)
		deps.Readiness = api.CombineReadinessChecks(
			api.CheckStoreDSN(cfg),
			repo.HealthCheck,
			api.CheckObjectStoreConfig(cfg),
		)
	}

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
