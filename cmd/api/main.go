package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/athebyme/gomarket-platform/import-service/config"
	"github.com/athebyme/gomarket-platform/import-service/internal/adapters/cache"
	"github.com/athebyme/gomarket-platform/import-service/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/import-service/internal/adapters/messaging"
	postgres "github.com/athebyme/gomarket-platform/import-service/internal/adapters/storage"
	"github.com/athebyme/gomarket-platform/import-service/internal/api"
	"github.com/athebyme/gomarket-platform/import-service/internal/domain/services"
	"github.com/athebyme/gomarket-platform/import-service/internal/utils"
	"github.com/athebyme/gomarket-platform/import-service/pkg/tx"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	configPath := flag.String("config", "", "путь к файлу конфигурации")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("не удалось загрузить конфигурацию: %v", err)
	}

	appLogger, err := logger.NewZapLogger(cfg.LogLevel, cfg.ENV == "production")
	if err != nil {
		log.Fatalf("не удалось инициализировать логгер: %v", err)
	}
	defer appLogger.Sync()

	appLogger.Info("starting import service api",
		"app", cfg.AppName, "version", cfg.Version, "env", cfg.ENV)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connString, err := utils.GenerateConnectionString(
		cfg.Postgres.Host, cfg.Postgres.User, cfg.Postgres.Password,
		cfg.Postgres.DBName, cfg.Postgres.SSLMode,
		cfg.Postgres.Port, cfg.Postgres.PoolSize, cfg.Postgres.Timeout)
	if err != nil {
		appLogger.Fatal("invalid postgres configuration", "error", err)
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		appLogger.Fatal("failed to create postgres pool", "error", err)
	}
	defer pool.Close()

	storage, err := postgres.NewPostgresStorageWithPool(ctx, pool)
	if err != nil {
		appLogger.Fatal("failed to connect to postgres", "error", err)
	}

	if err := storage.InitSchema(ctx); err != nil {
		appLogger.Fatal("failed to init database schema", "error", err)
	}

	redisCache, err := cache.NewRedisCache(ctx,
		cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Fatal("failed to connect to redis", "error", err)
	}
	defer redisCache.Close()

	kafkaMessaging, err := messaging.NewKafkaMessaging(
		cfg.Kafka.Brokers, cfg.Kafka.GroupID, appLogger)
	if err != nil {
		appLogger.Fatal("failed to connect to kafka", "error", err)
	}
	defer kafkaMessaging.Close()

	txManager := tx.NewTxManager(pool)

	registry := services.NewJobRegistry(redisCache, appLogger, cfg.Import.JobRetention)

	importService := services.NewImportService(storage, registry, appLogger, services.ImportOptions{
		BatchSize:     cfg.Import.BatchSize,
		MaxRows:       cfg.Import.MaxRows,
		SkipThreshold: cfg.Import.SkipThreshold,
	})

	productService := services.NewProductService(
		storage, redisCache, kafkaMessaging, appLogger, txManager, cfg.Kafka.EventsTopic)

	webhookService := services.NewWebhookService(storage, appLogger, cfg.Webhooks.TestTimeout)

	router := api.NewRouter(api.Dependencies{
		Products: productService,
		Importer: importService,
		Registry: registry,
		Webhooks: webhookService,
		Logger:   appLogger,
		Config:   cfg,
	})

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout нулевой: поток прогресса SSE живет произвольно долго
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLogger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("http server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("http server shutdown failed", "error", err)
	}

	appLogger.Info("import service api stopped")
}
