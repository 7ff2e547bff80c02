package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/athebyme/gomarket-platform/import-service/config"
	"github.com/athebyme/gomarket-platform/import-service/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/import-service/internal/adapters/messaging"
	postgres "github.com/athebyme/gomarket-platform/import-service/internal/adapters/storage"
	"github.com/athebyme/gomarket-platform/import-service/internal/dispatch"
	"github.com/athebyme/gomarket-platform/import-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/import-service/internal/utils"
	"github.com/athebyme/gomarket-platform/import-service/pkg/interfaces"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Воркер доставки вебхуков: читает события продуктов из брокера,
// находит подписанные на событие вебхуки и раздает доставки пулу
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

	appLogger.Info("starting webhook delivery worker",
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

	storage, err := postgres.NewPostgresStorage(ctx, connString)
	if err != nil {
		appLogger.Fatal("failed to connect to postgres", "error", err)
	}
	defer storage.Close()

	kafkaMessaging, err := messaging.NewKafkaMessaging(
		cfg.Kafka.Brokers, cfg.Kafka.GroupID, appLogger)
	if err != nil {
		appLogger.Fatal("failed to connect to kafka", "error", err)
	}
	defer kafkaMessaging.Close()

	dispatcher := dispatch.NewDispatcher(dispatch.Options{
		Workers:      cfg.Webhooks.Workers,
		QueueSize:    cfg.Webhooks.QueueSize,
		MaxAttempts:  cfg.Webhooks.MaxAttempts,
		RetryBackoff: cfg.Webhooks.RetryBackoff,
		Timeout:      cfg.Webhooks.Timeout,
	}, appLogger)
	dispatcher.Start(ctx)

	handler := func(ctx context.Context, msg *interfaces.Message) error {
		var event models.ProductEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			appLogger.Warn("skipping malformed product event",
				"topic", msg.Topic, "error", err)
			return nil
		}

		webhooks, err := storage.ListEnabledWebhooks(ctx, event.EventType)
		if err != nil {
			return fmt.Errorf("failed to load webhooks for event: %w", err)
		}

		for _, webhook := range webhooks {
			dispatcher.Enqueue(&dispatch.Delivery{
				Webhook:   webhook,
				EventType: event.EventType,
				Payload:   msg.Value,
			})
		}
		return nil
	}

	unsubscribe, err := kafkaMessaging.Subscribe(ctx, cfg.Kafka.EventsTopic, handler)
	if err != nil {
		appLogger.Fatal("failed to subscribe to product events", "error", err)
	}

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			appLogger.Info("metrics endpoint listening", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				appLogger.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down")

	if err := unsubscribe(); err != nil {
		appLogger.Error("failed to unsubscribe from product events", "error", err)
	}
	cancel()
	dispatcher.Stop()

	appLogger.Info("webhook delivery worker stopped")
}
