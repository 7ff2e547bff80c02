package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	postgres "github.com/athebyme/gomarket-platform/import-service/internal/adapters/storage"
	"github.com/athebyme/gomarket-platform/import-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/import-service/internal/utils"
	"github.com/athebyme/gomarket-platform/import-service/pkg/interfaces"
)

// WebhookServiceInterface определяет операции над подписками вебхуков
type WebhookServiceInterface interface {
	CreateWebhook(ctx context.Context, webhook *models.Webhook) (*models.Webhook, error)
	GetWebhook(ctx context.Context, webhookID string) (*models.Webhook, error)
	ListWebhooks(ctx context.Context) ([]*models.Webhook, error)
	UpdateWebhook(ctx context.Context, webhookID string, update *models.WebhookUpdate) (*models.Webhook, error)
	DeleteWebhook(ctx context.Context, webhookID string) error

	// TestWebhook синхронно отправляет тестовый запрос на URL вебхука
	// и возвращает исход доставки. Сетевая неудача - это не ошибка
	// операции, а содержимое результата
	TestWebhook(ctx context.Context, webhookID string) (*models.WebhookDeliveryResult, error)
}

// WebhookService реализует CRUD подписок и тестовую доставку
type WebhookService struct {
	storage     postgres.ProductStorageInterface
	logger      interfaces.LoggerPort
	client      *http.Client
	testTimeout time.Duration
}

// NewWebhookService создает сервис вебхуков.
// testTimeout ограничивает длительность тестовой доставки
func NewWebhookService(storage postgres.ProductStorageInterface, logger interfaces.LoggerPort, testTimeout time.Duration) *WebhookService {
	if testTimeout <= 0 {
		testTimeout = 10 * time.Second
	}
	return &WebhookService{
		storage:     storage,
		logger:      logger,
		client:      &http.Client{Timeout: testTimeout},
		testTimeout: testTimeout,
	}
}

// CreateWebhook регистрирует новую подписку
func (s *WebhookService) CreateWebhook(ctx context.Context, webhook *models.Webhook) (*models.Webhook, error) {
	if webhook.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if !models.ValidEventType(webhook.EventType) {
		return nil, utils.ErrInvalidEvent
	}

	if err := s.storage.SaveWebhook(ctx, webhook); err != nil {
		return nil, err
	}

	s.logger.InfoWithContext(ctx, "webhook registered",
		"webhook_id", webhook.ID, "event_type", webhook.EventType)
	return webhook, nil
}

// GetWebhook возвращает подписку по ID
func (s *WebhookService) GetWebhook(ctx context.Context, webhookID string) (*models.Webhook, error) {
	webhook, err := s.storage.GetWebhook(ctx, webhookID)
	if err != nil {
		return nil, err
	}
	if webhook == nil {
		return nil, utils.ErrWebhookNotFound
	}
	return webhook, nil
}

// ListWebhooks возвращает все подписки
func (s *WebhookService) ListWebhooks(ctx context.Context) ([]*models.Webhook, error) {
	return s.storage.ListWebhooks(ctx)
}

// UpdateWebhook применяет частичное обновление подписки
func (s *WebhookService) UpdateWebhook(ctx context.Context, webhookID string, update *models.WebhookUpdate) (*models.Webhook, error) {
	webhook, err := s.GetWebhook(ctx, webhookID)
	if err != nil {
		return nil, err
	}

	if update.URL != nil {
		if *update.URL == "" {
			return nil, fmt.Errorf("webhook url is required")
		}
		webhook.URL = *update.URL
	}
	if update.EventType != nil {
		if !models.ValidEventType(*update.EventType) {
			return nil, utils.ErrInvalidEvent
		}
		webhook.EventType = *update.EventType
	}
	if update.Enabled != nil {
		webhook.Enabled = *update.Enabled
	}

	if err := s.storage.SaveWebhook(ctx, webhook); err != nil {
		return nil, err
	}
	return webhook, nil
}

// DeleteWebhook удаляет подписку
func (s *WebhookService) DeleteWebhook(ctx context.Context, webhookID string) error {
	return s.storage.DeleteWebhook(ctx, webhookID)
}

// TestWebhook синхронно отправляет тестовый запрос на URL вебхука
func (s *WebhookService) TestWebhook(ctx context.Context, webhookID string) (*models.WebhookDeliveryResult, error) {
	webhook, err := s.GetWebhook(ctx, webhookID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"event_type": webhook.EventType,
		"test":       true,
		"webhook_id": webhook.ID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal test payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.testTimeout)
	defer cancel()

	started := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(payload))
	if err != nil {
		return &models.WebhookDeliveryResult{
			Success:        false,
			ResponseTimeMs: elapsedMs(started),
			Error:          fmt.Sprintf("invalid webhook url: %v", err),
		}, nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// Ответа не было: status_code отсутствует
		return &models.WebhookDeliveryResult{
			Success:        false,
			ResponseTimeMs: elapsedMs(started),
			Error:          err.Error(),
		}, nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	result := &models.WebhookDeliveryResult{
		StatusCode:     &resp.StatusCode,
		ResponseTimeMs: elapsedMs(started),
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Success = true
	} else {
		result.Error = fmt.Sprintf("webhook responded with status %d", resp.StatusCode)
	}

	return result, nil
}

// elapsedMs возвращает прошедшее время в миллисекундах
func elapsedMs(started time.Time) float64 {
	return float64(time.Since(started).Microseconds()) / 1000.0
}
