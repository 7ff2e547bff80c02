package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/import-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/import-service/internal/utils"
	"github.com/athebyme/gomarket-platform/import-service/pkg/interfaces"
	"github.com/google/uuid"
)

// nopLogger - логгер-заглушка для тестов
type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})                              {}
func (nopLogger) Info(string, ...interface{})                               {}
func (nopLogger) Warn(string, ...interface{})                               {}
func (nopLogger) Error(string, ...interface{})                              {}
func (nopLogger) Fatal(string, ...interface{})                              {}
func (nopLogger) DebugWithContext(context.Context, string, ...interface{})  {}
func (nopLogger) InfoWithContext(context.Context, string, ...interface{})   {}
func (nopLogger) WarnWithContext(context.Context, string, ...interface{})   {}
func (nopLogger) ErrorWithContext(context.Context, string, ...interface{})  {}
func (n nopLogger) WithFields(...interfaces.LogField) interfaces.LoggerPort { return n }
func (n nopLogger) WithField(string, interface{}) interfaces.LoggerPort     { return n }
func (nopLogger) Sync() error                                               { return nil }

// memCache - кэш в памяти, реализует interfaces.CachePort
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
	}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.data[key]
	if !ok {
		return nil, interfaces.ErrCacheMiss
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	c.data[key] = cp
	if expiration > 0 {
		c.ttls[key] = expiration
	}
	return nil
}

func (c *memCache) Expire(_ context.Context, key string, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttls[key] = expiration
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	delete(c.ttls, key)
	return nil
}

func (c *memCache) Close() error { return nil }

// publishedMessage - одно зафиксированное сообщение
type publishedMessage struct {
	Topic string
	Key   string
	Value []byte
}

// memMessaging фиксирует публикации, реализует interfaces.MessagingPort
type memMessaging struct {
	mu       sync.Mutex
	messages []publishedMessage
}

func (m *memMessaging) Publish(_ context.Context, topic string, message []byte) error {
	return m.PublishWithKey(context.Background(), topic, "", message)
}

func (m *memMessaging) PublishWithKey(_ context.Context, topic, key string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, publishedMessage{Topic: topic, Key: key, Value: message})
	return nil
}

func (m *memMessaging) Subscribe(context.Context, string, interfaces.MessageHandler) (func() error, error) {
	return func() error { return nil }, nil
}

func (m *memMessaging) Close() error { return nil }

func (m *memMessaging) published() []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]publishedMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

// memStorage - хранилище продуктов и вебхуков в памяти.
// Повторяет ключевую семантику PostgreSQL-реализации:
// upsert по SKU без учета регистра, RETURNING при удалении
type memStorage struct {
	mu       sync.Mutex
	products map[string]*models.Product // ключ - lower(sku)
	webhooks map[string]*models.Webhook // ключ - id
}

func newMemStorage() *memStorage {
	return &memStorage{
		products: make(map[string]*models.Product),
		webhooks: make(map[string]*models.Webhook),
	}
}

func skuKey(sku string) string { return strings.ToLower(sku) }

func (s *memStorage) UpsertProduct(_ context.Context, product *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(product)
	return nil
}

func (s *memStorage) UpsertProductBatch(_ context.Context, products []*models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, product := range products {
		s.upsertLocked(product)
	}
	return nil
}

func (s *memStorage) upsertLocked(product *models.Product) {
	now := time.Now().UTC()
	if existing, ok := s.products[skuKey(product.SKU)]; ok {
		existing.Name = product.Name
		existing.Description = product.Description
		existing.Active = product.Active
		existing.UpdatedAt = now
		return
	}
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	product.CreatedAt = now
	product.UpdatedAt = now
	stored := *product
	s.products[skuKey(product.SKU)] = &stored
}

func (s *memStorage) GetProduct(_ context.Context, productID string) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, product := range s.products {
		if product.ID == productID {
			cp := *product
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStorage) GetProductBySKU(_ context.Context, sku string) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if product, ok := s.products[skuKey(sku)]; ok {
		cp := *product
		return &cp, nil
	}
	return nil, nil
}

func (s *memStorage) ListProducts(_ context.Context, filter *models.ProductFilter, page, pageSize int) ([]*models.Product, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*models.Product
	for _, product := range s.products {
		if filter != nil && filter.Active != nil && product.Active != *filter.Active {
			continue
		}
		cp := *product
		all = append(all, &cp)
	}
	total := len(all)
	start := (page - 1) * pageSize
	if start >= total {
		return []*models.Product{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (s *memStorage) UpdateProduct(_ context.Context, product *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, existing := range s.products {
		if existing.ID == product.ID {
			delete(s.products, key)
			cp := *product
			cp.UpdatedAt = time.Now().UTC()
			s.products[skuKey(product.SKU)] = &cp
			return nil
		}
	}
	return utils.ErrProductNotFound
}

func (s *memStorage) DeleteProduct(_ context.Context, productID string) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, product := range s.products {
		if product.ID == productID {
			delete(s.products, key)
			return product, nil
		}
	}
	return nil, utils.ErrProductNotFound
}

func (s *memStorage) DeleteAllProducts(_ context.Context) ([]*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted []*models.Product
	for _, product := range s.products {
		deleted = append(deleted, product)
	}
	s.products = make(map[string]*models.Product)
	return deleted, nil
}

func (s *memStorage) SaveWebhook(_ context.Context, webhook *models.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if webhook.ID == "" {
		webhook.ID = uuid.New().String()
	}
	if webhook.CreatedAt.IsZero() {
		webhook.CreatedAt = time.Now().UTC()
	}
	cp := *webhook
	s.webhooks[webhook.ID] = &cp
	return nil
}

func (s *memStorage) GetWebhook(_ context.Context, webhookID string) (*models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if webhook, ok := s.webhooks[webhookID]; ok {
		cp := *webhook
		return &cp, nil
	}
	return nil, nil
}

func (s *memStorage) ListWebhooks(_ context.Context) ([]*models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Webhook
	for _, webhook := range s.webhooks {
		cp := *webhook
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStorage) ListEnabledWebhooks(_ context.Context, eventType string) ([]*models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Webhook
	for _, webhook := range s.webhooks {
		if webhook.Enabled && webhook.EventType == eventType {
			cp := *webhook
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStorage) DeleteWebhook(_ context.Context, webhookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.webhooks[webhookID]; !ok {
		return utils.ErrWebhookNotFound
	}
	delete(s.webhooks, webhookID)
	return nil
}

// nopTxManager выполняет функцию без настоящей транзакции
type nopTxManager struct{}

func (nopTxManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
