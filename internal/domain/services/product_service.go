package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	postgres "github.com/athebyme/gomarket-platform/import-service/internal/adapters/storage"
	"github.com/athebyme/gomarket-platform/import-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/import-service/internal/utils"
	"github.com/athebyme/gomarket-platform/import-service/pkg/interfaces"
	"github.com/athebyme/gomarket-platform/import-service/pkg/tx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var productEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "product_events_published_total",
	Help: "Количество опубликованных событий продуктов по типу",
}, []string{"event_type"})

// productCacheTTL - срок хранения продукта в кэше чтения
const productCacheTTL = 5 * time.Minute

// ProductServiceInterface определяет операции над продуктами
type ProductServiceInterface interface {
	CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error)
	GetProduct(ctx context.Context, productID string) (*models.Product, error)
	ListProducts(ctx context.Context, filter *models.ProductFilter, page, pageSize int) ([]*models.Product, int, error)
	UpdateProduct(ctx context.Context, productID string, update *models.ProductUpdate) (*models.Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	DeleteAllProducts(ctx context.Context) (int, error)
}

// ProductService реализует CRUD продуктов поверх PostgreSQL с кэшем
// чтения в Redis. Каждое изменение публикует событие в брокер,
// откуда его подбирает воркер доставки вебхуков
type ProductService struct {
	storage     postgres.ProductStorageInterface
	cache       interfaces.CachePort
	messaging   interfaces.MessagingPort
	logger      interfaces.LoggerPort
	txManager   tx.TxManager
	eventsTopic string
}

// NewProductService создает сервис продуктов
func NewProductService(
	storage postgres.ProductStorageInterface,
	cache interfaces.CachePort,
	messaging interfaces.MessagingPort,
	logger interfaces.LoggerPort,
	txManager tx.TxManager,
	eventsTopic string,
) *ProductService {
	return &ProductService{
		storage:     storage,
		cache:       cache,
		messaging:   messaging,
		logger:      logger,
		txManager:   txManager,
		eventsTopic: eventsTopic,
	}
}

func productCacheKey(productID string) string {
	return "product:" + productID
}

// CreateProduct создает продукт. SKU обязан быть уникальным
// без учета регистра
func (s *ProductService) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	if product.SKU == "" || product.Name == "" {
		return nil, fmt.Errorf("sku and name are required")
	}

	err := s.txManager.Do(ctx, func(ctx context.Context) error {
		existing, err := s.storage.GetProductBySKU(ctx, product.SKU)
		if err != nil {
			return err
		}
		if existing != nil {
			return utils.ErrDuplicateSKU
		}
		return s.storage.UpsertProduct(ctx, product)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, models.ProductCreatedEvent, product)
	return product, nil
}

// GetProduct возвращает продукт по ID, сначала заглядывая в кэш
func (s *ProductService) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	if data, err := s.cache.Get(ctx, productCacheKey(productID)); err == nil {
		var product models.Product
		if err := json.Unmarshal(data, &product); err == nil {
			return &product, nil
		}
		// Испорченную запись выбрасываем и идем в базу
		_ = s.cache.Delete(ctx, productCacheKey(productID))
	}

	product, err := s.storage.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, utils.ErrProductNotFound
	}

	if data, err := json.Marshal(product); err == nil {
		if err := s.cache.Set(ctx, productCacheKey(productID), data, productCacheTTL); err != nil {
			s.logger.WarnWithContext(ctx, "failed to cache product",
				"product_id", productID, "error", err)
		}
	}

	return product, nil
}

// ListProducts возвращает страницу продуктов и общее число записей
func (s *ProductService) ListProducts(ctx context.Context, filter *models.ProductFilter, page, pageSize int) ([]*models.Product, int, error) {
	return s.storage.ListProducts(ctx, filter, page, pageSize)
}

// UpdateProduct применяет частичное обновление продукта
func (s *ProductService) UpdateProduct(ctx context.Context, productID string, update *models.ProductUpdate) (*models.Product, error) {
	var updated *models.Product

	err := s.txManager.Do(ctx, func(ctx context.Context) error {
		product, err := s.storage.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if product == nil {
			return utils.ErrProductNotFound
		}

		if update.SKU != nil && *update.SKU != product.SKU {
			existing, err := s.storage.GetProductBySKU(ctx, *update.SKU)
			if err != nil {
				return err
			}
			if existing != nil && existing.ID != product.ID {
				return utils.ErrDuplicateSKU
			}
			product.SKU = *update.SKU
		}
		if update.Name != nil {
			product.Name = *update.Name
		}
		if update.Description != nil {
			product.Description = *update.Description
		}
		if update.Active != nil {
			product.Active = *update.Active
		}

		if err := s.storage.UpdateProduct(ctx, product); err != nil {
			return err
		}
		updated = product
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, productID)
	s.publishEvent(ctx, models.ProductUpdatedEvent, updated)
	return updated, nil
}

// DeleteProduct удаляет продукт и публикует событие удаления
func (s *ProductService) DeleteProduct(ctx context.Context, productID string) error {
	product, err := s.storage.DeleteProduct(ctx, productID)
	if err != nil {
		return err
	}

	s.invalidate(ctx, productID)
	s.publishEvent(ctx, models.ProductDeletedEvent, product)
	return nil
}

// DeleteAllProducts удаляет все продукты. На каждый удаленный продукт
// публикуется отдельное событие удаления, чтобы подписчики вебхуков
// увидели каждую запись
func (s *ProductService) DeleteAllProducts(ctx context.Context) (int, error) {
	products, err := s.storage.DeleteAllProducts(ctx)
	if err != nil {
		return 0, err
	}

	for _, product := range products {
		s.invalidate(ctx, product.ID)
		s.publishEvent(ctx, models.ProductDeletedEvent, product)
	}

	return len(products), nil
}

// invalidate выбрасывает продукт из кэша чтения
func (s *ProductService) invalidate(ctx context.Context, productID string) {
	if err := s.cache.Delete(ctx, productCacheKey(productID)); err != nil {
		s.logger.WarnWithContext(ctx, "failed to invalidate product cache",
			"product_id", productID, "error", err)
	}
}

// publishEvent публикует событие изменения продукта.
// Ключ партиционирования - ID продукта: события одного продукта
// сохраняют порядок. Ошибка публикации не откатывает операцию,
// она только логируется
func (s *ProductService) publishEvent(ctx context.Context, eventType string, product *models.Product) {
	event := &models.ProductEvent{
		EventType: eventType,
		Product:   product,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		s.logger.ErrorWithContext(ctx, "failed to marshal product event",
			"event_type", eventType, "product_id", product.ID, "error", err)
		return
	}

	if err := s.messaging.PublishWithKey(ctx, s.eventsTopic, product.ID, data); err != nil {
		s.logger.ErrorWithContext(ctx, "failed to publish product event",
			"event_type", eventType, "product_id", product.ID, "error", err)
		return
	}

	productEventsPublished.WithLabelValues(eventType).Inc()
}
