package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/athebyme/gomarket-platform/import-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/import-service/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopic = "product-events"

func newProductFixture(t *testing.T) (*ProductService, *memStorage, *memMessaging, *memCache) {
	t.Helper()
	storage := newMemStorage()
	broker := &memMessaging{}
	cache := newMemCache()
	service := NewProductService(storage, cache, broker, nopLogger{}, nopTxManager{}, testTopic)
	return service, storage, broker, cache
}

func decodeEvent(t *testing.T, value []byte) *models.ProductEvent {
	t.Helper()
	var event models.ProductEvent
	require.NoError(t, json.Unmarshal(value, &event))
	return &event
}

func TestProductService_CreatePublishesEvent(t *testing.T) {
	service, _, broker, _ := newProductFixture(t)

	product, err := service.CreateProduct(context.Background(), &models.Product{
		SKU:  "ABC-1",
		Name: "Widget",
	})
	require.NoError(t, err)
	require.NotEmpty(t, product.ID)

	published := broker.published()
	require.Len(t, published, 1)
	assert.Equal(t, testTopic, published[0].Topic)
	assert.Equal(t, product.ID, published[0].Key)

	event := decodeEvent(t, published[0].Value)
	assert.Equal(t, models.ProductCreatedEvent, event.EventType)
	assert.Equal(t, "ABC-1", event.Product.SKU)
}

func TestProductService_CreateDuplicateSKU(t *testing.T) {
	service, _, broker, _ := newProductFixture(t)

	_, err := service.CreateProduct(context.Background(), &models.Product{SKU: "ABC-1", Name: "Widget"})
	require.NoError(t, err)

	// SKU сравнивается без учета регистра
	_, err = service.CreateProduct(context.Background(), &models.Product{SKU: "abc-1", Name: "Other"})
	assert.ErrorIs(t, err, utils.ErrDuplicateSKU)

	assert.Len(t, broker.published(), 1, "событие публикуется только на успешное создание")
}

func TestProductService_GetUsesCache(t *testing.T) {
	service, storage, _, _ := newProductFixture(t)

	created, err := service.CreateProduct(context.Background(), &models.Product{SKU: "ABC-1", Name: "Widget"})
	require.NoError(t, err)

	first, err := service.GetProduct(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget", first.Name)

	// Запись пропадает из базы, но закэшированный ответ еще живет
	_, err = storage.DeleteProduct(context.Background(), created.ID)
	require.NoError(t, err)

	second, err := service.GetProduct(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget", second.Name)
}

func TestProductService_GetNotFound(t *testing.T) {
	service, _, _, _ := newProductFixture(t)

	_, err := service.GetProduct(context.Background(), "missing")
	assert.ErrorIs(t, err, utils.ErrProductNotFound)
}

func TestProductService_UpdatePublishesEventAndInvalidatesCache(t *testing.T) {
	service, _, broker, _ := newProductFixture(t)

	created, err := service.CreateProduct(context.Background(), &models.Product{SKU: "ABC-1", Name: "Widget"})
	require.NoError(t, err)

	_, err = service.GetProduct(context.Background(), created.ID) // прогреваем кэш
	require.NoError(t, err)

	newName := "Updated Widget"
	updated, err := service.UpdateProduct(context.Background(), created.ID, &models.ProductUpdate{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, newName, updated.Name)

	// После инвалидации Get видит новое имя
	fresh, err := service.GetProduct(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, newName, fresh.Name)

	published := broker.published()
	require.Len(t, published, 2)
	event := decodeEvent(t, published[1].Value)
	assert.Equal(t, models.ProductUpdatedEvent, event.EventType)
	assert.Equal(t, newName, event.Product.Name)
}

func TestProductService_UpdateDuplicateSKU(t *testing.T) {
	service, _, _, _ := newProductFixture(t)

	_, err := service.CreateProduct(context.Background(), &models.Product{SKU: "ABC-1", Name: "One"})
	require.NoError(t, err)
	second, err := service.CreateProduct(context.Background(), &models.Product{SKU: "ABC-2", Name: "Two"})
	require.NoError(t, err)

	taken := "ABC-1"
	_, err = service.UpdateProduct(context.Background(), second.ID, &models.ProductUpdate{SKU: &taken})
	assert.ErrorIs(t, err, utils.ErrDuplicateSKU)
}

func TestProductService_DeletePublishesEvent(t *testing.T) {
	service, _, broker, _ := newProductFixture(t)

	created, err := service.CreateProduct(context.Background(), &models.Product{SKU: "ABC-1", Name: "Widget"})
	require.NoError(t, err)

	require.NoError(t, service.DeleteProduct(context.Background(), created.ID))

	published := broker.published()
	require.Len(t, published, 2)
	event := decodeEvent(t, published[1].Value)
	assert.Equal(t, models.ProductDeletedEvent, event.EventType)
	assert.Equal(t, created.ID, event.Product.ID)

	_, err = service.GetProduct(context.Background(), created.ID)
	assert.ErrorIs(t, err, utils.ErrProductNotFound)
}

func TestProductService_DeleteNotFound(t *testing.T) {
	service, _, _, _ := newProductFixture(t)

	err := service.DeleteProduct(context.Background(), "missing")
	assert.ErrorIs(t, err, utils.ErrProductNotFound)
}

func TestProductService_BulkDeleteFansOutEvents(t *testing.T) {
	service, _, broker, _ := newProductFixture(t)

	ids := make(map[string]bool)
	for _, sku := range []string{"ABC-1", "ABC-2", "ABC-3"} {
		product, err := service.CreateProduct(context.Background(), &models.Product{SKU: sku, Name: sku})
		require.NoError(t, err)
		ids[product.ID] = true
	}

	deleted, err := service.DeleteAllProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	// 3 события создания + 3 события удаления, по одному на продукт
	published := broker.published()
	require.Len(t, published, 6)
	for _, msg := range published[3:] {
		event := decodeEvent(t, msg.Value)
		assert.Equal(t, models.ProductDeletedEvent, event.EventType)
		assert.True(t, ids[event.Product.ID], "событие удаления ссылается на существовавший продукт")
	}
}
