package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/import-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/import-service/internal/utils"
	"github.com/athebyme/gomarket-platform/import-service/pkg/tx"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProductStorageInterface определяет интерфейс взаимодействия с хранилищем PostgreSQL
type ProductStorageInterface interface {
	// Product методы
	UpsertProduct(ctx context.Context, product *models.Product) error
	UpsertProductBatch(ctx context.Context, products []*models.Product) error
	GetProduct(ctx context.Context, productID string) (*models.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*models.Product, error)
	ListProducts(ctx context.Context, filter *models.ProductFilter, page, pageSize int) ([]*models.Product, int, error)
	UpdateProduct(ctx context.Context, product *models.Product) error
	DeleteProduct(ctx context.Context, productID string) (*models.Product, error)
	DeleteAllProducts(ctx context.Context) ([]*models.Product, error)

	// Webhook методы
	SaveWebhook(ctx context.Context, webhook *models.Webhook) error
	GetWebhook(ctx context.Context, webhookID string) (*models.Webhook, error)
	ListWebhooks(ctx context.Context) ([]*models.Webhook, error)
	ListEnabledWebhooks(ctx context.Context, eventType string) ([]*models.Webhook, error)
	DeleteWebhook(ctx context.Context, webhookID string) error
}

// ProductStoragePort расширяет интерфейс хранилища служебными операциями
type ProductStoragePort interface {
	ProductStorageInterface

	InitSchema(ctx context.Context) error

	Ping(ctx context.Context) error

	Close() error
}

// ProductStorage реализация хранилища для PostgreSQL
type ProductStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage создает новый экземпляр ProductStorage
func NewPostgresStorage(ctx context.Context, connectionString string) (*ProductStorage, error) {
	pool, err := pgxpool.New(ctx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &ProductStorage{
		pool: pool,
	}, nil
}

// NewPostgresStorageWithPool создает хранилище поверх готового пула
func NewPostgresStorageWithPool(ctx context.Context, pool *pgxpool.Pool) (*ProductStorage, error) {
	if pool == nil {
		return nil, errors.New("pool is nil")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &ProductStorage{
		pool: pool,
	}, nil
}

// Ping проверяет доступность базы
func (r *ProductStorage) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close закрывает соединение с БД
func (r *ProductStorage) Close() error {
	r.pool.Close()
	return nil
}

// executor - общее подмножество методов pgx.Tx и *pgxpool.Pool
type executor interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// getExecutor возвращает исполнителя запросов (транзакцию из контекста или пул)
func (r *ProductStorage) getExecutor(ctx context.Context) executor {
	if t, ok := tx.GetTxFromContext(ctx); ok {
		return t
	}
	return r.pool
}

// InitSchema создает таблицы и индексы, если их еще нет.
// SKU уникален без учета регистра - это и есть ключ upsert.
func (r *ProductStorage) InitSchema(ctx context.Context) error {
	schema := `
		CREATE SCHEMA IF NOT EXISTS importer;

		CREATE TABLE IF NOT EXISTS importer.products (
			id          UUID PRIMARY KEY,
			sku         TEXT NOT NULL,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			active      BOOLEAN NOT NULL DEFAULT TRUE,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS products_sku_lower_idx
			ON importer.products (lower(sku));

		CREATE TABLE IF NOT EXISTS importer.webhooks (
			id         UUID PRIMARY KEY,
			url        TEXT NOT NULL,
			event_type TEXT NOT NULL,
			enabled    BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS webhooks_event_type_idx
			ON importer.webhooks (event_type) WHERE enabled;
	`

	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

const upsertProductQuery = `
	INSERT INTO importer.products (id, sku, name, description, active, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (lower(sku))
	DO UPDATE SET
		name = EXCLUDED.name,
		description = EXCLUDED.description,
		active = EXCLUDED.active,
		updated_at = EXCLUDED.updated_at
`

// UpsertProduct сохраняет продукт по ключу SKU.
// При конфликте обновляются name/description/active/updated_at,
// id и created_at существующей записи сохраняются.
func (r *ProductStorage) UpsertProduct(ctx context.Context, product *models.Product) error {
	e := r.getExecutor(ctx)

	prepareProductRow(product)

	_, err := e.Exec(ctx, upsertProductQuery,
		product.ID, product.SKU, product.Name, product.Description,
		product.Active, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

// UpsertProductBatch сохраняет пачку продуктов одним обменом с базой.
// Запросы выполняются в порядке пачки, поэтому при повторении SKU
// внутри пачки побеждает последнее вхождение.
func (r *ProductStorage) UpsertProductBatch(ctx context.Context, products []*models.Product) error {
	if len(products) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, product := range products {
		prepareProductRow(product)
		batch.Queue(upsertProductQuery,
			product.ID, product.SKU, product.Name, product.Description,
			product.Active, product.CreatedAt, product.UpdatedAt)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range products {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert product batch: %w", err)
		}
	}
	return nil
}

// prepareProductRow заполняет id и временные метки перед записью
func prepareProductRow(product *models.Product) {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
}

// GetProduct получает продукт по ID
func (r *ProductStorage) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	e := r.getExecutor(ctx)

	query := `
		SELECT id, sku, name, description, active, created_at, updated_at
		FROM importer.products
		WHERE id = $1
	`

	var product models.Product
	err := e.QueryRow(ctx, query, productID).Scan(
		&product.ID, &product.SKU, &product.Name, &product.Description,
		&product.Active, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Продукт не найден
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return &product, nil
}

// GetProductBySKU получает продукт по SKU без учета регистра
func (r *ProductStorage) GetProductBySKU(ctx context.Context, sku string) (*models.Product, error) {
	e := r.getExecutor(ctx)

	query := `
		SELECT id, sku, name, description, active, created_at, updated_at
		FROM importer.products
		WHERE lower(sku) = lower($1)
	`

	var product models.Product
	err := e.QueryRow(ctx, query, sku).Scan(
		&product.ID, &product.SKU, &product.Name, &product.Description,
		&product.Active, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get product by sku: %w", err)
	}

	return &product, nil
}

// ListProducts возвращает список продуктов с поддержкой пагинации и фильтрации
func (r *ProductStorage) ListProducts(ctx context.Context, filter *models.ProductFilter, page, pageSize int) ([]*models.Product, int, error) {
	e := r.getExecutor(ctx)

	where := " WHERE TRUE"
	args := []interface{}{}
	argPos := 1

	if filter != nil {
		if filter.SKU != "" {
			where += fmt.Sprintf(" AND lower(sku) LIKE '%%' || lower($%d) || '%%'", argPos)
			args = append(args, filter.SKU)
			argPos++
		}
		if filter.Name != "" {
			where += fmt.Sprintf(" AND lower(name) LIKE '%%' || lower($%d) || '%%'", argPos)
			args = append(args, filter.Name)
			argPos++
		}
		if filter.Description != "" {
			where += fmt.Sprintf(" AND lower(description) LIKE '%%' || lower($%d) || '%%'", argPos)
			args = append(args, filter.Description)
			argPos++
		}
		if filter.Active != nil {
			where += fmt.Sprintf(" AND active = $%d", argPos)
			args = append(args, *filter.Active)
			argPos++
		}
	}

	countQuery := "SELECT COUNT(*) FROM importer.products" + where

	var total int
	if err := e.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	if total == 0 {
		return []*models.Product{}, 0, nil
	}

	dataQuery := `
		SELECT id, sku, name, description, active, created_at, updated_at
		FROM importer.products` + where + fmt.Sprintf(`
		ORDER BY created_at, id
		LIMIT $%d OFFSET $%d`, argPos, argPos+1)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := e.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		var product models.Product
		err := rows.Scan(&product.ID, &product.SKU, &product.Name, &product.Description,
			&product.Active, &product.CreatedAt, &product.UpdatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, &product)
	}

	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("error while iterating product rows: %w", rows.Err())
	}

	return products, total, nil
}

// UpdateProduct обновляет существующий продукт по ID
func (r *ProductStorage) UpdateProduct(ctx context.Context, product *models.Product) error {
	e := r.getExecutor(ctx)

	query := `
		UPDATE importer.products
		SET sku = $2, name = $3, description = $4, active = $5, updated_at = $6
		WHERE id = $1
	`

	product.UpdatedAt = time.Now().UTC()

	tag, err := e.Exec(ctx, query, product.ID, product.SKU, product.Name,
		product.Description, product.Active, product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return utils.ErrProductNotFound
	}

	return nil
}

// DeleteProduct удаляет продукт и возвращает удаленную запись
// для формирования события product_deleted
func (r *ProductStorage) DeleteProduct(ctx context.Context, productID string) (*models.Product, error) {
	e := r.getExecutor(ctx)

	query := `
		DELETE FROM importer.products
		WHERE id = $1
		RETURNING id, sku, name, description, active, created_at, updated_at
	`

	var product models.Product
	err := e.QueryRow(ctx, query, productID).Scan(
		&product.ID, &product.SKU, &product.Name, &product.Description,
		&product.Active, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to delete product: %w", err)
	}

	return &product, nil
}

// DeleteAllProducts удаляет все продукты и возвращает удаленные записи,
// чтобы вызывающая сторона могла разослать событие на каждую из них
func (r *ProductStorage) DeleteAllProducts(ctx context.Context) ([]*models.Product, error) {
	e := r.getExecutor(ctx)

	query := `
		DELETE FROM importer.products
		RETURNING id, sku, name, description, active, created_at, updated_at
	`

	rows, err := e.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to delete products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		var product models.Product
		err := rows.Scan(&product.ID, &product.SKU, &product.Name, &product.Description,
			&product.Active, &product.CreatedAt, &product.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deleted product row: %w", err)
		}
		products = append(products, &product)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("error while iterating deleted product rows: %w", rows.Err())
	}

	return products, nil
}

// SaveWebhook сохраняет вебхук (создание или полное обновление)
func (r *ProductStorage) SaveWebhook(ctx context.Context, webhook *models.Webhook) error {
	e := r.getExecutor(ctx)

	if webhook.ID == "" {
		webhook.ID = uuid.New().String()
	}
	if webhook.CreatedAt.IsZero() {
		webhook.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO importer.webhooks (id, url, event_type, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET
			url = EXCLUDED.url,
			event_type = EXCLUDED.event_type,
			enabled = EXCLUDED.enabled
	`

	_, err := e.Exec(ctx, query, webhook.ID, webhook.URL, webhook.EventType,
		webhook.Enabled, webhook.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save webhook: %w", err)
	}
	return nil
}

// GetWebhook получает вебхук по ID
func (r *ProductStorage) GetWebhook(ctx context.Context, webhookID string) (*models.Webhook, error) {
	e := r.getExecutor(ctx)

	query := `
		SELECT id, url, event_type, enabled, created_at
		FROM importer.webhooks
		WHERE id = $1
	`

	var webhook models.Webhook
	err := e.QueryRow(ctx, query, webhookID).Scan(
		&webhook.ID, &webhook.URL, &webhook.EventType, &webhook.Enabled, &webhook.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}

	return &webhook, nil
}

// ListWebhooks возвращает все вебхуки
func (r *ProductStorage) ListWebhooks(ctx context.Context) ([]*models.Webhook, error) {
	return r.queryWebhooks(ctx, `
		SELECT id, url, event_type, enabled, created_at
		FROM importer.webhooks
		ORDER BY created_at
	`)
}

// ListEnabledWebhooks возвращает включенные вебхуки, подписанные на тип события
func (r *ProductStorage) ListEnabledWebhooks(ctx context.Context, eventType string) ([]*models.Webhook, error) {
	return r.queryWebhooks(ctx, `
		SELECT id, url, event_type, enabled, created_at
		FROM importer.webhooks
		WHERE event_type = $1 AND enabled
		ORDER BY created_at
	`, eventType)
}

func (r *ProductStorage) queryWebhooks(ctx context.Context, query string, args ...interface{}) ([]*models.Webhook, error) {
	e := r.getExecutor(ctx)

	rows, err := e.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []*models.Webhook
	for rows.Next() {
		var webhook models.Webhook
		err := rows.Scan(&webhook.ID, &webhook.URL, &webhook.EventType,
			&webhook.Enabled, &webhook.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook row: %w", err)
		}
		webhooks = append(webhooks, &webhook)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("error while iterating webhook rows: %w", rows.Err())
	}

	return webhooks, nil
}

// DeleteWebhook удаляет вебхук
func (r *ProductStorage) DeleteWebhook(ctx context.Context, webhookID string) error {
	e := r.getExecutor(ctx)

	tag, err := e.Exec(ctx, `DELETE FROM importer.webhooks WHERE id = $1`, webhookID)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return utils.ErrWebhookNotFound
	}

	return nil
}
