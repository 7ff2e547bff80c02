package models

import "time"

// Product представляет товар каталога. SKU уникален без учета регистра
// и служит естественным ключом для upsert при импорте.
type Product struct {
	ID          string    `db:"id" json:"id"`
	SKU         string    `db:"sku" json:"sku"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description,omitempty"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ProductUpdate описывает частичное обновление продукта.
// nil-поле означает "не менять".
type ProductUpdate struct {
	SKU         *string `json:"sku,omitempty"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// ProductEvent представляет событие изменения продукта, публикуемое в Kafka
// и разносимое воркером по подписанным вебхукам
type ProductEvent struct {
	EventType string    `json:"event_type"` // product_created, product_updated, product_deleted
	Product   *Product  `json:"product"`
	Timestamp time.Time `json:"timestamp"`
}
