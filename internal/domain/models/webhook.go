package models

import "time"

// Типы событий, на которые можно подписать вебхук
const (
	ProductCreatedEvent = "product_created"
	ProductUpdatedEvent = "product_updated"
	ProductDeletedEvent = "product_deleted"
)

// ValidEventType проверяет, что тип события известен системе
func ValidEventType(eventType string) bool {
	switch eventType {
	case ProductCreatedEvent, ProductUpdatedEvent, ProductDeletedEvent:
		return true
	}
	return false
}

// Webhook представляет подписку внешнего URL на события продуктов
type Webhook struct {
	ID        string    `db:"id" json:"id"`
	URL       string    `db:"url" json:"url"`
	EventType string    `db:"event_type" json:"event_type"`
	Enabled   bool      `db:"enabled" json:"enabled"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// WebhookUpdate описывает частичное обновление вебхука.
// nil-поле означает "не менять".
type WebhookUpdate struct {
	URL       *string `json:"url,omitempty"`
	EventType *string `json:"event_type,omitempty"`
	Enabled   *bool   `json:"enabled,omitempty"`
}

// WebhookDeliveryResult представляет исход одной тестовой доставки.
// StatusCode присутствует, только если какой-то ответ был получен;
// Error заполняется, когда Success == false.
type WebhookDeliveryResult struct {
	Success        bool    `json:"success"`
	StatusCode     *int    `json:"status_code,omitempty"`
	ResponseTimeMs float64 `json:"response_time_ms"`
	Error          string  `json:"error,omitempty"`
}
