package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/athebyme/gomarket-platform/import-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/import-service/internal/domain/services"
	"github.com/athebyme/gomarket-platform/import-service/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// WebhookHandler обрабатывает запросы к подпискам вебхуков
type WebhookHandler struct {
	service services.WebhookServiceInterface
	logger  interfaces.LoggerPort
}

// NewWebhookHandler создает обработчик вебхуков
func NewWebhookHandler(service services.WebhookServiceInterface, logger interfaces.LoggerPort) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		logger:  logger,
	}
}

// createWebhookRequest - тело запроса на создание вебхука
type createWebhookRequest struct {
	URL       string `json:"url"`
	EventType string `json:"event_type"`
	Enabled   *bool  `json:"enabled"`
}

// Create обрабатывает POST /api/webhooks
func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if req.URL == "" {
		respondError(w, r, http.StatusBadRequest, "validation_error", "url is required")
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	webhook, err := h.service.CreateWebhook(r.Context(), &models.Webhook{
		URL:       req.URL,
		EventType: req.EventType,
		Enabled:   enabled,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondSuccess(w, r, http.StatusCreated, webhook)
}

// Get обрабатывает GET /api/webhooks/{id}
func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "id")

	webhook, err := h.service.GetWebhook(r.Context(), webhookID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondSuccess(w, r, http.StatusOK, webhook)
}

// List обрабатывает GET /api/webhooks
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	webhooks, err := h.service.ListWebhooks(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if webhooks == nil {
		webhooks = []*models.Webhook{}
	}
	respondSuccess(w, r, http.StatusOK, webhooks)
}

// Update обрабатывает PATCH /api/webhooks/{id}
func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "id")

	var update models.WebhookUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	webhook, err := h.service.UpdateWebhook(r.Context(), webhookID, &update)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondSuccess(w, r, http.StatusOK, webhook)
}

// Delete обрабатывает DELETE /api/webhooks/{id}
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "id")

	if err := h.service.DeleteWebhook(r.Context(), webhookID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondSuccess(w, r, http.StatusOK, map[string]string{"message": "webhook deleted"})
}

// Test обрабатывает POST /api/webhooks/{id}/test: синхронная тестовая
// доставка. Ответ - результат доставки как есть, без общего конверта
func (h *WebhookHandler) Test(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "id")

	result, err := h.service.TestWebhook(r.Context(), webhookID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, result)
}
