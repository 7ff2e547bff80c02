package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/athebyme/gomarket-platform/import-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/import-service/internal/domain/services"
	"github.com/athebyme/gomarket-platform/import-service/pkg/interfaces"
	pkgutils "github.com/athebyme/gomarket-platform/import-service/pkg/utils"
	"github.com/go-chi/chi/v5"
)

// ProductHandler обрабатывает запросы к продуктам
type ProductHandler struct {
	service services.ProductServiceInterface
	logger  interfaces.LoggerPort
}

// NewProductHandler создает обработчик продуктов
func NewProductHandler(service services.ProductServiceInterface, logger interfaces.LoggerPort) *ProductHandler {
	return &ProductHandler{
		service: service,
		logger:  logger,
	}
}

// createProductRequest - тело запроса на создание продукта
type createProductRequest struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

// Create обрабатывает POST /api/products
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if req.SKU == "" || req.Name == "" {
		respondError(w, r, http.StatusBadRequest, "validation_error", "sku and name are required")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	product, err := h.service.CreateProduct(r.Context(), &models.Product{
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		Active:      active,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondSuccess(w, r, http.StatusCreated, product)
}

// Get обрабатывает GET /api/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	product, err := h.service.GetProduct(r.Context(), productID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondSuccess(w, r, http.StatusOK, product)
}

// List обрабатывает GET /api/products с фильтрацией и пагинацией
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	p := pkgutils.NewPagination(page, pageSize)

	filter := &models.ProductFilter{
		SKU:         q.Get("sku"),
		Name:        q.Get("name"),
		Description: q.Get("description"),
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "validation_error", "active must be true or false")
			return
		}
		filter.Active = &active
	}

	products, total, err := h.service.ListProducts(r.Context(), filter, p.Page, p.PageSize)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	p.SetTotal(int64(total))
	if products == nil {
		products = []*models.Product{}
	}
	respondList(w, r, products, p)
}

// Update обрабатывает PATCH /api/products/{id}
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	var update models.ProductUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	product, err := h.service.UpdateProduct(r.Context(), productID, &update)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondSuccess(w, r, http.StatusOK, product)
}

// Delete обрабатывает DELETE /api/products/{id}
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	if err := h.service.DeleteProduct(r.Context(), productID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondSuccess(w, r, http.StatusOK, map[string]string{"message": "product deleted"})
}

// DeleteBulk обрабатывает DELETE /api/products/bulk - удаление всех продуктов
func (h *ProductHandler) DeleteBulk(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.service.DeleteAllProducts(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.logger.InfoWithContext(r.Context(), "bulk product delete", "deleted", deleted)
	respondSuccess(w, r, http.StatusOK, map[string]int{"deleted": deleted})
}
