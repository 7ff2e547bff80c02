package handlers

import (
	"errors"
	"net/http"

	"github.com/athebyme/gomarket-platform/import-service/internal/utils"
	pkgutils "github.com/athebyme/gomarket-platform/import-service/pkg/utils"
	"github.com/go-chi/render"
)

// successResponse - общий конверт успешного ответа API
type successResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// errorResponse - общий конверт ответа с ошибкой
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// listMeta - метаданные постраничного ответа
type listMeta struct {
	Pagination *pkgutils.Pagination `json:"pagination"`
}

func respondSuccess(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	render.Status(r, status)
	render.JSON(w, r, successResponse{Success: true, Data: data})
}

func respondList(w http.ResponseWriter, r *http.Request, data interface{}, p *pkgutils.Pagination) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, successResponse{Success: true, Data: data, Meta: listMeta{Pagination: p}})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// respondServiceError переводит доменные ошибки в HTTP-статусы
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, utils.ErrProductNotFound):
		respondError(w, r, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, utils.ErrWebhookNotFound):
		respondError(w, r, http.StatusNotFound, "webhook_not_found", err.Error())
	case errors.Is(err, utils.ErrJobNotFound):
		respondError(w, r, http.StatusNotFound, "job_not_found", err.Error())
	case errors.Is(err, utils.ErrDuplicateSKU):
		respondError(w, r, http.StatusConflict, "duplicate_sku", err.Error())
	case errors.Is(err, utils.ErrInvalidEvent):
		respondError(w, r, http.StatusBadRequest, "invalid_event_type", err.Error())
	case errors.Is(err, utils.ErrNotCSV):
		respondError(w, r, http.StatusBadRequest, "not_csv", err.Error())
	case errors.Is(err, utils.ErrTooManyRows):
		respondError(w, r, http.StatusRequestEntityTooLarge, "too_many_rows", err.Error())
	default:
		respondError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
