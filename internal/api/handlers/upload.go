package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/athebyme/gomarket-platform/import-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/import-service/internal/domain/services"
	"github.com/athebyme/gomarket-platform/import-service/internal/utils"
	"github.com/athebyme/gomarket-platform/import-service/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// UploadHandler обрабатывает загрузку CSV и поток прогресса импорта
type UploadHandler struct {
	importer  services.ImportServiceInterface
	registry  services.JobRegistryInterface
	logger    interfaces.LoggerPort
	bodyLimit int64         // максимальный размер загрузки в байтах
	keepAlive time.Duration // интервал keep-alive сигналов SSE
}

// NewUploadHandler создает обработчик загрузки.
// bodyLimitMB задается в мегабайтах
func NewUploadHandler(
	importer services.ImportServiceInterface,
	registry services.JobRegistryInterface,
	logger interfaces.LoggerPort,
	bodyLimitMB int,
	keepAlive time.Duration,
) *UploadHandler {
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	return &UploadHandler{
		importer:  importer,
		registry:  registry,
		logger:    logger,
		bodyLimit: int64(bodyLimitMB) * 1024 * 1024,
		keepAlive: keepAlive,
	}
}

// Upload обрабатывает POST /api/upload: принимает multipart CSV-файл
// и отвечает 202 с идентификатором фонового задания
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.bodyLimit)

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_upload", "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	jobID, err := h.importer.StartImport(r.Context(), file, header.Filename)
	if err != nil {
		if errors.Is(err, utils.ErrNotCSV) || errors.Is(err, utils.ErrTooManyRows) {
			respondServiceError(w, r, err)
			return
		}
		h.logger.ErrorWithContext(r.Context(), "failed to start import",
			"filename", header.Filename, "error", err)
		respondError(w, r, http.StatusInternalServerError, "internal_error", "failed to start import")
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{
		"job_id":  jobID,
		"message": "File upload started",
	})
}

// progressFrame - кадр потока прогресса в формате, который ждет клиент
type progressFrame struct {
	JobID            string `json:"job_id"`
	Status           string `json:"status"`
	Progress         int    `json:"progress"`
	Message          string `json:"message"`
	TotalRecords     int    `json:"total_records"`
	ProcessedRecords int    `json:"processed_records"`
}

// errorFrame - кадр с ошибкой потока прогресса
type errorFrame struct {
	Error string `json:"error"`
}

// Progress обрабатывает GET /api/upload/progress/{job_id} и стримит
// прогресс задания по Server-Sent Events. Первым уходит текущий снимок,
// далее обновления по мере работы импорта. После конечного статуса
// отправляется последний кадр и соединение закрывается
func (h *UploadHandler) Progress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, http.StatusInternalServerError, "streaming_unsupported", "streaming is not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates, cancel, err := h.registry.Subscribe(r.Context(), jobID)
	if err != nil {
		// Неизвестное задание: сразу кадр с ошибкой и закрытие потока
		w.WriteHeader(http.StatusOK)
		writeSSEFrame(w, errorFrame{Error: "import job not found"})
		flusher.Flush()
		return
	}
	defer cancel()

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-keepAlive.C:
			// Комментарий SSE: прокси не закроют тихое соединение
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()

		case job, ok := <-updates:
			if !ok {
				return
			}
			writeSSEFrame(w, frameFromJob(job))
			flusher.Flush()
			if job.Status.IsTerminal() {
				return
			}
		}
	}
}

func frameFromJob(job *models.ImportJob) progressFrame {
	message := job.Message
	if job.Error != "" {
		message = job.Error
	}
	return progressFrame{
		JobID:            job.ID,
		Status:           string(job.Status),
		Progress:         job.Progress,
		Message:          message,
		TotalRecords:     job.TotalRows,
		ProcessedRecords: job.ProcessedRows,
	}
}

// writeSSEFrame сериализует полезную нагрузку в data-кадр SSE
func writeSSEFrame(w http.ResponseWriter, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
