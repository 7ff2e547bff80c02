package api

import (
	"net/http"
	"time"

	"github.com/athebyme/gomarket-platform/import-service/config"
	"github.com/athebyme/gomarket-platform/import-service/internal/api/handlers"
	custommw "github.com/athebyme/gomarket-platform/import-service/internal/api/middleware"
	"github.com/athebyme/gomarket-platform/import-service/internal/domain/services"
	"github.com/athebyme/gomarket-platform/import-service/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies - сервисы, необходимые маршрутизатору
type Dependencies struct {
	Products services.ProductServiceInterface
	Importer services.ImportServiceInterface
	Registry services.JobRegistryInterface
	Webhooks services.WebhookServiceInterface
	Logger   interfaces.LoggerPort
	Config   *config.Config
}

// NewRouter собирает маршрутизатор API.
// Поток прогресса монтируется мимо Timeout: SSE-соединение живет
// дольше любого разумного таймаута запроса
func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config

	productHandler := handlers.NewProductHandler(deps.Products, deps.Logger)
	uploadHandler := handlers.NewUploadHandler(
		deps.Importer, deps.Registry, deps.Logger,
		cfg.Server.BodyLimit, cfg.Import.KeepAlive)
	webhookHandler := handlers.NewWebhookHandler(deps.Webhooks, deps.Logger)

	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(custommw.Recoverer(deps.Logger))
	r.Use(custommw.Logger(deps.Logger))
	r.Use(custommw.CORS(cfg.Security.CORSAllowOrigins))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Обычные запросы ограничены по времени
		r.Group(func(r chi.Router) {
			r.Use(custommw.Timeout(60 * time.Second))

			r.Route("/products", func(r chi.Router) {
				r.Post("/", productHandler.Create)
				r.Get("/", productHandler.List)
				// /bulk обязан стоять раньше /{id}
				r.Delete("/bulk", productHandler.DeleteBulk)
				r.Get("/{id}", productHandler.Get)
				r.Patch("/{id}", productHandler.Update)
				r.Put("/{id}", productHandler.Update)
				r.Delete("/{id}", productHandler.Delete)
			})

			r.Post("/upload", uploadHandler.Upload)

			r.Route("/webhooks", func(r chi.Router) {
				r.Post("/", webhookHandler.Create)
				r.Get("/", webhookHandler.List)
				r.Get("/{id}", webhookHandler.Get)
				r.Patch("/{id}", webhookHandler.Update)
				r.Delete("/{id}", webhookHandler.Delete)
				r.Post("/{id}/test", webhookHandler.Test)
			})
		})

		// Поток прогресса без таймаута
		r.Get("/upload/progress/{job_id}", uploadHandler.Progress)
	})

	return r
}
