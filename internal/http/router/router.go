package router

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/jobsturm/crm-local-sub000/internal/config"
	"github.com/jobsturm/crm-local-sub000/internal/http/handler"
	"github.com/jobsturm/crm-local-sub000/internal/http/middleware"
	"github.com/jobsturm/crm-local-sub000/internal/metrics"
	"github.com/jobsturm/crm-local-sub000/internal/service"
	"go.uber.org/zap"
)

// Handlers groups the resource handlers mounted under /api/v1
type Handlers struct {
	Customer *handler.CustomerHandler
	Product  *handler.ProductHandler
	Document *handler.DocumentHandler
	Settings *handler.SettingsHandler
	Report   *handler.ReportHandler
	Storage  *handler.StorageHandler
}

type Router struct {
	cfg         *config.Config
	logger      *zap.Logger
	backend     *service.Backend
	metrics     *metrics.Metrics
	rateLimiter *middleware.RateLimiter
	handlers    Handlers
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	backend *service.Backend,
	m *metrics.Metrics,
	rateLimiter *middleware.RateLimiter,
	handlers Handlers,
) *Router {
	return &Router{
		cfg:         cfg,
		logger:      logger,
		backend:     backend,
		metrics:     m,
		rateLimiter: rateLimiter,
		handlers:    handlers,
	}
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logging(rt.logger))
	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.SecurityHeaders(&rt.cfg.Security))
	r.Use(middleware.CORS(&rt.cfg.CORS, rt.logger))
	r.Use(rt.rateLimiter.LimitByIP)

	// Liveness
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Readiness: the active database file is readable
	r.Get("/health/ready", rt.ready)

	if rt.cfg.Metrics.Enabled {
		r.Handle(rt.cfg.Metrics.Path, rt.metrics.Handler())
	}

	h := rt.handlers
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/customers", func(r chi.Router) {
			r.Get("/", h.Customer.List)
			r.Post("/", h.Customer.Create)
			r.Get("/{id}", h.Customer.GetByID)
			r.Put("/{id}", h.Customer.Update)
			r.Delete("/{id}", h.Customer.Delete)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.Product.List)
			r.Post("/", h.Product.Create)
			r.Get("/{id}", h.Product.GetByID)
			r.Put("/{id}", h.Product.Update)
			r.Delete("/{id}", h.Product.Delete)
		})

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", h.Document.List)
			r.Post("/", h.Document.Create)
			r.Get("/next-number", h.Document.NextNumber)
			r.Get("/{id}", h.Document.GetByID)
			r.Put("/{id}", h.Document.Update)
			r.Delete("/{id}", h.Document.Delete)
			r.Put("/{id}/status", h.Document.UpdateStatus)
			r.Post("/{id}/convert", h.Document.Convert)
			r.Post("/{id}/link", h.Document.LinkConversion)
		})

		r.Get("/business", h.Settings.GetBusiness)
		r.Put("/business", h.Settings.UpdateBusiness)
		r.Get("/settings", h.Settings.GetSettings)
		r.Put("/settings", h.Settings.UpdateSettings)

		r.Get("/reports/overview", h.Report.Overview)

		r.Route("/storage", func(r chi.Router) {
			r.Get("/root", h.Storage.GetRoot)
			r.Put("/root", h.Storage.ChangeRoot)
			r.Get("/backups", h.Storage.ListBackups)
			r.Post("/backups", h.Storage.CreateBackup)
		})
	})

	return r
}

func (rt *Router) ready(w http.ResponseWriter, r *http.Request) {
	ws := rt.backend.Workspace()
	status := http.StatusOK
	body := map[string]interface{}{
		"status": "healthy",
		"root":   ws.Root,
	}

	if _, err := os.Stat(ws.DB.Path()); err != nil {
		rt.logger.Error("Database health check failed", zap.Error(err))
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["error"] = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
