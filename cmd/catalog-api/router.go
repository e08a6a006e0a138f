// Package main provides the API router setup.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jungwonlee1988/wedealize-sub000/cmd/catalog-api/handlers"
	"github.com/jungwonlee1988/wedealize-sub000/cmd/catalog-api/middleware"
	"github.com/jungwonlee1988/wedealize-sub000/internal/app"
	"github.com/jungwonlee1988/wedealize-sub000/internal/observability"
)

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, a *app.App, sessions *handlers.Registry, gatherer prometheus.Gatherer) http.Handler {
	cfg := a.Config

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestContext)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"` + cfg.Observability.ServiceName + `"}`))
	})

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	var uploads handlers.UploadLister
	if a.Uploads != nil {
		uploads = a.Uploads
	}

	sessionHandler := handlers.NewSessionHandler(logger, sessions, a.Store, cfg.Upload.MaxBytes)
	jobHandler := handlers.NewJobHandler(logger, a.Poller, uploads)
	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limiter.Handler)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Get("/events", sessionHandler.Events)
				r.Post("/upload", sessionHandler.Upload)
				r.Post("/upload-job", sessionHandler.UploadJob)
				r.Post("/prices", sessionHandler.Prices)
				r.Get("/products", sessionHandler.Products)
				r.Patch("/products/{pid}", sessionHandler.EditProduct)
				r.Post("/selection", sessionHandler.Selection)
				r.Post("/steps/{step}", sessionHandler.Step)
			})
		})

		r.Get("/jobs/{jobId}", jobHandler.Get)
		r.Get("/uploads", jobHandler.ListUploads)
	})

	return r
}
