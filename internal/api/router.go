// Package api assembles the HTTP router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/inkpad/service/internal/document"
	"github.com/inkpad/service/internal/image"
	appMiddleware "github.com/inkpad/service/internal/middleware"
)

// Options carries everything the router needs.
type Options struct {
	Documents   *document.Handler
	Images      *image.Handler
	Log         zerolog.Logger
	JWTSecret   string
	CORSOrigins []string
	Gatherer    prometheus.Gatherer
	// TrustProxyHeaders rewrites RemoteAddr from X-Forwarded-For or
	// X-Real-IP. Only safe behind a proxy that sets them.
	TrustProxyHeaders bool
	// RateLimiter throttles mutating requests when set.
	RateLimiter *appMiddleware.RateLimiter
}

// NewRouter wires middleware, ambient endpoints and the v1 API.
func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	if opts.TrustProxyHeaders {
		r.Use(chiMiddleware.RealIP)
	}
	r.Use(appMiddleware.Logger(opts.Log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", appMiddleware.SecretHeader},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	// Swagger UI at /swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(appMiddleware.IdentifyOwner(opts.JWTSecret))

		r.Get("/documents", opts.Documents.List)
		r.Get("/documents/{id}", opts.Documents.Get)
		r.Get("/images/{id}", opts.Images.Get)

		// Mutating endpoints
		r.Group(func(r chi.Router) {
			if opts.RateLimiter != nil {
				r.Use(opts.RateLimiter.Handler)
			}
			r.Post("/documents", opts.Documents.Create)
			r.Put("/documents/{id}", opts.Documents.Update)
			r.Delete("/documents/{id}", opts.Documents.Delete)
			r.Post("/documents/{id}/images", opts.Images.Upload)
			r.Delete("/images/{id}", opts.Images.Delete)
		})
	})

	return r
}
