package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/iho/tradebook/internal/adapter/http/handler"
	"github.com/iho/tradebook/internal/adapter/http/middleware"
	"github.com/iho/tradebook/internal/infrastructure/metrics"
	"github.com/iho/tradebook/internal/usecase"
)

// RouterConfig holds dependencies for the router. Optional parts are
// skipped when nil.
type RouterConfig struct {
	EntryHandler   *handler.EntryHandler
	PaymentHandler *handler.PaymentHandler
	SummaryHandler *handler.SummaryHandler
	HealthHandler  *handler.HealthHandler

	Logger           zerolog.Logger
	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	RateLimiter      *middleware.RateLimiter
	Metrics          *metrics.Metrics
	MetricsHandler   http.Handler
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.IdempotencyStore != nil {
			r.Use(middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL).Wrap)
		}

		r.Route("/entries", func(r chi.Router) {
			r.Post("/", cfg.EntryHandler.Create)
			r.Get("/{id}", cfg.EntryHandler.Get)
			r.Post("/{id}/adjustments", cfg.EntryHandler.Adjust)
		})

		r.Route("/counterparties/{key}", func(r chi.Router) {
			r.Get("/entries", cfg.EntryHandler.ListByCounterparty)
			r.Get("/payments", cfg.PaymentHandler.ListByCounterparty)
			r.Get("/summary", cfg.SummaryHandler.Counterparty)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", cfg.PaymentHandler.Create)
			r.Post("/preview", cfg.PaymentHandler.Preview)
			r.Get("/{id}", cfg.PaymentHandler.Get)
			r.Put("/{id}", cfg.PaymentHandler.Update)
			r.Delete("/{id}", cfg.PaymentHandler.Delete)
		})

		r.Get("/summary", cfg.SummaryHandler.Fleet)
		r.Get("/ledger/reconciliation", cfg.SummaryHandler.Reconcile)
	})

	return r
}
