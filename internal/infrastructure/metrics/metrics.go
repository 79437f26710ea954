package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Payment metrics
	PaymentsCreated  prometheus.Counter
	PaymentsEdited   prometheus.Counter
	PaymentsDeleted  prometheus.Counter
	PaymentDuration  *prometheus.HistogramVec
	PaymentAmount    *prometheus.HistogramVec
	PaymentErrors    *prometheus.CounterVec
	AllocationsTotal prometheus.Counter

	// Ledger entry metrics
	EntriesCreated  *prometheus.CounterVec
	EntriesAdjusted prometheus.Counter

	// Reconciliation metrics
	ReconciliationRuns          prometheus.Counter
	ReconciliationDiscrepancies prometheus.Gauge

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	HTTPInFlight prometheus.Gauge

	// Database metrics
	TxRetries   prometheus.Counter
	DBErrors    *prometheus.CounterVec
	OutboxLag   prometheus.Gauge
	OutboxSent  prometheus.Counter
	OutboxFails prometheus.Counter

	// Redis metrics
	RedisOperations *prometheus.CounterVec
	RedisErrors     *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers all metrics with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		// Payment metrics
		PaymentsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "tradebook_payments_created_total",
			Help: "Total number of payments created",
		}),
		PaymentsEdited: f.NewCounter(prometheus.CounterOpts{
			Name: "tradebook_payments_edited_total",
			Help: "Total number of payments edited",
		}),
		PaymentsDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "tradebook_payments_deleted_total",
			Help: "Total number of payments deleted and reversed",
		}),
		PaymentDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradebook_payment_duration_seconds",
				Help:    "Duration of payment transactions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		PaymentAmount: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradebook_payment_amount",
				Help:    "Payment amounts",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method"},
		),
		PaymentErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradebook_payment_errors_total",
				Help: "Total number of payment errors by type",
			},
			[]string{"error_type"},
		),
		AllocationsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "tradebook_allocations_total",
			Help: "Total number of entry allocations written",
		}),

		// Ledger entry metrics
		EntriesCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradebook_entries_created_total",
				Help: "Total number of ledger entries created",
			},
			[]string{"kind"},
		),
		EntriesAdjusted: f.NewCounter(prometheus.CounterOpts{
			Name: "tradebook_entries_adjusted_total",
			Help: "Total number of ledger entry adjustments",
		}),

		// Reconciliation metrics
		ReconciliationRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "tradebook_reconciliation_runs_total",
			Help: "Total number of reconciliation runs",
		}),
		ReconciliationDiscrepancies: f.NewGauge(prometheus.GaugeOpts{
			Name: "tradebook_reconciliation_discrepancies",
			Help: "Discrepancies found by the last reconciliation run",
		}),

		// API metrics
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradebook_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradebook_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "tradebook_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		}),

		// Database metrics
		TxRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "tradebook_tx_retries_total",
			Help: "Total transaction retries after retryable store errors",
		}),
		DBErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradebook_db_errors_total",
				Help: "Total database errors",
			},
			[]string{"operation"},
		),
		OutboxLag: f.NewGauge(prometheus.GaugeOpts{
			Name: "tradebook_outbox_pending",
			Help: "Unpublished events seen by the last outbox poll",
		}),
		OutboxSent: f.NewCounter(prometheus.CounterOpts{
			Name: "tradebook_outbox_published_total",
			Help: "Total outbox events published",
		}),
		OutboxFails: f.NewCounter(prometheus.CounterOpts{
			Name: "tradebook_outbox_failures_total",
			Help: "Total outbox publish failures",
		}),

		// Redis metrics
		RedisOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradebook_redis_operations_total",
				Help: "Total Redis operations",
			},
			[]string{"operation"},
		),
		RedisErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradebook_redis_errors_total",
				Help: "Total Redis errors",
			},
			[]string{"operation"},
		),

		// Rate limiting metrics
		RateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradebook_rate_limit_hits_total",
				Help: "Total rate limit hits",
			},
			[]string{"method"},
		),
	}
}
