package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewWithRegisterer(registry)

	if m.PaymentsCreated == nil || m.HTTPRequests == nil || m.TxRetries == nil {
		t.Fatalf("expected key metrics to be initialized: %+v", m)
	}

	m.PaymentsCreated.Inc()
	m.PaymentErrors.WithLabelValues("validation").Inc()

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	if len(metricFamilies) == 0 {
		t.Fatalf("expected registered metrics, got none")
	}

	if got := testutil.ToFloat64(m.PaymentsCreated); got != 1 {
		t.Fatalf("expected 1 payment created, got %v", got)
	}

	if got := testutil.ToFloat64(m.PaymentErrors.WithLabelValues("validation")); got != 1 {
		t.Fatalf("expected 1 validation error, got %v", got)
	}
}

func TestNewWithRegistererIsolated(t *testing.T) {
	// Separate registries must not collide on metric names.
	a := NewWithRegisterer(prometheus.NewRegistry())
	b := NewWithRegisterer(prometheus.NewRegistry())

	a.EntriesAdjusted.Inc()

	if got := testutil.ToFloat64(b.EntriesAdjusted); got != 0 {
		t.Fatalf("expected isolated counters, got %v", got)
	}
}
