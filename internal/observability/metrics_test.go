package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.ToolExecutionCounter.WithLabelValues("read_file", "success").Inc()
	m.ToolExecutionCounter.WithLabelValues("read_file", "success").Inc()
	m.CacheCounter.WithLabelValues("hit").Inc()

	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("read_file", "success")); got != 2 {
		t.Fatalf("tool counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CacheCounter.WithLabelValues("hit")); got != 1 {
		t.Fatalf("cache counter = %v, want 1", got)
	}
}

func TestMetricsPrivateRegistriesDoNotCollide(t *testing.T) {
	// Two instances on separate registries must not panic with duplicate
	// registration, which is what the default global registry would do.
	a := NewMetrics()
	b := NewMetrics()
	a.ActiveSessions.Inc()
	b.ActiveSessions.Inc()

	if got := testutil.ToFloat64(a.ActiveSessions); got != 1 {
		t.Fatalf("gauge = %v, want 1", got)
	}
}
