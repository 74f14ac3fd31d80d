package triage

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsHooks(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	h := m.Hooks()

	h.OnModelCall(KindNone, 120*time.Millisecond)
	h.OnModelCall(KindTimeout, 5*time.Second)
	h.OnComplete(&CompleteEvent{Kind: KindNone, Model: claudeTestModel, Duration: 0.2})
	h.OnComplete(&CompleteEvent{Kind: KindTimeout, Model: claudeTestModel, Duration: 5})
	h.OnComplete(&CompleteEvent{Kind: KindTimeout, Model: claudeTestModel, Duration: 5})

	if got := testutil.ToFloat64(m.TriagesTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("triages_total{success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TriagesTotal.WithLabelValues("timeout")); got != 2 {
		t.Errorf("triages_total{timeout} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ModelCallsTotal.WithLabelValues("timeout")); got != 1 {
		t.Errorf("model_calls_total{timeout} = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.ModelCallDuration); n != 2 {
		t.Errorf("model call duration series = %d, want 2", n)
	}
}
