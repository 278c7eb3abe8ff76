package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDialogMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDialogMetrics(reg)

	m.ObserveInbound("telegram", "processed")
	m.ObserveInbound("telegram", "processed")
	m.ObserveInbound("instagram", "duplicate")
	m.ObserveIntent("availability")
	m.ObserveReply("telegram", true)
	m.ObserveReply("telegram", false)

	if got := testutil.ToFloat64(m.inboundTotal.WithLabelValues("telegram", "processed")); got != 2 {
		t.Fatalf("expected 2 processed telegram messages, got %v", got)
	}
	if got := testutil.ToFloat64(m.replyTotal.WithLabelValues("telegram", "failed")); got != 1 {
		t.Fatalf("expected 1 failed reply, got %v", got)
	}
	if got := testutil.ToFloat64(m.intentTotal.WithLabelValues("availability")); got != 1 {
		t.Fatalf("expected 1 availability intent, got %v", got)
	}
}

func TestDialogMetricsPMSLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDialogMetrics(reg)
	m.ObservePMS("availability", time.Now().Add(-50*time.Millisecond), nil)
	m.ObservePMS("availability", time.Now(), errors.New("boom"))
	m.ObserveWebhookLatency("telegram", 0.2)

	if n := testutil.CollectAndCount(m.pmsLatency); n != 2 {
		t.Fatalf("expected ok and error series, got %d", n)
	}
}

func TestDialogMetricsNilSafe(t *testing.T) {
	var m *DialogMetrics
	m.ObserveInbound("telegram", "processed")
	m.ObserveIntent("fallback")
	m.ObserveReply("telegram", true)
	m.ObservePMS("availability", time.Now(), nil)
	m.ObserveWebhookLatency("telegram", 0.1)
}
