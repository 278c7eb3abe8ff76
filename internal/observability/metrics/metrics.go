package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "guesthub"

// DialogMetrics exposes counters/histograms for the inbound dialog pipeline.
type DialogMetrics struct {
	inboundTotal   *prometheus.CounterVec
	intentTotal    *prometheus.CounterVec
	replyTotal     *prometheus.CounterVec
	pmsLatency     *prometheus.HistogramVec
	webhookLatency *prometheus.HistogramVec
}

func NewDialogMetrics(reg prometheus.Registerer) *DialogMetrics {
	m := &DialogMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dialog",
			Name:      "inbound_messages_total",
			Help:      "Inbound guest messages by channel and handling status",
		}, []string{"channel", "status"}),
		intentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dialog",
			Name:      "intents_total",
			Help:      "Classified intents",
		}, []string{"intent"}),
		replyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dialog",
			Name:      "replies_total",
			Help:      "Outbound replies by channel and send status",
		}, []string{"channel", "status"}),
		pmsLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pms",
			Name:      "request_duration_seconds",
			Help:      "Latency of property system calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "channels",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of channel webhook handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.intentTotal, m.replyTotal, m.pmsLatency, m.webhookLatency)
	return m
}

func (m *DialogMetrics) ObserveInbound(channel, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(channel, status).Inc()
}

func (m *DialogMetrics) ObserveIntent(intent string) {
	if m == nil {
		return
	}
	m.intentTotal.WithLabelValues(intent).Inc()
}

func (m *DialogMetrics) ObserveReply(channel string, sent bool) {
	if m == nil {
		return
	}
	status := "sent"
	if !sent {
		status = "failed"
	}
	m.replyTotal.WithLabelValues(channel, status).Inc()
}

// ObservePMS records a property system call started at start.
func (m *DialogMetrics) ObservePMS(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.pmsLatency.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

func (m *DialogMetrics) ObserveWebhookLatency(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(channel).Observe(seconds)
}
