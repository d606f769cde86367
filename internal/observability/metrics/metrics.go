package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReminderMetrics exposes counters/histograms for the reminder pipeline.
type ReminderMetrics struct {
	enqueuedTotal *prometheus.CounterVec
	sendTotal     *prometheus.CounterVec
	sendLatency   prometheus.Histogram
	inboundTotal  *prometheus.CounterVec
	sessionStatus *prometheus.GaugeVec
}

func NewReminderMetrics(reg prometheus.Registerer) *ReminderMetrics {
	m := &ReminderMetrics{
		enqueuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clicksaude",
			Subsystem: "reminder",
			Name:      "enqueued_total",
			Help:      "Reminder jobs enqueued, by outcome",
		}, []string{"outcome"}),
		sendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clicksaude",
			Subsystem: "reminder",
			Name:      "send_total",
			Help:      "Reminder send attempts, by outcome",
		}, []string{"outcome"}),
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clicksaude",
			Subsystem: "reminder",
			Name:      "send_latency_seconds",
			Help:      "Latency of WhatsApp reminder sends",
			Buckets:   prometheus.DefBuckets,
		}),
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clicksaude",
			Subsystem: "reminder",
			Name:      "inbound_total",
			Help:      "Inbound patient messages, by routing outcome",
		}, []string{"outcome"}),
		sessionStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "clicksaude",
			Subsystem: "whatsapp",
			Name:      "session_status",
			Help:      "Current session status (1 for the active state)",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.enqueuedTotal, m.sendTotal, m.sendLatency, m.inboundTotal, m.sessionStatus)
	return m
}

// ObserveEnqueue records one scheduler decision: "queued", "skipped" or "error".
func (m *ReminderMetrics) ObserveEnqueue(outcome string) {
	if m == nil {
		return
	}
	m.enqueuedTotal.WithLabelValues(outcome).Inc()
}

// ObserveSend records one delivery attempt outcome: "sent", "retry",
// "permanent_failure" or "exhausted".
func (m *ReminderMetrics) ObserveSend(outcome string) {
	if m == nil {
		return
	}
	m.sendTotal.WithLabelValues(outcome).Inc()
}

// ObserveSendLatency records how long a WhatsApp send took.
func (m *ReminderMetrics) ObserveSendLatency(seconds float64) {
	if m == nil {
		return
	}
	m.sendLatency.Observe(seconds)
}

// ObserveInbound records one inbound routing outcome: "confirmation",
// "cancellation", "reinforcement", "institutional", "duplicate" or "error".
func (m *ReminderMetrics) ObserveInbound(outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(outcome).Inc()
}

// SetSessionStatus flips the status gauge so exactly one state reads 1.
func (m *ReminderMetrics) SetSessionStatus(status string) {
	if m == nil {
		return
	}
	for _, s := range []string{"DISCONNECTED", "CONNECTING", "WAITING_QR", "CONNECTED", "AUTH_FAILED"} {
		v := 0.0
		if s == status {
			v = 1.0
		}
		m.sessionStatus.WithLabelValues(s).Set(v)
	}
}
