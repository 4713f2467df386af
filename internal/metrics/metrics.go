package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics exported by spikebot.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Evaluations     *prometheus.CounterVec
	AlertsEmitted   *prometheus.CounterVec
	DataUnavailable *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
	Cycles          *prometheus.CounterVec
	Deliveries      *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spikebot_evaluations_total",
			Help: "Spike evaluations by period and outcome",
		}, []string{"period", "outcome"}),

		AlertsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spikebot_alerts_emitted_total",
			Help: "Alerts emitted by period",
		}, []string{"period"}),

		DataUnavailable: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spikebot_data_unavailable_total",
			Help: "Price history queries that failed, by symbol",
		}, []string{"symbol"}),

		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "spikebot_cycle_duration_seconds",
			Help:    "Wall time of one batch alert cycle",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spikebot_cycles_total",
			Help: "Batch alert cycles by result",
		}, []string{"result"}),

		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spikebot_deliveries_total",
			Help: "Notification deliveries by sender and result",
		}, []string{"sender", "result"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spikebot_http_requests_total",
			Help: "API requests by method and status",
		}, []string{"method", "status"}),
	}
}

// RecordEvaluation counts one evaluation outcome (alert, quiet, reset, unavailable).
func (m *Metrics) RecordEvaluation(period, outcome string) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(period, outcome).Inc()
	if outcome == "alert" {
		m.AlertsEmitted.WithLabelValues(period).Inc()
	}
}

// RecordDataUnavailable counts a failed price history query.
func (m *Metrics) RecordDataUnavailable(symbol string) {
	if m == nil {
		return
	}
	m.DataUnavailable.WithLabelValues(symbol).Inc()
}

// RecordCycle records the duration and result of a batch cycle.
func (m *Metrics) RecordCycle(seconds float64, result string) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(seconds)
	m.Cycles.WithLabelValues(result).Inc()
}

// RecordDelivery counts a notification delivery attempt.
func (m *Metrics) RecordDelivery(sender string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.Deliveries.WithLabelValues(sender, result).Inc()
}

// RecordHTTPRequest counts a served API request.
func (m *Metrics) RecordHTTPRequest(method, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, status).Inc()
}
