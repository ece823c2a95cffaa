package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Admission and session metrics
	Admissions     *prometheus.CounterVec
	SessionsActive prometheus.Gauge
	TabsActive     prometheus.Gauge

	// Streaming metrics
	FramesRelayed    prometheus.Counter
	FramesSuperseded prometheus.Counter
	WSMessages       *prometheus.CounterVec

	// Transfer and policy metrics
	Downloads    *prometheus.CounterVec
	PolicyBlocks *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates a metrics collector registered on reg. Passing nil uses
// a fresh private registry, which keeps tests independent of each other.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bastion_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bastion_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		Admissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bastion_admissions_total",
				Help: "Control channel admission decisions",
			},
			[]string{"result"},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bastion_sessions_active",
				Help: "Number of live control sessions",
			},
		),
		TabsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bastion_tabs_active",
				Help: "Number of live render targets across all sessions",
			},
		),

		FramesRelayed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bastion_frames_relayed_total",
				Help: "Screencast frames forwarded to clients",
			},
		),
		FramesSuperseded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bastion_frames_superseded_total",
				Help: "Screencast frames dropped in favour of a newer frame",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bastion_ws_messages_total",
				Help: "Total number of control channel messages",
			},
			[]string{"direction", "type"},
		),

		Downloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bastion_downloads_total",
				Help: "Completed downloads announced to clients",
			},
			[]string{"source"},
		),
		PolicyBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bastion_policy_blocks_total",
				Help: "Operations vetoed by URL or threat policy",
			},
			[]string{"kind"},
		),
	}
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAdmission records an admission decision ("admitted", "invalid_credential", "over_capacity").
func (m *Metrics) RecordAdmission(result string) {
	if m == nil {
		return
	}
	m.Admissions.WithLabelValues(result).Inc()
}

// SessionOpened and SessionClosed track live sessions.
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.SessionsActive.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.SessionsActive.Dec()
	}
}

// TabOpened and TabClosed track live render targets.
func (m *Metrics) TabOpened() {
	if m != nil {
		m.TabsActive.Inc()
	}
}

func (m *Metrics) TabClosed() {
	if m != nil {
		m.TabsActive.Dec()
	}
}

// RecordFrame counts a relayed frame.
func (m *Metrics) RecordFrame() {
	if m != nil {
		m.FramesRelayed.Inc()
	}
}

// RecordSupersededFrame counts a frame replaced before delivery.
func (m *Metrics) RecordSupersededFrame() {
	if m != nil {
		m.FramesSuperseded.Inc()
	}
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// RecordDownload counts a finished download by source ("engine", "url").
func (m *Metrics) RecordDownload(source string) {
	if m == nil {
		return
	}
	m.Downloads.WithLabelValues(source).Inc()
}

// RecordPolicyBlock counts a vetoed operation ("url_guard", "threat_scan").
func (m *Metrics) RecordPolicyBlock(kind string) {
	if m == nil {
		return
	}
	m.PolicyBlocks.WithLabelValues(kind).Inc()
}
