package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the push-to-talk client
type Metrics struct {
	// Session metrics
	SessionsOpened   prometheus.Counter
	SessionsClosed   prometheus.Counter
	ConnectFailures  prometheus.Counter
	UtteranceSeconds prometheus.Histogram

	// Audio streaming metrics
	FramesSent    prometheus.Counter
	BytesSent     prometheus.Counter
	FrameReadErrs prometheus.Counter
	SendFailures  prometheus.Counter

	// Completion metrics
	AcksOK            prometheus.Counter
	AckAnomalies      prometheus.Counter
	ProcessingTimeout prometheus.Counter
	ProcessingSeconds prometheus.Histogram

	// Machine state
	MachineState *prometheus.GaugeVec

	// Input metrics
	PressEdges   prometheus.Counter
	ReleaseEdges prometheus.Counter
	Resumes      prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kenta_sessions_opened_total",
			Help: "Total number of utterance sessions opened",
		}),
		SessionsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kenta_sessions_closed_total",
			Help: "Total number of utterance sessions closed",
		}),
		ConnectFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kenta_connect_failures_total",
			Help: "Total number of failed backend connection attempts",
		}),
		UtteranceSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kenta_utterance_duration_seconds",
			Help:    "Duration of utterance sessions from open to close",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~8.5 minutes
		}),

		FramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kenta_frames_sent_total",
			Help: "Total number of audio frames streamed to the backend",
		}),
		BytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kenta_bytes_sent_total",
			Help: "Total audio payload bytes streamed to the backend",
		}),
		FrameReadErrs: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kenta_frame_read_errors_total",
			Help: "Total number of non-fatal capture read errors",
		}),
		SendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kenta_send_failures_total",
			Help: "Total number of mid-stream send failures aborting an utterance",
		}),

		AcksOK: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kenta_acks_ok_total",
			Help: "Total number of utterances acknowledged successfully",
		}),
		AckAnomalies: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kenta_ack_anomalies_total",
			Help: "Total number of anomalous completions (bad byte, peer close, read error)",
		}),
		ProcessingTimeout: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kenta_processing_timeouts_total",
			Help: "Total number of utterances abandoned at the processing deadline",
		}),
		ProcessingSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kenta_processing_duration_seconds",
			Help:    "Time from end marker to completion",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2 minutes
		}),

		MachineState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kenta_machine_state",
			Help: "Current machine state (1 for the active state, 0 otherwise)",
		}, []string{"state"}),

		PressEdges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kenta_press_edges_total",
			Help: "Total number of debounced press edges",
		}),
		ReleaseEdges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kenta_release_edges_total",
			Help: "Total number of debounced release edges",
		}),
		Resumes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kenta_resumes_total",
			Help: "Total number of re-presses resuming a session within the grace period",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kenta_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kenta_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kenta_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// SetMachineState marks the given state active and all others inactive
func (m *Metrics) SetMachineState(active string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == active {
			v = 1.0
		}
		m.MachineState.WithLabelValues(s).Set(v)
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
