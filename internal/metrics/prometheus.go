package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the audio streamer.
type Metrics struct {
	// Session metrics
	SessionsOpen  prometheus.Gauge
	ReadOverflows *prometheus.CounterVec

	// Capture cycle metrics
	ReadCycles    prometheus.Counter
	EmptyCycles   prometheus.Counter
	ReadErrors    *prometheus.CounterVec
	ReadTimeouts  *prometheus.CounterVec
	CycleDuration prometheus.Histogram

	// Output metrics
	FramesYielded      prometheus.Counter
	MixedChunksYielded prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		SessionsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "psl_device_sessions_open",
			Help: "Current number of open device sessions",
		}),
		ReadOverflows: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "psl_device_read_overflows_total",
			Help: "Total number of input buffer overflows per device",
		}, []string{"device"}),

		// Capture cycle metrics
		ReadCycles: promauto.NewCounter(prometheus.CounterOpts{
			Name: "psl_read_cycles_total",
			Help: "Total number of capture read cycles executed",
		}),
		EmptyCycles: promauto.NewCounter(prometheus.CounterOpts{
			Name: "psl_empty_cycles_total",
			Help: "Total number of cycles in which no device produced data",
		}),
		ReadErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "psl_device_read_errors_total",
			Help: "Total number of failed device reads per device",
		}, []string{"device"}),
		ReadTimeouts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "psl_device_read_timeouts_total",
			Help: "Total number of timed-out device reads per device",
		}, []string{"device"}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "psl_cycle_duration_seconds",
			Help:    "Duration of capture read cycles",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),

		// Output metrics
		FramesYielded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "psl_multi_channel_frames_total",
			Help: "Total number of multi-channel frames yielded",
		}),
		MixedChunksYielded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "psl_mixed_chunks_total",
			Help: "Total number of mixed mono chunks yielded",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "psl_http_requests_total",
			Help: "Total number of HTTP API requests",
		}, []string{"endpoint", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "psl_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10), // 0.5ms to ~0.5s
		}, []string{"endpoint"}),
	}
}
