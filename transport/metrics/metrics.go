// Package metrics provides optional Prometheus instrumentation for the
// transport core. A nil *Recorder is safe to call every method on — every
// method nil-checks the receiver, so wiring metrics is opt-in and callers
// never need to guard call sites.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder records transport-level counters and histograms.
type Recorder struct {
	sends           *prometheus.CounterVec
	timeouts        prometheus.Counter
	closes          *prometheus.CounterVec
	connections     prometheus.Gauge
	requestLatency  prometheus.Histogram
	frameSize       prometheus.Histogram
	pendingGauge    prometheus.Gauge
	unknownHandlers prometheus.Counter
}

// NewRecorder registers clustercomm's metrics on reg and returns a
// Recorder. Pass a dedicated *prometheus.Registry in tests to avoid
// colliding with the process-default registry across parallel test runs.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clustercomm",
			Subsystem: "connection",
			Name:      "sends_total",
			Help:      "Request writes, labeled by outcome (ok, transport_error); sends refused on a closed or failed connection are not counted.",
		}, []string{"outcome"}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clustercomm",
			Subsystem: "connection",
			Name:      "timeouts_total",
			Help:      "Pending requests reaped for exceeding the 500ms response deadline.",
		}),
		closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clustercomm",
			Subsystem: "connection",
			Name:      "closes_total",
			Help:      "Connection closes, labeled by cause (user, exception, peer).",
		}, []string{"cause"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clustercomm",
			Subsystem: "connection",
			Name:      "open",
			Help:      "Currently open connections.",
		}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clustercomm",
			Subsystem: "connection",
			Name:      "request_latency_seconds",
			Help:      "Round-trip latency of completed send() calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		frameSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clustercomm",
			Subsystem: "wire",
			Name:      "frame_size_bytes",
			Help:      "Sizes of frame bodies written to the wire.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		}),
		pendingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clustercomm",
			Subsystem: "connection",
			Name:      "pending",
			Help:      "Pending (unanswered) requests of the connection that last updated it; not summed across connections.",
		}),
		unknownHandlers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clustercomm",
			Subsystem: "connection",
			Name:      "unknown_message_type_total",
			Help:      "Inbound requests for which no handler was registered.",
		}),
	}
	reg.MustRegister(r.sends, r.timeouts, r.closes, r.connections, r.requestLatency, r.frameSize, r.pendingGauge, r.unknownHandlers)
	return r
}

func (r *Recorder) RecordSend(outcome string) {
	if r == nil {
		return
	}
	r.sends.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordTimeout() {
	if r == nil {
		return
	}
	r.timeouts.Inc()
}

func (r *Recorder) RecordClose(cause string) {
	if r == nil {
		return
	}
	r.closes.WithLabelValues(cause).Inc()
}

func (r *Recorder) ConnectionOpened() {
	if r == nil {
		return
	}
	r.connections.Inc()
}

func (r *Recorder) ConnectionClosed() {
	if r == nil {
		return
	}
	r.connections.Dec()
}

func (r *Recorder) ObserveRequestLatencySeconds(s float64) {
	if r == nil {
		return
	}
	r.requestLatency.Observe(s)
}

func (r *Recorder) ObserveFrameSize(n int) {
	if r == nil {
		return
	}
	r.frameSize.Observe(float64(n))
}

func (r *Recorder) SetPending(n int) {
	if r == nil {
		return
	}
	r.pendingGauge.Set(float64(n))
}

func (r *Recorder) RecordUnknownMessageType() {
	if r == nil {
		return
	}
	r.unknownHandlers.Inc()
}
