// Package telemetry exposes peer suspicion and HTTP request metrics in the
// Prometheus exposition format.
package telemetry

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/obsidianstack/phimon/receiver/internal/monitor"
)

const namespace = "phimon"

// Metrics owns a registry and implements monitor.Observer.
type Metrics struct {
	reg *prometheus.Registry

	peerPhi    *prometheus.GaugeVec
	heartbeats prometheus.Counter
	abandoned  prometheus.Counter
	intervals  prometheus.Histogram
	active     prometheus.Gauge

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        *prometheus.GaugeVec

	buildInfo *prometheus.GaugeVec

	mu    sync.Mutex
	peers map[string]uint64 // peer -> heartbeats already counted
}

// New builds a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		reg:   prometheus.NewRegistry(),
		peers: make(map[string]uint64),

		peerPhi: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "peer_phi",
				Help:      "Suspicion level of each connected peer at its last step.",
			},
			[]string{"peer"},
		),
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Heartbeats recorded across all peers, including connection accepts.",
		}),
		abandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peers_abandoned_total",
			Help:      "Connections dropped because a stable peer went silent.",
		}),
		intervals: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "heartbeat_interval_seconds",
			Help:      "Observed gaps between consecutive heartbeats.",
			// 10ms .. ~40s.
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 13),
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Peers with a running session.",
		}),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"op", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Latency of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
			},
			[]string{"op"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"op"},
		),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_info",
				Help:      "Build info (constant 1, labeled by version and git_sha).",
			},
			[]string{"version", "git_sha"},
		),
	}

	start := time.Now()
	uptime := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(start).Seconds() },
	)

	m.reg.MustRegister(
		m.peerPhi, m.heartbeats, m.abandoned, m.intervals, m.active,
		m.requestsTotal, m.requestDuration, m.inFlight,
		m.buildInfo, uptime,
	)
	return m
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler exposes /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup, e.g. with ldflags-provided values.
func (m *Metrics) SetBuildInfo(version, gitSHA string) {
	m.buildInfo.WithLabelValues(version, gitSHA).Set(1)
}

// Observe implements monitor.Observer.
func (m *Metrics) Observe(st monitor.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counted := m.peers[st.Peer]
	if st.Heartbeats > counted {
		m.heartbeats.Add(float64(st.Heartbeats - counted))
		if counted > 0 && st.LastInterval > 0 {
			m.intervals.Observe(st.LastInterval.Seconds())
		}
	}

	if st.Final() {
		delete(m.peers, st.Peer)
		m.peerPhi.DeleteLabelValues(st.Peer)
		if st.State == monitor.StateAbandoned {
			m.abandoned.Inc()
		}
	} else {
		m.peers[st.Peer] = st.Heartbeats
		m.peerPhi.WithLabelValues(st.Peer).Set(st.Phi)
	}
	m.active.Set(float64(len(m.peers)))
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an http.Handler to record metrics under the provided "op" label.
func (m *Metrics) Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.inFlight.WithLabelValues(op).Inc()
		defer m.inFlight.WithLabelValues(op).Dec()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		m.requestsTotal.WithLabelValues(op, class).Inc()
		m.requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	})
}
