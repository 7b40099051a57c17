package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the client's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	readingsTotal     *prometheus.CounterVec
	drainedTotal      *prometheus.CounterVec
	framesTotal       *prometheus.CounterVec
	sessionState      *prometheus.GaugeVec
	pushDuration      *prometheus.HistogramVec
	cbState           *prometheus.GaugeVec
	pending           prometheus.Gauge
}

var sessionStates = []string{"DISCONNECTED", "CONNECTING", "AUTHENTICATING", "AUTHENTICATED", "FAILED"}

// NewMetrics registers the collectors on reg. A nil reg uses a private registry,
// which keeps tests from colliding on the global one.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		readingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorlink_readings_total",
			Help: "Readings recorded, by outcome (synced, buffered, error).",
		}, []string{"outcome"}),
		drainedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorlink_drained_entries_total",
			Help: "Queued entries processed by sync passes, by result.",
		}, []string{"result"}),
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorlink_frames_total",
			Help: "Frames read from the device, by kind.",
		}, []string{"kind"}),
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sensorlink_session_state",
			Help: "1 for the current device session state, 0 otherwise.",
		}, []string{"state"}),
		pushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sensorlink_cloud_push_duration_seconds",
			Help:    "Cloud push latency by backend and result.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend", "result"}),
		cbState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cb_state",
			Help: "Circuit breaker state gauge (0 closed, 1 half, 2 open).",
		}, []string{"target"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensorlink_pending_entries",
			Help: "Entries waiting in the local queue after the last check.",
		}),
	}

	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpDuration,
		m.readingsTotal,
		m.drainedTotal,
		m.framesTotal,
		m.sessionState,
		m.pushDuration,
		m.cbState,
		m.pending,
	)
	m.SetSessionState("DISCONNECTED")

	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

// Handler exposes the registry the metrics were registered on.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Reading(outcome string) {
	if m == nil {
		return
	}
	m.readingsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Drained(result string) {
	if m == nil {
		return
	}
	m.drainedTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Frame(kind string) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetSessionState(state string) {
	if m == nil {
		return
	}
	for _, s := range sessionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.sessionState.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) CloudPush(backend string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.pushDuration.WithLabelValues(backend, result).Observe(duration.Seconds())
}

func (m *Metrics) SetBreakerState(target string, state int) {
	if m == nil {
		return
	}
	m.cbState.WithLabelValues(target).Set(float64(state))
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
