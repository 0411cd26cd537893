// Package metrics exposes Prometheus instrumentation for the ingest daemon.
//
// Metrics live on a private registry so tests and multiple daemons in one
// process do not collide.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ingest/internal/records"
)

const namespace = "ingest"

// StatusCounter reports record counts per status at scrape time.
type StatusCounter func(context.Context) (records.HealthSummary, error)

// Metrics groups the daemon's collectors.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	claimed      prometheus.Counter
	polls        *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	reclaimed    prometheus.Counter
}

// New builds a registry with process, runtime and ingest collectors. When
// counter is non-nil, record counts per status are exported as a gauge.
func New(counter StatusCounter) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		claimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_claimed_total",
			Help:      "Records moved from READY to QUEUED by polls.",
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Poll requests by result (claimed, empty, error).",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Worker status reports by requested status and outcome kind.",
		}, []string{"status", "outcome"}),
		reclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_reclaimed_total",
			Help:      "Stale claims returned to READY by the reaper.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.claimed,
		m.polls,
		m.transitions,
		m.reclaimed,
	)
	if counter != nil {
		reg.MustRegister(newStatusCollector(counter))
	}
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObservePoll records the outcome of one poll.
func (m *Metrics) ObservePoll(claimed int, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.polls.WithLabelValues("error").Inc()
	case claimed == 0:
		m.polls.WithLabelValues("empty").Inc()
	default:
		m.polls.WithLabelValues("claimed").Inc()
		m.claimed.Add(float64(claimed))
	}
}

// ObserveTransition records a worker status report and its outcome.
func (m *Metrics) ObserveTransition(status records.Status, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = records.ErrorKind(err)
	}
	m.transitions.WithLabelValues(string(status), outcome).Inc()
}

// ObserveReclaimed records records returned by the stale-claim reaper.
func (m *Metrics) ObserveReclaimed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reclaimed.Add(float64(n))
}

// Middleware records request counts and latency by chi route pattern, which
// keeps record ids out of the label values.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := newStatusRecorder(w)
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the original writer.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

type statusCollector struct {
	counter StatusCounter
	desc    *prometheus.Desc
}

func newStatusCollector(counter StatusCounter) *statusCollector {
	return &statusCollector{
		counter: counter,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "records"),
			"Records currently in each lifecycle status.",
			[]string{"status"}, nil,
		),
	}
}

func (c *statusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *statusCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	summary, err := c.counter(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.desc, err)
		return
	}
	for _, status := range records.AllStatuses() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(summary.Counts[status]), string(status))
	}
}
