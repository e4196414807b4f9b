// Package metrics exposes Prometheus instrumentation for the factorization
// engine: job lifecycle counters, per-stage duration histograms, and HTTP
// request metrics for the API server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles every metric the engine and server report. A process
// should create exactly one Collector; a second NewCollector call panics on
// duplicate registration.
type Collector struct {
	jobsSubmitted prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	queueDepth    prometheus.Gauge

	stageDuration *prometheus.HistogramVec
	factorsFound  *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector creates and registers all engine metrics with the default
// Prometheus registerer.
func NewCollector() *Collector {
	c := &Collector{
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "factor_jobs_submitted_total",
			Help: "Total number of factorization jobs submitted",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factor_jobs_finished_total",
			Help: "Total number of jobs reaching a terminal status",
		}, []string{"status"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "factor_jobs_running",
			Help: "Current number of jobs being executed",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "factor_queue_depth",
			Help: "Current number of jobs waiting in the work queue",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "factor_stage_duration_seconds",
			Help: "Wall-clock time spent in each factorization stage",
			// Stages range from milliseconds (trial division on small
			// inputs) to hours (ECM on large semiprimes).
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 12),
		}, []string{"stage"}),
		factorsFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factor_factors_found_total",
			Help: "Total number of non-trivial factors found, by algorithm",
		}, []string{"algorithm"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factor_http_requests_total",
			Help: "Total number of HTTP requests served",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "factor_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	prometheus.MustRegister(c.jobsSubmitted)
	prometheus.MustRegister(c.jobsFinished)
	prometheus.MustRegister(c.jobsRunning)
	prometheus.MustRegister(c.queueDepth)
	prometheus.MustRegister(c.stageDuration)
	prometheus.MustRegister(c.factorsFound)
	prometheus.MustRegister(c.httpRequests)
	prometheus.MustRegister(c.httpDuration)

	return c
}

// RecordJobSubmitted increments the submission counter.
func (c *Collector) RecordJobSubmitted() {
	if c == nil {
		return
	}
	c.jobsSubmitted.Inc()
}

// RecordJobFinished records a job reaching a terminal status.
func (c *Collector) RecordJobFinished(status string) {
	if c == nil {
		return
	}
	c.jobsFinished.WithLabelValues(status).Inc()
}

// JobStarted increments the running-jobs gauge.
func (c *Collector) JobStarted() {
	if c == nil {
		return
	}
	c.jobsRunning.Inc()
}

// JobStopped decrements the running-jobs gauge.
func (c *Collector) JobStopped() {
	if c == nil {
		return
	}
	c.jobsRunning.Dec()
}

// SetQueueDepth reports the number of jobs waiting for a worker.
func (c *Collector) SetQueueDepth(n int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(n))
}

// ObserveStageDuration records how long a stage ran before returning.
func (c *Collector) ObserveStageDuration(stage string, seconds float64) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordFactorFound counts a non-trivial factor, attributed to the algorithm
// that produced it.
func (c *Collector) RecordFactorFound(algorithm string) {
	if c == nil {
		return
	}
	c.factorsFound.WithLabelValues(algorithm).Inc()
}

// RecordHTTPRequest records one served request for the API server.
func (c *Collector) RecordHTTPRequest(method, path string, status int, seconds float64) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, path, httpStatusLabel(status)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(seconds)
}

// httpStatusLabel collapses status codes into their class (2xx, 4xx, ...)
// to keep label cardinality bounded.
func httpStatusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

// Handler returns the HTTP handler that serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
