// Package metrics collects and exposes Prometheus metrics for API calls and
// cache lookups.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the measurement surface used by the API client and the
// action orchestrator.
type Recorder interface {
	RecordRequest(method, route string, status int, elapsed time.Duration)
	RecordCacheLookup(action string, hit bool)
}

// Collector records metrics into a Prometheus registry.
type Collector struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zheye_api_requests_total",
			Help: "API calls by method, route and response status (0 when no response).",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zheye_api_request_duration_seconds",
			Help:    "API call latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zheye_cache_lookups_total",
			Help: "Cache guard outcomes per action.",
		}, []string{"action", "result"}),
	}
	reg.MustRegister(c.requests, c.duration, c.cacheLookups)
	return c
}

// RecordRequest counts one API call and observes its latency.
func (c *Collector) RecordRequest(method, route string, status int, elapsed time.Duration) {
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordCacheLookup counts a guard decision as hit or miss.
func (c *Collector) RecordCacheLookup(action string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(action, result).Inc()
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordRequest(string, string, int, time.Duration) {}
func (Nop) RecordCacheLookup(string, bool)                   {}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Mux serves Handler on /metrics.
func Mux(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
