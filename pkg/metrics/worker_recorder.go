// Package metrics records sync engine metrics on a Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "campaign_sync"

// =============================================================================
// Recorder
// =============================================================================

// Recorder owns the collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	stageDuration    *prometheus.HistogramVec
	stageRuns        *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
	providerRequests *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec
}

// NewRecorder creates a recorder with its own registry, including the Go
// runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of one sync stage run.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		}, []string{"stage", "result"}),
		stageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Sync stage runs by result.",
		}, []string{"stage", "result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one full sync cycle.",
			Buckets:   []float64{10, 60, 300, 900, 1800, 3600, 7200},
		}),
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Provider API requests by endpoint and status class.",
		}, []string{"endpoint", "status"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_rate_limited_total",
			Help:      "Provider responses with HTTP 429.",
		}, []string{"endpoint"}),
	}

	r.registry.MustRegister(
		r.stageDuration,
		r.stageRuns,
		r.cycleDuration,
		r.providerRequests,
		r.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// =============================================================================
// Observations
// =============================================================================

func (r *Recorder) ObserveStage(stage string, d time.Duration, err error) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	r.stageDuration.WithLabelValues(stage, result).Observe(d.Seconds())
	r.stageRuns.WithLabelValues(stage, result).Inc()
}

func (r *Recorder) ObserveCycle(d time.Duration) {
	if r == nil {
		return
	}
	r.cycleDuration.Observe(d.Seconds())
}

// ProviderRequest counts one provider response. status 0 means the request
// never got a response.
func (r *Recorder) ProviderRequest(endpoint string, status int) {
	if r == nil {
		return
	}
	r.providerRequests.WithLabelValues(endpoint, StatusClass(status)).Inc()
}

func (r *Recorder) RateLimited(endpoint string) {
	if r == nil {
		return
	}
	r.rateLimited.WithLabelValues(endpoint).Inc()
}

// StatusClass folds an HTTP status into "2xx", "4xx" and so on.
func StatusClass(status int) string {
	switch {
	case status <= 0:
		return "error"
	case status == http.StatusTooManyRequests:
		return "429"
	case status < 200 || status >= 600:
		return "other"
	}
	return string(rune('0'+status/100)) + "xx"
}
