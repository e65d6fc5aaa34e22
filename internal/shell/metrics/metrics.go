// Package metrics exposes Prometheus metrics for definition analyses.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artpar/composer/internal/core/diag"
)

const namespace = "composer"

// Collector holds the analysis metrics. Each collector owns its registry, so
// tests can create as many as they need.
type Collector struct {
	registry *prometheus.Registry

	Analyses     *prometheus.CounterVec
	Diagnostics  *prometheus.CounterVec
	Duration     prometheus.Histogram
	Resolutions  *prometheus.CounterVec
	HTTPRequests *prometheus.CounterVec
}

// New creates a collector with the Go and process collectors registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Analyses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analyses_total",
				Help:      "Definitions analysed, by outcome",
			},
			[]string{"outcome"},
		),
		Diagnostics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "diagnostics_total",
				Help:      "Diagnostics reported, by kind and severity",
			},
			[]string{"kind", "severity"},
		),
		Duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analysis_duration_seconds",
				Help:      "Time spent analysing one definition",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
		),
		Resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Root resolutions performed by runtime compositions",
			},
			[]string{"root", "outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests served, by route and status",
			},
			[]string{"method", "route", "status"},
		),
	}

	c.registry.MustRegister(
		c.Analyses,
		c.Diagnostics,
		c.Duration,
		c.Resolutions,
		c.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveAnalysis records one finished analysis.
func (c *Collector) ObserveAnalysis(success bool, diagnostics []diag.Diagnostic, elapsed time.Duration) {
	c.Analyses.WithLabelValues(outcome(success)).Inc()
	c.Duration.Observe(elapsed.Seconds())
	for _, d := range diagnostics {
		c.Diagnostics.WithLabelValues(string(d.Kind), d.Severity.String()).Inc()
	}
}

// ObserveParseFailure records a definition that could not be decoded.
func (c *Collector) ObserveParseFailure() {
	c.Analyses.WithLabelValues("invalid").Inc()
}

// ObserveResolve records one runtime resolution.
func (c *Collector) ObserveResolve(root string, err error) {
	c.Resolutions.WithLabelValues(root, outcome(err == nil)).Inc()
}

// ObserveRequest records one served HTTP request.
func (c *Collector) ObserveRequest(method, route string, status int) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
