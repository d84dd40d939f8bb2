// Package metrics exposes Prometheus collectors for the bridge. A nil
// *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medisutra/bridge/internal/platform/fhir"
)

const namespace = "bridge"

// Collector owns a private registry and the bridge's metric families.
type Collector struct {
	registry *prometheus.Registry

	searches      prometheus.Counter
	searchResults prometheus.Histogram
	resolves      *prometheus.CounterVec
	importRows    *prometheus.CounterVec
	icdSync       *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	activeReqs    prometheus.Gauge
}

// New creates a collector with Go runtime and process collectors registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		searches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Free-text searches across all code systems.",
		}),
		searchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of codes returned per search.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mapping_resolutions_total",
			Help:      "Mapping resolutions by source system.",
		}, []string{"system"}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Imported NAMASTE rows by outcome.",
		}, []string{"outcome"}),
		icdSync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "icd_sync_total",
			Help:      "WHO ICD-11 entity sync attempts by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		activeReqs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_active_requests",
			Help:      "In-flight HTTP requests.",
		}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.searches, c.searchResults, c.resolves, c.importRows, c.icdSync,
		c.httpRequests, c.httpDuration, c.activeReqs,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) SearchPerformed(results int) {
	if c == nil {
		return
	}
	c.searches.Inc()
	c.searchResults.Observe(float64(results))
}

// MappingsResolved counts a resolution from system. Systems other than the
// three known ones share the "other" label.
func (c *Collector) MappingsResolved(system string) {
	if c == nil {
		return
	}
	c.resolves.WithLabelValues(systemLabel(system)).Inc()
}

func systemLabel(system string) string {
	switch system {
	case fhir.SystemNamaste, fhir.SystemICD11, fhir.SystemTM2:
		return system
	}
	return "other"
}

func (c *Collector) RowsImported(ok, failed int) {
	if c == nil {
		return
	}
	c.importRows.WithLabelValues("ok").Add(float64(ok))
	c.importRows.WithLabelValues("failed").Add(float64(failed))
}

// ICDSynced records one sync attempt; result is "fetched", "skipped" or "failed".
func (c *Collector) ICDSynced(result string) {
	if c == nil {
		return
	}
	c.icdSync.WithLabelValues(result).Inc()
}

// Middleware records request counts and latency per route pattern.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if c == nil {
				return next(ctx)
			}
			c.activeReqs.Inc()
			defer c.activeReqs.Dec()

			start := time.Now()
			err := next(ctx)
			if err != nil {
				ctx.Error(err)
			}

			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			method := ctx.Request().Method
			status := strconv.Itoa(ctx.Response().Status)
			c.httpRequests.WithLabelValues(method, route, status).Inc()
			c.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
