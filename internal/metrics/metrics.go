// Package metrics provides Prometheus metrics for the library service.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrlokans/schoollibrary/internal/library"
)

// Collector holds all Prometheus metrics for the service.
type Collector struct {
	// Engine metrics
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	CatalogEntries    prometheus.Gauge
	ActiveLoans       prometheus.Gauge
	Discrepancies     prometheus.Gauge

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
	stats    atomic.Pointer[func() library.Stats]
}

// New creates a collector registered with reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "library",
				Name:      "operations_total",
				Help:      "Engine operations by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "library",
				Name:      "operation_duration_seconds",
				Help:      "Engine operation duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"action"},
		),
		CatalogEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "library",
				Name:      "catalog_entries",
				Help:      "Number of entries in the catalog",
			},
		),
		ActiveLoans: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "library",
				Name:      "active_loans",
				Help:      "Number of items currently on loan",
			},
		),
		Discrepancies: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "library",
				Name:      "consistency_discrepancies",
				Help:      "Discrepancies found by the last consistency check",
			},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "library",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "library",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		gatherer: reg,
	}
}

// TrackStats makes Observe refresh the entry and loan gauges from source
// after every successful mutation.
func (c *Collector) TrackStats(source func() library.Stats) {
	c.stats.Store(&source)
}

// Observe records an engine event. It implements library.Observer.
func (c *Collector) Observe(e library.Event) {
	c.Operations.WithLabelValues(string(e.Action), Outcome(e.Err)).Inc()
	c.OperationDuration.WithLabelValues(string(e.Action)).Observe(e.Duration.Seconds())

	if e.Err != nil || !changesStats(e.Action) {
		return
	}
	if source := c.stats.Load(); source != nil {
		c.SetStats((*source)())
	}
}

func changesStats(action library.Action) bool {
	switch action {
	case library.ActionAddEntry, library.ActionRemoveEntry, library.ActionCheckout, library.ActionReturn:
		return true
	}
	return false
}

// SetStats publishes the current catalog size and loan count.
func (c *Collector) SetStats(s library.Stats) {
	c.CatalogEntries.Set(float64(s.Entries))
	c.ActiveLoans.Set(float64(s.ActiveLoans))
}

// SetDiscrepancies publishes the result of the last consistency check.
func (c *Collector) SetDiscrepancies(n int) {
	c.Discrepancies.Set(float64(n))
}

// Middleware records request counts and latency per route template.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := ctx.Request.Method
		c.RequestsTotal.WithLabelValues(method, path, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.RequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Outcome maps an engine error to a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, library.ErrAuthentication):
		return "unauthenticated"
	case errors.Is(err, library.ErrForbidden):
		return "forbidden"
	case errors.Is(err, library.ErrNotFound):
		return "not_found"
	case errors.Is(err, library.ErrInvalidEntry):
		return "invalid"
	case errors.Is(err, library.ErrDuplicateIdentifier),
		errors.Is(err, library.ErrAlreadyLoaned),
		errors.Is(err, library.ErrNoActiveLoan),
		errors.Is(err, library.ErrNotOwner),
		errors.Is(err, library.ErrActiveLoanExists):
		return "conflict"
	case errors.Is(err, library.ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
