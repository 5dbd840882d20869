package observability

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"grocerylist/application/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Remote store metrics
	RemoteRequests *prometheus.CounterVec
	RemoteDuration *prometheus.HistogramVec

	// Cache metrics
	Mutations           *prometheus.CounterVec
	Refreshes           *prometheus.CounterVec
	StaleRefreshDropped prometheus.Counter
	MergeDecisions      *prometheus.CounterVec
}

var (
	_ ports.CacheMetrics  = (*Collector)(nil)
	_ ports.RemoteMetrics = (*Collector)(nil)
)

var (
	// Global metrics instance for singleton pattern
	globalCollector *Collector
	collectorMutex  sync.Mutex
)

// NewCollector creates a new metrics collector with the given namespace.
// Repeated calls return the same collector.
func NewCollector(namespace string) *Collector {
	collectorMutex.Lock()
	defer collectorMutex.Unlock()

	if globalCollector != nil {
		return globalCollector
	}

	globalCollector = newCollector(namespace)
	return globalCollector
}

// NewIsolatedCollector creates a collector with its own registry
func NewIsolatedCollector(namespace string) *Collector {
	return newCollector(namespace)
}

// ResetForTesting resets the global collector for testing purposes
func ResetForTesting() {
	collectorMutex.Lock()
	defer collectorMutex.Unlock()
	globalCollector = nil
}

func newCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RemoteRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_requests_total",
				Help:      "Total number of requests sent to the grocery store",
			},
			[]string{"operation", "status", "result"},
		),
		RemoteDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "remote_request_duration_seconds",
				Help:      "Grocery store request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		Mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_mutations_total",
				Help:      "Optimistic mutations by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		Refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_refreshes_total",
				Help:      "Cache refetches by outcome",
			},
			[]string{"outcome"},
		),
		StaleRefreshDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_stale_refreshes_dropped_total",
				Help:      "Refetch results discarded because a newer write superseded them",
			},
		),
		MergeDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "merge_decisions_total",
				Help:      "Merge policy decisions",
			},
			[]string{"decision"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.RemoteRequests,
		c.RemoteDuration,
		c.Mutations,
		c.Refreshes,
		c.StaleRefreshDropped,
		c.MergeDecisions,
	)

	return c
}

// RecordHTTPRequest records one served request
func (c *Collector) RecordHTTPRequest(method, route string, status int, seconds float64) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(seconds)
}

// RecordRemoteRequest records one call to the grocery store
func (c *Collector) RecordRemoteRequest(_ context.Context, operation string, status int, seconds float64, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.RemoteRequests.WithLabelValues(operation, strconv.Itoa(status), result).Inc()
	c.RemoteDuration.WithLabelValues(operation).Observe(seconds)
}

func (c *Collector) RecordMutation(kind, outcome string) {
	c.Mutations.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) RecordRefresh(outcome string) {
	c.Refreshes.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordStaleRefreshDropped() {
	c.StaleRefreshDropped.Inc()
}

func (c *Collector) RecordMergeDecision(decision string) {
	c.MergeDecisions.WithLabelValues(decision).Inc()
}

// GetRegistry returns the Prometheus registry for this collector
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
