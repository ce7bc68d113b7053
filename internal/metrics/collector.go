// Package metrics collects run metrics for the cleaner on a private
// prometheus registry. At the end of a run the registry can be written out
// as a node-exporter textfile.
//
// Every method is safe to call on a nil *Collector, so components can take
// an optional collector without guarding each call site.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Namespace prefixes every metric name.
const Namespace = "artifactory_cleaner"

// Resolution outcomes.
const (
	OutcomeResolved = "resolved"
	OutcomeFailed   = "failed"
	OutcomeDropped  = "dropped"
)

// Collector holds the cleaner's metrics.
type Collector struct {
	registry *prometheus.Registry

	searchesTotal    *prometheus.CounterVec
	searchDuration   prometheus.Histogram
	resolutionsTotal *prometheus.CounterVec
	retriesTotal     *prometheus.CounterVec
	workersInFlight  prometheus.Gauge
	decisionsTotal   *prometheus.CounterVec
	decisionBytes    *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a collector with its own registry.
func NewCollector(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.searchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "searches_total",
			Help:      "Date range searches issued, by result",
		},
		[]string{"result"}, // ok, empty, error
	)

	c.searchDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of date range searches including retries",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	c.resolutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "resolutions_total",
			Help:      "Search hits processed by discovery workers, by outcome",
		},
		[]string{"outcome"},
	)

	c.retriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "retries_total",
			Help:      "Retried remote calls, by reason",
		},
		[]string{"reason"}, // transient, remote_error
	)

	c.workersInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "resolutions_in_flight",
			Help:      "Resolutions currently executing",
		},
	)

	c.decisionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "decisions_total",
			Help:      "Artifacts handled by batch runs, by disposition",
		},
		[]string{"disposition"},
	)

	c.decisionBytes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "decision_bytes_total",
			Help:      "Bytes of artifacts handled by batch runs, by disposition",
		},
		[]string{"disposition"},
	)

	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordSearch records one completed search.
func (c *Collector) RecordSearch(result string, d time.Duration) {
	if c == nil {
		return
	}
	c.searchesTotal.WithLabelValues(result).Inc()
	c.searchDuration.Observe(d.Seconds())
}

// RecordResolution records the outcome of one search hit.
func (c *Collector) RecordResolution(outcome string) {
	if c == nil {
		return
	}
	c.resolutionsTotal.WithLabelValues(outcome).Inc()
}

// RecordRetry records one retried remote call.
func (c *Collector) RecordRetry(reason string) {
	if c == nil {
		return
	}
	c.retriesTotal.WithLabelValues(reason).Inc()
}

// SetInFlight sets the number of resolutions currently executing.
func (c *Collector) SetInFlight(n int64) {
	if c == nil {
		return
	}
	c.workersInFlight.Set(float64(n))
}

// RecordDecision records one batch decision and the bytes it covered.
func (c *Collector) RecordDecision(disposition string, size int64) {
	if c == nil {
		return
	}
	c.decisionsTotal.WithLabelValues(disposition).Inc()
	if size > 0 {
		c.decisionBytes.WithLabelValues(disposition).Add(float64(size))
	}
}

// WriteTextfile writes the registry in the text exposition format to path,
// atomically, for the node exporter's textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	c.logger.Debug("metrics written", zap.String("path", path))
	return nil
}
