package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spacearena/lead-pipeline/pipeline"
	"github.com/spacearena/lead-pipeline/schemas"
)

const namespace = "pipeline"

// Collector turns engine and bulk events into prometheus series.
type Collector struct {
	registry       *prometheus.Registry
	transitions    *prometheus.CounterVec
	charges        *prometheus.CounterVec
	bulkRequested  prometheus.Histogram
	bulkFailedRate prometheus.Histogram
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Stage transitions by result code.",
		}, []string{"result"}),
		charges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "charge_attempts_total",
			Help:      "Charge-on-entry attempts by result.",
		}, []string{"result"}),
		bulkRequested: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bulk_requested_contacts",
			Help:      "Contacts per bulk stage update.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		bulkFailedRate: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bulk_failed_ratio",
			Help:      "Share of failed contacts per bulk stage update.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
	c.registry.MustRegister(c.transitions, c.charges, c.bulkRequested, c.bulkFailedRate)
	return c
}

func (c *Collector) TransitionApplied(ctx context.Context, outcome schemas.TransitionOutcome) {
	c.transitions.WithLabelValues("ok").Inc()
}

func (c *Collector) ChargeAttempted(ctx context.Context, outcome schemas.TransitionOutcome, succeeded bool) {
	result := "ok"
	if !succeeded {
		result = "failed"
	}
	c.charges.WithLabelValues(result).Inc()
}

func (c *Collector) TransitionRejected(ctx context.Context, code pipeline.Code) {
	c.transitions.WithLabelValues(string(code)).Inc()
}

func (c *Collector) BulkCompleted(ctx context.Context, result schemas.BulkTransitionResult) {
	c.bulkRequested.Observe(float64(result.TotalRequested))
	if result.TotalRequested > 0 {
		c.bulkFailedRate.Observe(float64(result.FailedCount) / float64(result.TotalRequested))
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
