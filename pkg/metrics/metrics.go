// Package metrics provides Prometheus instrumentation for the request cache and pipeline stages.
//
// A nil *Collector is valid and records nothing, so components can carry an
// optional collector without guarding every call.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Acquisition results recorded by the request cache
const (
	AcquireCreated = "created"
	AcquireShared  = "shared"
	AcquireDropped = "dropped"
)

// Collector holds the Prometheus metrics shared by cache and stages.
// It is safe for concurrent use.
type Collector struct {
	acquisitions      *prometheus.CounterVec
	inFlight          prometheus.Gauge
	transportDuration *prometheus.HistogramVec
	upstreamPulls     *prometheus.CounterVec
	stageOutcomes     *prometheus.CounterVec
	decisions         *prometheus.CounterVec
}

// NewCollector creates a collector registered on the default registerer
func NewCollector() *Collector {
	return NewCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector using the supplied registerer
func NewCollectorWithRegistry(registry prometheus.Registerer) *Collector {
	factory := promauto.With(registry)
	return &Collector{
		acquisitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "httptask_cache_acquisitions_total",
				Help: "Request cache acquisitions by duplication policy and result",
			},
			[]string{"policy", "result"},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "httptask_cache_in_flight",
				Help: "Number of transport operations currently tracked by the request cache",
			},
		),
		transportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "httptask_transport_duration_seconds",
				Help:    "Duration of transport calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		upstreamPulls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "httptask_stage_upstream_pulls_total",
				Help: "Upstream pulls issued by stages",
			},
			[]string{"stage"},
		),
		stageOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "httptask_stage_outcomes_total",
				Help: "Terminal outcomes fanned out by stages",
			},
			[]string{"stage", "outcome"},
		),
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "httptask_stage_decisions_total",
				Help: "Recovery decisions taken by retry and adapt stages",
			},
			[]string{"stage", "decision"},
		),
	}
}

// RecordAcquire counts a cache acquisition
func (c *Collector) RecordAcquire(policy, result string) {
	if c == nil {
		return
	}
	c.acquisitions.WithLabelValues(policy, result).Inc()
}

// SetInFlight updates the in-flight gauge
func (c *Collector) SetInFlight(n int) {
	if c == nil {
		return
	}
	c.inFlight.Set(float64(n))
}

// RecordTransport observes one transport call
func (c *Collector) RecordTransport(d time.Duration, err error) {
	if c == nil {
		return
	}
	c.transportDuration.WithLabelValues(outcomeLabel(err)).Observe(d.Seconds())
}

// RecordPull counts an upstream pull of stage
func (c *Collector) RecordPull(stage string) {
	if c == nil {
		return
	}
	c.upstreamPulls.WithLabelValues(stage).Inc()
}

// RecordOutcome counts a terminal fan-out of stage
func (c *Collector) RecordOutcome(stage string, err error) {
	if c == nil {
		return
	}
	c.stageOutcomes.WithLabelValues(stage, outcomeLabel(err)).Inc()
}

// RecordDecision counts a recovery decision of stage
func (c *Collector) RecordDecision(stage, decision string) {
	if c == nil {
		return
	}
	c.decisions.WithLabelValues(stage, decision).Inc()
}

func outcomeLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
