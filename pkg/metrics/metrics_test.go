package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectorWithRegistry(reg)

	c.RecordAcquire("use_current_if_possible", AcquireCreated)
	c.RecordAcquire("use_current_if_possible", AcquireShared)
	c.RecordAcquire("use_current_if_possible", AcquireShared)
	c.SetInFlight(3)
	c.RecordTransport(10*time.Millisecond, nil)
	c.RecordPull("retry")
	c.RecordOutcome("source", errors.New("boom"))
	c.RecordDecision("retry", "drop")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.acquisitions.WithLabelValues("use_current_if_possible", AcquireShared)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.acquisitions.WithLabelValues("use_current_if_possible", AcquireCreated)))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.inFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.upstreamPulls.WithLabelValues("retry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stageOutcomes.WithLabelValues("source", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisions.WithLabelValues("retry", "drop")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.transportDuration))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.RecordAcquire("always_create_new", AcquireCreated)
		c.SetInFlight(1)
		c.RecordTransport(time.Second, nil)
		c.RecordPull("validate")
		c.RecordOutcome("decode", nil)
		c.RecordDecision("adapt", "retry")
	})
}
