package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector_ObserveFrameIncrementsHistogramCount(t *testing.T) {
	c := New()
	c.ObserveFrame(5 * time.Millisecond)

	require.Equal(t, 1, testutil.CollectAndCount(c.frameDuration))

	families, err := c.Registry.Gather()
	require.NoError(t, err)
	var samples uint64
	for _, mf := range families {
		if mf.GetName() == "simkernel_frame_duration_seconds" {
			samples = mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	require.Equal(t, uint64(1), samples)
}

func TestCollector_ModuleTicksCountedByOutcome(t *testing.T) {
	c := New()
	c.ObserveModuleTick("physics", "Simulation", "ok", time.Millisecond)
	c.ObserveModuleTick("physics", "Simulation", "timeout", time.Millisecond)

	require.Equal(t, float64(1), testutil.ToFloat64(c.moduleTicks.WithLabelValues("physics", "ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(c.moduleTicks.WithLabelValues("physics", "timeout")))
}

func TestCollector_BreakerStateGauge(t *testing.T) {
	c := New()
	c.SetBreakerState("physics", BreakerOpen)
	require.Equal(t, float64(BreakerOpen), testutil.ToFloat64(c.breakerState.WithLabelValues("physics")))
}

func TestCollector_EntityCountGauge(t *testing.T) {
	c := New()
	c.SetEntityCount(42)
	require.Equal(t, float64(42), testutil.ToFloat64(c.entityCount))
}

func TestCollector_HostResourceUsageGauges(t *testing.T) {
	c := New()
	c.SetHostResourceUsage(12.5, 33.75)
	require.Equal(t, 12.5, testutil.ToFloat64(c.hostCPUPercent))
	require.Equal(t, 33.75, testutil.ToFloat64(c.hostMemPercent))
}
