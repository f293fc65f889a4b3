// Package metrics implements the kernel's observability surface with
// prometheus/client_golang, grounded on
// r3e-network-service_layer/pkg/metrics: a package-private
// prometheus.Registry (never the global default, so multiple kernel
// instances in one process don't collide) holding one vector per
// concern, registered once in an init-style constructor and updated
// from hot paths via cheap label lookups.
//
// The teacher's own metrics.go (a hand-rolled in-memory counter/gauge/
// histogram collector with threshold alerts) is not reused: it
// implements its own percentile math and alerting instead of exporting
// anything, which duplicates what a real Prometheus scrape + alerting
// rule already gives for free. Its surface (named counters/gauges/
// histograms with per-name thresholds) is kept as the API shape this
// package's Collector exposes to the rest of the kernel, just backed by
// real collectors instead of a private ring buffer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns every kernel metric. One Collector is created per
// kernel instance; nothing here is process-global.
type Collector struct {
	Registry *prometheus.Registry

	frameDuration   prometheus.Histogram
	moduleDuration  *prometheus.HistogramVec
	moduleTicks     *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	snapshotAcquire *prometheus.HistogramVec
	busStreamDepth  *prometheus.GaugeVec
	entityCount     prometheus.Gauge
	pendingBarriers prometheus.Gauge
	workerInUse     prometheus.Gauge
	hostCPUPercent  prometheus.Gauge
	hostMemPercent  prometheus.Gauge
}

// New creates and registers every kernel collector against a fresh,
// private registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		Registry: reg,
		frameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "simkernel",
			Subsystem: "frame",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of one Tick call.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		moduleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "simkernel",
			Subsystem: "module",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one module's system execution for one phase dispatch.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{"module", "phase"}),
		moduleTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simkernel",
			Subsystem: "module",
			Name:      "ticks_total",
			Help:      "Module dispatches grouped by outcome.",
		}, []string{"module", "outcome"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "simkernel",
			Subsystem: "module",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per module (0=closed, 1=half_open, 2=open).",
		}, []string{"module"}),
		snapshotAcquire: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "simkernel",
			Subsystem: "snapshot",
			Name:      "acquire_duration_seconds",
			Help:      "Duration of a snapshot provider's Acquire call.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 16),
		}, []string{"strategy"}),
		busStreamDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "simkernel",
			Subsystem: "eventbus",
			Name:      "stream_depth",
			Help:      "Number of events in a stream's CURRENT buffer this frame.",
		}, []string{"event_type"}),
		entityCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "simkernel",
			Subsystem: "world",
			Name:      "entity_count",
			Help:      "Number of non-Free entity slots.",
		}),
		pendingBarriers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "simkernel",
			Subsystem: "lifecycle",
			Name:      "pending_barriers",
			Help:      "Number of in-flight construction/destruction barriers.",
		}),
		workerInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "simkernel",
			Subsystem: "scheduler",
			Name:      "async_workers_in_use",
			Help:      "Approximate count of Async module dispatches currently running.",
		}),
		hostCPUPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "simkernel",
			Subsystem: "host",
			Name:      "cpu_percent",
			Help:      "Process CPU utilization percent, sampled by the resource monitor.",
		}),
		hostMemPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "simkernel",
			Subsystem: "host",
			Name:      "memory_percent",
			Help:      "Process resident memory as a percent of total system memory, sampled by the resource monitor.",
		}),
	}

	reg.MustRegister(
		c.frameDuration,
		c.moduleDuration,
		c.moduleTicks,
		c.breakerState,
		c.snapshotAcquire,
		c.busStreamDepth,
		c.entityCount,
		c.pendingBarriers,
		c.workerInUse,
		c.hostCPUPercent,
		c.hostMemPercent,
	)
	return c
}

// ObserveFrame records one Tick's wall-clock duration.
func (c *Collector) ObserveFrame(d time.Duration) {
	c.frameDuration.Observe(d.Seconds())
}

// ObserveModuleTick records one module/phase dispatch's duration and
// outcome ("ok", "timeout", "error", "breaker_open", "breaker_skip").
func (c *Collector) ObserveModuleTick(module, phase, outcome string, d time.Duration) {
	c.moduleDuration.WithLabelValues(module, phase).Observe(d.Seconds())
	c.moduleTicks.WithLabelValues(module, outcome).Inc()
}

// BreakerState values match gobreaker's own state ordering so the
// gauge reads naturally against gobreaker's State stringer.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// SetBreakerState records module's current circuit breaker state.
func (c *Collector) SetBreakerState(module string, state int) {
	c.breakerState.WithLabelValues(module).Set(float64(state))
}

// ObserveSnapshotAcquire records one Acquire call's duration for a
// given strategy ("direct", "gdb", "sod", "convoy").
func (c *Collector) ObserveSnapshotAcquire(strategy string, d time.Duration) {
	c.snapshotAcquire.WithLabelValues(strategy).Observe(d.Seconds())
}

// SetBusStreamDepth records how many events eventType's CURRENT buffer
// held this frame.
func (c *Collector) SetBusStreamDepth(eventType string, depth int) {
	c.busStreamDepth.WithLabelValues(eventType).Set(float64(depth))
}

// SetEntityCount records the live entity count.
func (c *Collector) SetEntityCount(n int) {
	c.entityCount.Set(float64(n))
}

// SetPendingBarriers records the lifecycle coordinator's in-flight
// barrier count.
func (c *Collector) SetPendingBarriers(n int) {
	c.pendingBarriers.Set(float64(n))
}

// SetAsyncWorkersInUse records the scheduler's semaphore occupancy.
func (c *Collector) SetAsyncWorkersInUse(n int) {
	c.workerInUse.Set(float64(n))
}

// SetHostResourceUsage records the resource monitor's most recent
// process CPU/memory sample.
func (c *Collector) SetHostResourceUsage(cpuPercent, memPercent float64) {
	c.hostCPUPercent.Set(cpuPercent)
	c.hostMemPercent.Set(memPercent)
}
