package kernel

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"simkernel/internal/core/ecs/metrics"
)

// resourceMonitor periodically samples this process's own CPU and
// memory usage via gopsutil and reports it to Metrics, independent of
// the simulation frame loop — host resource pressure is an operational
// signal, not a per-frame one, so it runs on its own ticker.
type resourceMonitor struct {
	interval time.Duration
	metrics  *metrics.Collector
	log      *zap.Logger
	proc     *process.Process

	stopCh chan struct{}
	doneCh chan struct{}
}

func newResourceMonitor(interval time.Duration, m *metrics.Collector, log *zap.Logger) *resourceMonitor {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("resource monitor disabled: could not open self process handle", zap.Error(err))
		proc = nil
	}
	return &resourceMonitor{
		interval: interval,
		metrics:  m,
		log:      log,
		proc:     proc,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (r *resourceMonitor) start() {
	if r.proc == nil {
		close(r.doneCh)
		return
	}
	go r.run()
}

func (r *resourceMonitor) run() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			cpuPct, err := r.proc.CPUPercent()
			if err != nil {
				r.log.Debug("resource monitor: cpu sample failed", zap.Error(err))
				continue
			}
			memPct, err := r.proc.MemoryPercent()
			if err != nil {
				r.log.Debug("resource monitor: memory sample failed", zap.Error(err))
				continue
			}
			r.metrics.SetHostResourceUsage(cpuPct, float64(memPct))
		}
	}
}

func (r *resourceMonitor) stop() {
	close(r.stopCh)
	<-r.doneCh
}
