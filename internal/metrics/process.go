package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	procCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "flowstack", Subsystem: "service", Name: "cpu_percent", Help: "Supervised process CPU percent"},
		[]string{"name"},
	)
	procRSS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "flowstack", Subsystem: "service", Name: "memory_rss_bytes", Help: "Supervised process RSS bytes"},
		[]string{"name"},
	)
)

func init() {
	prometheus.MustRegister(procCPU, procRSS)
}

// SampleProcess samples CPU and RSS for pid every interval until ctx is
// done or the process goes away.
func SampleProcess(ctx context.Context, name string, pid int, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}
	// warm-up for the CPU percent baseline
	_, _ = p.CPUPercentWithContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ok, err := process.PidExistsWithContext(ctx, int32(pid)); err != nil || !ok {
				return
			}
			if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
				procCPU.WithLabelValues(name).Set(cpu)
			}
			if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi != nil {
				procRSS.WithLabelValues(name).Set(float64(mi.RSS))
			}
		}
	}
}
