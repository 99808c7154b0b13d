package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once         sync.Once
	serviceState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "flowstack",
			Subsystem: "service",
			Name:      "state",
			Help:      "Service lifecycle state gauge (1 for current state).",
		},
		[]string{"name", "state"},
	)
	serviceRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "flowstack",
			Subsystem: "service",
			Name:      "running",
			Help:      "Whether the supervised service is running (1) or not (0).",
		},
		[]string{"name"},
	)
	installResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flowstack",
			Subsystem: "install",
			Name:      "results_total",
			Help:      "Install outcomes by service and result.",
		},
		[]string{"name", "result"},
	)
)

func init() {
	once.Do(func() {
		prometheus.MustRegister(serviceState, serviceRunning, installResults)
	})
}

// ObserveServiceState sets the gauge for the service's current state to 1
// and clears the other known states.
func ObserveServiceState(name, state string) {
	for _, s := range []string{"stopped", "starting", "running", "stopping"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		serviceState.WithLabelValues(name, s).Set(v)
	}
}

// SetRunning records liveness for the service.
func SetRunning(name string, running bool) {
	v := 0.0
	if running {
		v = 1.0
	}
	serviceRunning.WithLabelValues(name).Set(v)
}

// IncInstallResult counts one install outcome ("ok" or "failed").
func IncInstallResult(name, result string) {
	installResults.WithLabelValues(name, result).Inc()
}
