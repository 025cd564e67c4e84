package sweep

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepAssessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "missionmind_sweep_assessed_total",
		Help: "Number of suspenses re-assessed by the risk sweep.",
	})
	sweepConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "missionmind_sweep_conflicts_total",
		Help: "Number of optimistic concurrency conflicts hit while persisting sweep results.",
	})
	sweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "missionmind_sweep_failures_total",
		Help: "Number of tasks the sweep failed to assess or persist.",
	})
)
