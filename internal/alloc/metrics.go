package alloc

import "github.com/prometheus/client_golang/prometheus"

// Counters mirror the naming convention of the teacher's
// internal/app/metrics package (namespace/subsystem/name, a label-keyed
// CounterVec per outcome) applied to allocation outcomes instead of HTTP
// requests.
var (
	registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resource_broker",
			Subsystem: "alloc",
			Name:      "registrations_total",
			Help:      "Total number of ticket/timeslot registration attempts.",
		},
		[]string{"kind", "result"},
	)

	remainingCapacity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "resource_broker",
			Subsystem: "alloc",
			Name:      "remaining_capacity",
			Help:      "Remaining ticket capacity last observed for an entity.",
		},
		[]string{"organization", "entity"},
	)
)

func init() {
	prometheus.MustRegister(registrations, remainingCapacity)
}

func observeOutcome(kind string, err error) {
	result := "success"
	if err != nil {
		result = "rejected"
	}
	registrations.WithLabelValues(kind, result).Inc()
}
