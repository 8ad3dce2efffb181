package poll

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "termin"

var (
	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_cycles_total",
		Help:      "Number of completed poll cycles",
	})
	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_outcomes_total",
		Help:      "Per-location check outcomes by status",
	}, []string{"status"})
	availableLocations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "available_locations",
		Help:      "Locations with open slots in the most recent cycle",
	})
)
