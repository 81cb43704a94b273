package visibility

import (
	"github.com/adonese/kaos/utils"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the search counters exported on /metrics.
type Metrics struct {
	Searches          *prometheus.CounterVec
	Duration          *prometheus.HistogramVec
	FinderSteps       prometheus.Counter
	ViewConeFallbacks prometheus.Counter
}

// NewMetrics registers the search metrics with reg. Registering twice returns
// the collectors that are already registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Searches: utils.MustRegister(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kaos",
			Subsystem: "visibility",
			Name:      "searches_total",
			Help:      "Visibility searches by kind and result",
		}, []string{"kind", "result"})),
		Duration: utils.MustRegister(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kaos",
			Subsystem: "visibility",
			Name:      "search_duration_seconds",
			Help:      "Time spent computing a visibility search",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"kind"})),
		FinderSteps: utils.MustRegister(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kaos",
			Subsystem: "visibility",
			Name:      "finder_steps_total",
			Help:      "Hermite steps taken by the visibility finder",
		})),
		ViewConeFallbacks: utils.MustRegister(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kaos",
			Subsystem: "visibility",
			Name:      "view_cone_fallbacks_total",
			Help:      "Chunks searched in full because the viewing cone did not apply",
		})),
	}
}
