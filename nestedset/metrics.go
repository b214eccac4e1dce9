package nestedset

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nestedset_mutations_total",
	Help: "The total number of committed tree mutations",
}, []string{"op"})

var mutationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nestedset_mutation_errors_total",
	Help: "The total number of tree mutations rolled back due to an error",
}, []string{"op"})

var rowsShifted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nestedset_rows_shifted_total",
	Help: "Row updates issued to shift boundaries",
}, []string{"op"})

var mutationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "nestedset_mutation_duration_seconds",
	Help:    "A histogram of tree mutation latencies",
	Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
}, []string{"op"})

var rootResolutions = promauto.NewCounter(prometheus.CounterOpts{
	Name: "nestedset_root_resolutions_total",
	Help: "Number of times the root was detected from the table boundaries",
})
