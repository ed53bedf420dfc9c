package metrics

import "github.com/prometheus/client_golang/prometheus"

// Read modes for SavedObjectReadsTotal.
const (
	ReadModeFull    = "full"
	ReadModePartial = "partial"
)

// Saved-object and search Prometheus metrics.
var (
	SavedObjectReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "savedobjects",
			Name:      "reads_total",
			Help:      "Saved-object document reads by projection mode",
		},
		[]string{"mode"}, // "full" / "partial"
	)

	SavedObjectProjectionPaths = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "savedobjects",
			Name:      "projection_paths",
			Help:      "Number of JSONPaths requested by partial reads",
			Buckets:   []float64{11, 13, 15, 20, 30, 50, 100},
		},
	)

	SearchRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "savedobjects",
			Name:      "search_request_duration_seconds",
			Help:      "Search strategy execution time in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"strategy", "status"},
	)
)

func init() {
	prometheus.MustRegister(SavedObjectReadsTotal)
	prometheus.MustRegister(SavedObjectProjectionPaths)
	prometheus.MustRegister(SearchRequestDuration)
}

// ObserveRead records one document read. paths is the JSONPath count of a
// partial read and is ignored for full reads.
func ObserveRead(partial bool, paths int) {
	if !partial {
		SavedObjectReadsTotal.WithLabelValues(ReadModeFull).Inc()
		return
	}
	SavedObjectReadsTotal.WithLabelValues(ReadModePartial).Inc()
	SavedObjectProjectionPaths.Observe(float64(paths))
}
