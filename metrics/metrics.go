package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// ModelLoaded is 1 when the backend loaded at startup, 0 otherwise.
	ModelLoaded = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "medreport",
		Subsystem: "model",
		Name:      "loaded",
		Help:      "Whether the model backend loaded successfully at startup.",
	}, []string{"backend"})

	// InferenceInFlight is the current number of running inference calls.
	InferenceInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "medreport",
		Subsystem: "model",
		Name:      "inference_in_flight",
		Help:      "Current number of inference calls waiting on the model backend.",
	})

	// ReportsTotal counts report requests by outcome (ok or error kind).
	ReportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medreport",
		Subsystem: "service",
		Name:      "reports_total",
		Help:      "Total number of report requests, labeled by outcome.",
	}, []string{"outcome"})

	// InferenceDurationSeconds is the time spent in the backend per call.
	InferenceDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "medreport",
		Subsystem: "model",
		Name:      "inference_duration_seconds",
		Help:      "Time spent waiting on the model backend for one report.",
		// CPU inference of a 4B model routinely takes minutes.
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300, 600},
	}, []string{"backend", "result"})

	TempFilesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "medreport",
		Subsystem: "space",
		Name:      "temp_files_created_total",
		Help:      "Total number of temp image files written for the remote client.",
	})

	TempFilesRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "medreport",
		Subsystem: "space",
		Name:      "temp_files_removed_total",
		Help:      "Total number of temp image files removed after a remote call.",
	})

	TempFileCleanupErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "medreport",
		Subsystem: "space",
		Name:      "temp_file_cleanup_errors_total",
		Help:      "Total number of temp image files that could not be removed.",
	})

	EventPublishErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "medreport",
		Subsystem: "events",
		Name:      "publish_errors_total",
		Help:      "Total number of report events that failed to publish.",
	})

	HistoryWriteErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "medreport",
		Subsystem: "history",
		Name:      "write_errors_total",
		Help:      "Total number of report history rows that failed to save.",
	})
)

// Register registers the service metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ModelLoaded,
			InferenceInFlight,
			ReportsTotal,
			InferenceDurationSeconds,
			TempFilesCreated,
			TempFilesRemoved,
			TempFileCleanupErrors,
			EventPublishErrors,
			HistoryWriteErrors,
		)
	})
}
