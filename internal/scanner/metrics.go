package scanner

import "github.com/prometheus/client_golang/prometheus"

var (
	scanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "membership_service",
		Subsystem: "scanner",
		Name:      "scan_duration_seconds",
		Help:      "Time spent resolving entitlements across all active athletes.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	recordsEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "membership_service",
		Subsystem: "scanner",
		Name:      "records_emitted_total",
		Help:      "Number of expiry notification records produced by scans.",
	})

	scanErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "membership_service",
		Subsystem: "scanner",
		Name:      "athlete_errors_total",
		Help:      "Number of athletes skipped during scans due to read failures.",
	})
)

func init() {
	prometheus.MustRegister(scanDuration, recordsEmitted, scanErrors)
}
