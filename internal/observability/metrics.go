package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	paymentsApprovedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "membership_service",
		Subsystem: "ledger",
		Name:      "payments_approved_total",
		Help:      "Number of payment claims approved.",
	})
	paymentsRejectedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "membership_service",
		Subsystem: "ledger",
		Name:      "payments_rejected_total",
		Help:      "Number of payment claims rejected.",
	})
	lastApprovalGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "membership_service",
		Subsystem: "ledger",
		Name:      "last_payment_approved_timestamp_seconds",
		Help:      "Unix timestamp of the most recent payment approval committed to Postgres.",
	})
)

func init() {
	prometheus.MustRegister(paymentsApprovedCounter, paymentsRejectedCounter, lastApprovalGauge)
}

// RecordPaymentApproved updates the approval counter and watermark gauge.
func RecordPaymentApproved(ts time.Time) {
	paymentsApprovedCounter.Inc()
	if ts.IsZero() {
		return
	}
	lastApprovalGauge.Set(float64(ts.Unix()))
}

// RecordPaymentRejected increments the rejection counter.
func RecordPaymentRejected() {
	paymentsRejectedCounter.Inc()
}
