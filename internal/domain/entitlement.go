package domain

import "time"

// ActivityEntitlement is the derived access grant maintained per athlete and activity.
// EndDate tracks the period end of the approved payments processed for the pair.
type ActivityEntitlement struct {
	AthleteID  string
	ActivityID string
	IsActive   bool
	StartDate  time.Time
	EndDate    time.Time
	UpdatedAt  time.Time
}

// Classification buckets an athlete's standing for notification purposes.
type Classification string

const (
	ClassificationActive   Classification = "active"
	ClassificationDueSoon  Classification = "due_soon"
	ClassificationDueToday Classification = "due_today"
	ClassificationExpired  Classification = "expired"
)

// DefaultDueSoonThreshold is the advance-warning window in days when callers do not supply one.
const DefaultDueSoonThreshold = 3

// Assessment is the resolver output for one athlete/activity pair.
type Assessment struct {
	LastPayment    *Payment
	DaysUntilDue   int
	Classification Classification
}

// truncateToDay discards time-of-day in UTC so a period ending "today" counts as due
// today no matter what hour the evaluation runs.
func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysUntilDue returns the whole calendar days between now and periodEnd.
// Negative when the period already ended, zero when it ends today.
func DaysUntilDue(now, periodEnd time.Time) int {
	return int(truncateToDay(periodEnd).Sub(truncateToDay(now)).Hours() / 24)
}

// Classify maps a day count onto a classification tier. threshold values below one
// fall back to the default.
func Classify(daysUntilDue, threshold int) Classification {
	if threshold < 1 {
		threshold = DefaultDueSoonThreshold
	}
	switch {
	case daysUntilDue < 0:
		return ClassificationExpired
	case daysUntilDue == 0:
		return ClassificationDueToday
	case daysUntilDue <= threshold:
		return ClassificationDueSoon
	default:
		return ClassificationActive
	}
}

// Resolve computes the standing for a set of approved payments. The payment with the
// maximal period end drives the result; an empty set is expired with no grace period.
func Resolve(now time.Time, threshold int, approved []Payment) Assessment {
	var last *Payment
	for i := range approved {
		if approved[i].Status != PaymentStatusApproved {
			continue
		}
		if last == nil || approved[i].PeriodEnd.After(last.PeriodEnd) {
			last = &approved[i]
		}
	}
	if last == nil {
		return Assessment{Classification: ClassificationExpired}
	}
	days := DaysUntilDue(now, last.PeriodEnd)
	return Assessment{
		LastPayment:    last,
		DaysUntilDue:   days,
		Classification: Classify(days, threshold),
	}
}

// Covers reports whether the entitlement still grants access at the given instant,
// comparing on calendar days since EndDate is inclusive.
func (e ActivityEntitlement) Covers(now time.Time) bool {
	return !truncateToDay(e.EndDate).Before(truncateToDay(now))
}

// HasAccess is the binary gate used by access-control callers: any entitlement
// covering "now" grants access.
func HasAccess(now time.Time, entitlements []ActivityEntitlement) bool {
	for _, e := range entitlements {
		if e.Covers(now) {
			return true
		}
	}
	return false
}
