package domain

import (
	"fmt"
	"math"
	"time"
)

// PaymentStatus represents the lifecycle state of a payment claim.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusRejected PaymentStatus = "rejected"
)

// CanTransitionTo reports whether the guarded state machine allows moving to next.
// The only legal transitions are pending->approved and pending->rejected;
// approved and rejected are terminal.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s != PaymentStatusPending {
		return false
	}
	return next == PaymentStatusApproved || next == PaymentStatusRejected
}

// Evidence is the optional proof attached to a payment claim.
type Evidence struct {
	URL  string
	Text string
}

// Payment is a claim that an athlete paid for access over a coverage window.
// Amounts are stored in integer minor units; the window is inclusive on both ends.
type Payment struct {
	ID          string
	AthleteID   string
	ActivityID  string // empty when the claim is not tied to a specific activity
	AmountMinor int64
	Currency    string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Status      PaymentStatus
	Evidence    Evidence
	CreatedAt   time.Time
	ApprovedAt  *time.Time
}

// DefaultCurrency applies when a claim does not name one.
const DefaultCurrency = "USD"

// ToMinorUnits converts a major-unit decimal amount to integer minor units,
// rounding halves away from zero. Assumes two-decimal currencies.
func ToMinorUnits(major float64) int64 {
	return int64(math.Round(major * 100))
}

// ValidateCoverage checks the claim window and amount before a payment is recorded.
func ValidateCoverage(amountMajor float64, periodStart, periodEnd time.Time) error {
	if amountMajor <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if periodStart.IsZero() || periodEnd.IsZero() {
		return fmt.Errorf("%w: period_start and period_end are required", ErrValidation)
	}
	if periodEnd.Before(periodStart) {
		return fmt.Errorf("%w: period_end precedes period_start", ErrValidation)
	}
	return nil
}
