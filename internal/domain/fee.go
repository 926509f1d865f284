package domain

import (
	"fmt"
	"time"
)

// FeeVersion is a time-bounded price record for an activity type. A nil ValidUntil
// means the version stays current until a newer version's ValidFrom supersedes it.
type FeeVersion struct {
	ID           string
	ActivityType string
	ActivityName string
	AmountMinor  int64
	Currency     string
	Description  string
	ValidFrom    time.Time
	ValidUntil   *time.Time
	IsActive     bool
	CreatedAt    time.Time
}

// IsCurrent reports whether the version prices the activity at the given instant.
func (f FeeVersion) IsCurrent(now time.Time) bool {
	day := truncateToDay(now)
	if truncateToDay(f.ValidFrom).After(day) {
		return false
	}
	if f.ValidUntil != nil && truncateToDay(*f.ValidUntil).Before(day) {
		return false
	}
	return f.IsActive
}

// ValidateFeeVersion checks a new version before it is inserted.
func ValidateFeeVersion(amountMajor float64, activityType string, validFrom time.Time, validUntil *time.Time) error {
	if amountMajor <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if activityType == "" {
		return fmt.Errorf("%w: activity_type is required", ErrValidation)
	}
	if validFrom.IsZero() {
		return fmt.Errorf("%w: valid_from is required", ErrValidation)
	}
	if validUntil != nil && validUntil.Before(validFrom) {
		return fmt.Errorf("%w: valid_until precedes valid_from", ErrValidation)
	}
	return nil
}
