package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFeeVersionIsCurrentInclusiveBoundaries(t *testing.T) {
	until := date(2025, time.June, 30)
	version := FeeVersion{
		ActivityType: "crossfit",
		AmountMinor:  6000,
		ValidFrom:    date(2025, time.January, 1),
		ValidUntil:   &until,
		IsActive:     true,
	}

	assert.False(t, version.IsCurrent(time.Date(2024, time.December, 31, 23, 0, 0, 0, time.UTC)))
	assert.True(t, version.IsCurrent(date(2025, time.January, 1)), "first valid day counts")
	assert.True(t, version.IsCurrent(time.Date(2025, time.June, 30, 14, 0, 0, 0, time.UTC)),
		"last valid day counts at any hour")
	assert.False(t, version.IsCurrent(date(2025, time.July, 1)))
}

func TestFeeVersionOpenEndedAndInactive(t *testing.T) {
	version := FeeVersion{
		ActivityType: "crossfit",
		AmountMinor:  6000,
		ValidFrom:    date(2025, time.January, 1),
		IsActive:     true,
	}

	assert.True(t, version.IsCurrent(date(2030, time.January, 1)), "open window never lapses")

	version.IsActive = false
	assert.False(t, version.IsCurrent(date(2025, time.June, 1)))
}

func TestValidateFeeVersionRules(t *testing.T) {
	validFrom := date(2025, time.January, 1)

	assert.NoError(t, ValidateFeeVersion(50, "crossfit", validFrom, nil))
	assert.ErrorIs(t, ValidateFeeVersion(0, "crossfit", validFrom, nil), ErrValidation)
	assert.ErrorIs(t, ValidateFeeVersion(50, "", validFrom, nil), ErrValidation)
	assert.ErrorIs(t, ValidateFeeVersion(50, "crossfit", time.Time{}, nil), ErrValidation)

	before := date(2024, time.December, 1)
	assert.ErrorIs(t, ValidateFeeVersion(50, "crossfit", validFrom, &before), ErrValidation)
}
