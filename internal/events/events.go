// Package events defines the payloads published for downstream consumers
// (dashboards, access-control caches, staff alerting).
package events

import "time"

// PaymentApproved is emitted when a pending claim is approved.
type PaymentApproved struct {
	PaymentID   string    `json:"payment_id"`
	AthleteID   string    `json:"athlete_id"`
	ActivityID  string    `json:"activity_id,omitempty"`
	AmountMinor int64     `json:"amount_minor"`
	Currency    string    `json:"currency"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	ApprovedAt  time.Time `json:"approved_at"`
}

// PaymentRejected is emitted when a pending claim is rejected.
type PaymentRejected struct {
	PaymentID  string    `json:"payment_id"`
	AthleteID  string    `json:"athlete_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EntitlementExtended tracks the entitlement grant that accompanies an approval.
type EntitlementExtended struct {
	AthleteID  string    `json:"athlete_id"`
	ActivityID string    `json:"activity_id"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	OccurredAt time.Time `json:"occurred_at"`
}

// MembershipExpiring is published by the expiration scanner for staff alerting.
type MembershipExpiring struct {
	AthleteID      string    `json:"athlete_id"`
	AthleteName    string    `json:"athlete_name"`
	ActivityID     string    `json:"activity_id,omitempty"`
	ActivityName   string    `json:"activity_name,omitempty"`
	ExpirationDate time.Time `json:"expiration_date"`
	DaysUntilDue   int       `json:"days_until_due"`
	IsExpired      bool      `json:"is_expired"`
	AmountMinor    int64     `json:"amount_minor"`
	Currency       string    `json:"currency"`
}
