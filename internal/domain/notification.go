package domain

import "time"

// Athlete is the read-only directory view of a member. The core never writes it.
type Athlete struct {
	ID       string
	FullName string
	Email    string
	Phone    string
	CoachID  string
	Active   bool
}

// Activity is the read-only catalog view of an offering.
type Activity struct {
	ID   string
	Type string
	Name string
}

// NotificationRecord is an ephemeral staff-facing alert produced by the expiration
// scanner. It snapshots contact info and the triggering payment's context.
type NotificationRecord struct {
	AthleteID      string
	AthleteName    string
	Email          string
	Phone          string
	ActivityID     string
	ActivityName   string
	ExpirationDate time.Time
	DaysUntilDue   int
	IsExpired      bool
	AmountMinor    int64
	Currency       string
}
