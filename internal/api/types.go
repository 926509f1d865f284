package api

import (
	"errors"
	"strings"
	"time"

	"example.com/membership/internal/domain"
)

// CreatePaymentRequest is the payload for POST /payments. Amount is in major units.
type CreatePaymentRequest struct {
	AthleteID    string  `json:"athlete_id"`
	ActivityID   string  `json:"activity_id,omitempty"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency,omitempty"`
	PeriodStart  string  `json:"period_start"`
	PeriodEnd    string  `json:"period_end"`
	EvidenceURL  string  `json:"evidence_url,omitempty"`
	EvidenceText string  `json:"evidence_text,omitempty"`
}

// ToInput validates the request and converts it to a domain input.
func (r CreatePaymentRequest) ToInput() (domain.CreateClaimInput, error) {
	if strings.TrimSpace(r.AthleteID) == "" {
		return domain.CreateClaimInput{}, errors.New("athlete_id is required")
	}
	if r.Amount <= 0 {
		return domain.CreateClaimInput{}, errors.New("amount must be > 0")
	}
	periodStart, err := parseDate(r.PeriodStart)
	if err != nil {
		return domain.CreateClaimInput{}, errors.New("period_start must be a YYYY-MM-DD date")
	}
	periodEnd, err := parseDate(r.PeriodEnd)
	if err != nil {
		return domain.CreateClaimInput{}, errors.New("period_end must be a YYYY-MM-DD date")
	}
	return domain.CreateClaimInput{
		AthleteID:    strings.TrimSpace(r.AthleteID),
		ActivityID:   strings.TrimSpace(r.ActivityID),
		AmountMajor:  r.Amount,
		Currency:     strings.ToUpper(strings.TrimSpace(r.Currency)),
		PeriodStart:  periodStart,
		PeriodEnd:    periodEnd,
		EvidenceURL:  strings.TrimSpace(r.EvidenceURL),
		EvidenceText: strings.TrimSpace(r.EvidenceText),
	}, nil
}

// EvidenceRequest is the payload for PATCH /payments/{id}/evidence.
type EvidenceRequest struct {
	EvidenceURL  string `json:"evidence_url,omitempty"`
	EvidenceText string `json:"evidence_text,omitempty"`
}

// ForceCheckRequest is the payload for POST /notifications/force-check.
type ForceCheckRequest struct {
	DaysThreshold int `json:"days_threshold"`
}

// CreateFeeRequest is the payload for POST /fees. Amount is in major units.
type CreateFeeRequest struct {
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency,omitempty"`
	ActivityType  string  `json:"activity_type"`
	ActivityName  string  `json:"activity_name"`
	Description   string  `json:"description,omitempty"`
	ValidFrom     string  `json:"valid_from"`
	ValidUntil    string  `json:"valid_until,omitempty"`
	ClosePrevious bool    `json:"close_previous"`
}

// ToInput validates the request and converts it to a domain input.
func (r CreateFeeRequest) ToInput() (domain.CreateFeeVersionInput, error) {
	if r.Amount <= 0 {
		return domain.CreateFeeVersionInput{}, errors.New("amount must be > 0")
	}
	if strings.TrimSpace(r.ActivityType) == "" {
		return domain.CreateFeeVersionInput{}, errors.New("activity_type is required")
	}
	validFrom, err := parseDate(r.ValidFrom)
	if err != nil {
		return domain.CreateFeeVersionInput{}, errors.New("valid_from must be a YYYY-MM-DD date")
	}
	var validUntil *time.Time
	if strings.TrimSpace(r.ValidUntil) != "" {
		parsed, err := parseDate(r.ValidUntil)
		if err != nil {
			return domain.CreateFeeVersionInput{}, errors.New("valid_until must be a YYYY-MM-DD date")
		}
		validUntil = &parsed
	}
	return domain.CreateFeeVersionInput{
		AmountMajor:   r.Amount,
		Currency:      strings.ToUpper(strings.TrimSpace(r.Currency)),
		ActivityType:  strings.TrimSpace(r.ActivityType),
		ActivityName:  strings.TrimSpace(r.ActivityName),
		Description:   strings.TrimSpace(r.Description),
		ValidFrom:     validFrom,
		ValidUntil:    validUntil,
		ClosePrevious: r.ClosePrevious,
	}, nil
}

// PaymentView exposes full details about a payment claim.
type PaymentView struct {
	PaymentID    string     `json:"payment_id"`
	AthleteID    string     `json:"athlete_id"`
	ActivityID   string     `json:"activity_id,omitempty"`
	AmountMinor  int64      `json:"amount_minor"`
	Currency     string     `json:"currency"`
	PeriodStart  string     `json:"period_start"`
	PeriodEnd    string     `json:"period_end"`
	Status       string     `json:"status"`
	EvidenceURL  string     `json:"evidence_url,omitempty"`
	EvidenceText string     `json:"evidence_text,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
}

// ListPaymentsResponse packages list results.
type ListPaymentsResponse struct {
	Items      []PaymentView `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// EntitlementView merges the stored grant with its resolver assessment.
type EntitlementView struct {
	AthleteID      string `json:"athlete_id"`
	ActivityID     string `json:"activity_id"`
	IsActive       bool   `json:"is_active"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	DaysUntilDue   int    `json:"days_until_due"`
	Classification string `json:"classification"`
}

// NotificationView is the staff-facing expiry alert shape.
type NotificationView struct {
	AthleteID      string `json:"athlete_id"`
	AthleteName    string `json:"athlete_name"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	ActivityID     string `json:"activity_id,omitempty"`
	ActivityName   string `json:"activity_name,omitempty"`
	ExpirationDate string `json:"expiration_date"`
	DaysUntilDue   int    `json:"days_until_due"`
	IsExpired      bool   `json:"is_expired"`
	AmountMinor    int64  `json:"amount_minor"`
	Currency       string `json:"currency"`
}

// FeeView exposes a fee version.
type FeeView struct {
	FeeVersionID string  `json:"fee_version_id"`
	ActivityType string  `json:"activity_type"`
	ActivityName string  `json:"activity_name"`
	AmountMinor  int64   `json:"amount_minor"`
	Currency     string  `json:"currency"`
	Description  string  `json:"description,omitempty"`
	ValidFrom    string  `json:"valid_from"`
	ValidUntil   *string `json:"valid_until,omitempty"`
	IsActive     bool    `json:"is_active"`
}

// DashboardSummaryResponse is the staff dashboard projection.
type DashboardSummaryResponse struct {
	PendingPayments   int           `json:"pending_payments"`
	ApprovedThisMonth int           `json:"approved_this_month"`
	ActiveAthletes    int           `json:"active_athletes"`
	DueSoonAthletes   int           `json:"due_soon_athletes"`
	ExpiredAthletes   int           `json:"expired_athletes"`
	RecentApproved    []PaymentView `json:"recent_approved"`
}

func parseDate(value string) (time.Time, error) {
	return time.Parse(dateLayout, strings.TrimSpace(value))
}

func toPaymentView(p domain.Payment) PaymentView {
	return PaymentView{
		PaymentID:    p.ID,
		AthleteID:    p.AthleteID,
		ActivityID:   p.ActivityID,
		AmountMinor:  p.AmountMinor,
		Currency:     p.Currency,
		PeriodStart:  p.PeriodStart.Format(dateLayout),
		PeriodEnd:    p.PeriodEnd.Format(dateLayout),
		Status:       string(p.Status),
		EvidenceURL:  p.Evidence.URL,
		EvidenceText: p.Evidence.Text,
		CreatedAt:    p.CreatedAt,
		ApprovedAt:   p.ApprovedAt,
	}
}

func toPaymentViews(payments []domain.Payment) []PaymentView {
	views := make([]PaymentView, 0, len(payments))
	for _, p := range payments {
		views = append(views, toPaymentView(p))
	}
	return views
}

func toNotificationView(record domain.NotificationRecord) NotificationView {
	return NotificationView{
		AthleteID:      record.AthleteID,
		AthleteName:    record.AthleteName,
		Email:          record.Email,
		Phone:          record.Phone,
		ActivityID:     record.ActivityID,
		ActivityName:   record.ActivityName,
		ExpirationDate: record.ExpirationDate.Format(dateLayout),
		DaysUntilDue:   record.DaysUntilDue,
		IsExpired:      record.IsExpired,
		AmountMinor:    record.AmountMinor,
		Currency:       record.Currency,
	}
}

func toFeeView(f domain.FeeVersion) FeeView {
	view := FeeView{
		FeeVersionID: f.ID,
		ActivityType: f.ActivityType,
		ActivityName: f.ActivityName,
		AmountMinor:  f.AmountMinor,
		Currency:     f.Currency,
		Description:  f.Description,
		ValidFrom:    f.ValidFrom.Format(dateLayout),
		IsActive:     f.IsActive,
	}
	if f.ValidUntil != nil {
		until := f.ValidUntil.Format(dateLayout)
		view.ValidUntil = &until
	}
	return view
}
