// Package domain defines the business logic for the membership service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrValidation marks malformed input; wrappers name the offending field.
	ErrValidation = errors.New("validation failed")
	// ErrPaymentNotFound is returned when a payment cannot be located.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrPaymentNotPending rejects approve/reject calls on a payment whose status
	// is already terminal.
	ErrPaymentNotPending = errors.New("payment is not pending")
	// ErrAthleteNotFound is returned when the directory has no such athlete.
	ErrAthleteNotFound = errors.New("athlete not found")
	// ErrNoCurrentFee indicates no fee version prices the activity on the given date.
	ErrNoCurrentFee = errors.New("no current fee version")
)

// Cursor models the pagination token for athlete payment listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// PaymentRepository captures persistence operations over the payment ledger and
// the entitlements derived from it. Approve and Reject are transactional: either
// every effect commits or none does.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment Payment) error
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	ListByAthlete(ctx context.Context, athleteID string, cursor *Cursor, limit int) ([]Payment, *Cursor, error)
	ListPending(ctx context.Context, coachID string) ([]Payment, error)
	ListApprovedByAthlete(ctx context.Context, athleteID string) ([]Payment, error)
	UpdateEvidence(ctx context.Context, paymentID string, evidence Evidence) (*Payment, error)
	Approve(ctx context.Context, paymentID string, now time.Time) (*Payment, error)
	Reject(ctx context.Context, paymentID string, now time.Time) (*Payment, error)
	ListEntitlements(ctx context.Context, athleteID string) ([]ActivityEntitlement, error)
	LedgerSummary(ctx context.Context, monthStart time.Time, recentLimit int) (*LedgerSummary, error)
}

// FeeRepository stores versioned price records.
type FeeRepository interface {
	CreateVersion(ctx context.Context, version FeeVersion, closePrevious bool) error
	GetCurrent(ctx context.Context, activityType string, asOf time.Time) (*FeeVersion, error)
}

// Directory is the read-only collaborator holding athletes and activities.
type Directory interface {
	GetAthlete(ctx context.Context, athleteID string) (*Athlete, error)
	ListActiveAthletes(ctx context.Context) ([]Athlete, error)
	GetActivity(ctx context.Context, activityID string) (*Activity, error)
}

// Service orchestrates the payment lifecycle and the entitlement it grants.
type Service struct {
	payments  PaymentRepository
	fees      FeeRepository
	directory Directory
	clock     Clock
}

// NewService constructs a Service.
func NewService(payments PaymentRepository, fees FeeRepository, directory Directory, clock Clock) *Service {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Service{payments: payments, fees: fees, directory: directory, clock: clock}
}

// CreateClaimInput captures the payload from the API layer. Amount is in major units.
type CreateClaimInput struct {
	AthleteID    string
	ActivityID   string
	AmountMajor  float64
	Currency     string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	EvidenceURL  string
	EvidenceText string
}

// CreateClaim records a new payment claim in pending state.
func (s *Service) CreateClaim(ctx context.Context, input CreateClaimInput) (*Payment, error) {
	if input.AthleteID == "" {
		return nil, fmt.Errorf("%w: athlete_id is required", ErrValidation)
	}
	if err := ValidateCoverage(input.AmountMajor, input.PeriodStart, input.PeriodEnd); err != nil {
		return nil, err
	}
	currency := input.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	payment := Payment{
		ID:          uuid.NewString(),
		AthleteID:   input.AthleteID,
		ActivityID:  input.ActivityID,
		AmountMinor: ToMinorUnits(input.AmountMajor),
		Currency:    currency,
		PeriodStart: truncateToDay(input.PeriodStart),
		PeriodEnd:   truncateToDay(input.PeriodEnd),
		Status:      PaymentStatusPending,
		Evidence:    Evidence{URL: input.EvidenceURL, Text: input.EvidenceText},
		CreatedAt:   s.clock.Now(),
	}
	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPayment fetches a single claim by ID.
func (s *Service) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	payment, err := s.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// ListByAthlete returns an athlete's claims newest first with cursor pagination.
func (s *Service) ListByAthlete(ctx context.Context, athleteID string, cursor *Cursor, limit int) ([]Payment, *Cursor, error) {
	return s.payments.ListByAthlete(ctx, athleteID, cursor, limit)
}

// ListPending returns the staff approval queue, optionally scoped to one coach's athletes.
func (s *Service) ListPending(ctx context.Context, coachID string) ([]Payment, error) {
	return s.payments.ListPending(ctx, coachID)
}

// Approve flips a pending payment to approved and, in the same transaction, grants
// or extends the activity entitlement it references.
func (s *Service) Approve(ctx context.Context, paymentID string) (*Payment, error) {
	return s.payments.Approve(ctx, paymentID, s.clock.Now())
}

// Reject flips a pending payment to rejected. No entitlement side effect; irreversible.
func (s *Service) Reject(ctx context.Context, paymentID string) (*Payment, error) {
	return s.payments.Reject(ctx, paymentID, s.clock.Now())
}

// AttachEvidence records or replaces payment evidence without touching status.
func (s *Service) AttachEvidence(ctx context.Context, paymentID string, evidence Evidence) (*Payment, error) {
	if evidence.URL == "" && evidence.Text == "" {
		return nil, fmt.Errorf("%w: evidence_url or evidence_text is required", ErrValidation)
	}
	return s.payments.UpdateEvidence(ctx, paymentID, evidence)
}

// EntitlementView pairs a stored entitlement with its resolver assessment.
type EntitlementView struct {
	Entitlement ActivityEntitlement
	Assessment  Assessment
}

// AthleteEntitlements resolves the standing of every activity the athlete has
// approved payments for, against the supplied warning threshold.
func (s *Service) AthleteEntitlements(ctx context.Context, athleteID string, threshold int) ([]EntitlementView, error) {
	entitlements, err := s.payments.ListEntitlements(ctx, athleteID)
	if err != nil {
		return nil, err
	}
	approved, err := s.payments.ListApprovedByAthlete(ctx, athleteID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	byActivity := make(map[string][]Payment)
	for _, p := range approved {
		byActivity[p.ActivityID] = append(byActivity[p.ActivityID], p)
	}

	views := make([]EntitlementView, 0, len(entitlements))
	for _, ent := range entitlements {
		views = append(views, EntitlementView{
			Entitlement: ent,
			Assessment:  Resolve(now, threshold, byActivity[ent.ActivityID]),
		})
	}
	return views, nil
}

// HasAccess is the binary gate consumed by the access-control collaborator.
func (s *Service) HasAccess(ctx context.Context, athleteID string) (bool, error) {
	entitlements, err := s.payments.ListEntitlements(ctx, athleteID)
	if err != nil {
		return false, err
	}
	return HasAccess(s.clock.Now(), entitlements), nil
}

// CreateFeeVersionInput captures a new price record. Amount is in major units.
type CreateFeeVersionInput struct {
	AmountMajor   float64
	Currency      string
	ActivityType  string
	ActivityName  string
	Description   string
	ValidFrom     time.Time
	ValidUntil    *time.Time
	ClosePrevious bool
}

// CreateFeeVersion inserts a new fee version. With ClosePrevious set, the still-open
// current version for the activity is closed to the day before ValidFrom in the same
// transaction, so no instant has two current versions.
func (s *Service) CreateFeeVersion(ctx context.Context, input CreateFeeVersionInput) (*FeeVersion, error) {
	if err := ValidateFeeVersion(input.AmountMajor, input.ActivityType, input.ValidFrom, input.ValidUntil); err != nil {
		return nil, err
	}
	currency := input.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	var validUntil *time.Time
	if input.ValidUntil != nil {
		day := truncateToDay(*input.ValidUntil)
		validUntil = &day
	}
	version := FeeVersion{
		ID:           uuid.NewString(),
		ActivityType: input.ActivityType,
		ActivityName: input.ActivityName,
		AmountMinor:  ToMinorUnits(input.AmountMajor),
		Currency:     currency,
		Description:  input.Description,
		ValidFrom:    truncateToDay(input.ValidFrom),
		ValidUntil:   validUntil,
		IsActive:     true,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.fees.CreateVersion(ctx, version, input.ClosePrevious); err != nil {
		return nil, err
	}
	return &version, nil
}

// CurrentFee returns the fee version pricing the activity today.
func (s *Service) CurrentFee(ctx context.Context, activityType string) (*FeeVersion, error) {
	version, err := s.fees.GetCurrent(ctx, activityType, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, ErrNoCurrentFee
	}
	return version, nil
}

// LedgerSummary aggregates counts for the staff dashboard.
type LedgerSummary struct {
	PendingPayments   int
	ApprovedThisMonth int
	RecentApproved    []Payment
	ActiveAthletes    int
	DueSoonAthletes   int
	ExpiredAthletes   int
}

// DashboardSummary produces the read projection consumed by staff dashboards:
// queue depth, this month's approvals, a recent-approvals feed, and athlete
// standing counts via the shared resolver.
func (s *Service) DashboardSummary(ctx context.Context, threshold int) (*LedgerSummary, error) {
	now := s.clock.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	summary, err := s.payments.LedgerSummary(ctx, monthStart, 10)
	if err != nil {
		return nil, err
	}

	athletes, err := s.directory.ListActiveAthletes(ctx)
	if err != nil {
		return nil, err
	}
	for _, athlete := range athletes {
		approved, err := s.payments.ListApprovedByAthlete(ctx, athlete.ID)
		if err != nil {
			return nil, err
		}
		switch Resolve(now, threshold, approved).Classification {
		case ClassificationActive:
			summary.ActiveAthletes++
		case ClassificationDueSoon, ClassificationDueToday:
			summary.DueSoonAthletes++
		case ClassificationExpired:
			summary.ExpiredAthletes++
		}
	}
	return summary, nil
}
