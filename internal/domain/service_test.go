package domain

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLedger mirrors the repository's transactional semantics in memory.
type fakeLedger struct {
	payments     map[string]*Payment
	entitlements map[string]*ActivityEntitlement
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		payments:     make(map[string]*Payment),
		entitlements: make(map[string]*ActivityEntitlement),
	}
}

func (f *fakeLedger) CreatePayment(ctx context.Context, payment Payment) error {
	f.payments[payment.ID] = &payment
	return nil
}

func (f *fakeLedger) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	p, ok := f.payments[paymentID]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (f *fakeLedger) ListByAthlete(ctx context.Context, athleteID string, cursor *Cursor, limit int) ([]Payment, *Cursor, error) {
	var results []Payment
	for _, p := range f.payments {
		if p.AthleteID == athleteID {
			results = append(results, *p)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.After(results[j].CreatedAt) })
	return results, nil, nil
}

func (f *fakeLedger) ListPending(ctx context.Context, coachID string) ([]Payment, error) {
	var results []Payment
	for _, p := range f.payments {
		if p.Status == PaymentStatusPending {
			results = append(results, *p)
		}
	}
	return results, nil
}

func (f *fakeLedger) ListApprovedByAthlete(ctx context.Context, athleteID string) ([]Payment, error) {
	var results []Payment
	for _, p := range f.payments {
		if p.AthleteID == athleteID && p.Status == PaymentStatusApproved {
			results = append(results, *p)
		}
	}
	return results, nil
}

func (f *fakeLedger) UpdateEvidence(ctx context.Context, paymentID string, evidence Evidence) (*Payment, error) {
	p, ok := f.payments[paymentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	p.Evidence = evidence
	copied := *p
	return &copied, nil
}

func (f *fakeLedger) Approve(ctx context.Context, paymentID string, now time.Time) (*Payment, error) {
	p, ok := f.payments[paymentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	if !p.Status.CanTransitionTo(PaymentStatusApproved) {
		return nil, ErrPaymentNotPending
	}
	p.Status = PaymentStatusApproved
	p.ApprovedAt = &now

	if p.ActivityID != "" {
		key := p.AthleteID + "|" + p.ActivityID
		if existing, ok := f.entitlements[key]; ok {
			existing.EndDate = p.PeriodEnd
			existing.IsActive = true
			existing.UpdatedAt = now
		} else {
			f.entitlements[key] = &ActivityEntitlement{
				AthleteID:  p.AthleteID,
				ActivityID: p.ActivityID,
				IsActive:   true,
				StartDate:  now,
				EndDate:    p.PeriodEnd,
				UpdatedAt:  now,
			}
		}
	}
	copied := *p
	return &copied, nil
}

func (f *fakeLedger) Reject(ctx context.Context, paymentID string, now time.Time) (*Payment, error) {
	p, ok := f.payments[paymentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	if !p.Status.CanTransitionTo(PaymentStatusRejected) {
		return nil, ErrPaymentNotPending
	}
	p.Status = PaymentStatusRejected
	copied := *p
	return &copied, nil
}

func (f *fakeLedger) ListEntitlements(ctx context.Context, athleteID string) ([]ActivityEntitlement, error) {
	var results []ActivityEntitlement
	for _, e := range f.entitlements {
		if e.AthleteID == athleteID {
			results = append(results, *e)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ActivityID < results[j].ActivityID })
	return results, nil
}

func (f *fakeLedger) LedgerSummary(ctx context.Context, monthStart time.Time, recentLimit int) (*LedgerSummary, error) {
	summary := &LedgerSummary{}
	for _, p := range f.payments {
		if p.Status == PaymentStatusPending {
			summary.PendingPayments++
		}
		if p.Status == PaymentStatusApproved && p.ApprovedAt != nil && !p.ApprovedAt.Before(monthStart) {
			summary.ApprovedThisMonth++
		}
	}
	return summary, nil
}

type fakeFees struct {
	versions []FeeVersion
	closed   bool
}

func (f *fakeFees) CreateVersion(ctx context.Context, version FeeVersion, closePrevious bool) error {
	if closePrevious {
		f.closed = true
		for i := range f.versions {
			if f.versions[i].ActivityType == version.ActivityType && f.versions[i].ValidUntil == nil {
				closeTo := version.ValidFrom.AddDate(0, 0, -1)
				f.versions[i].ValidUntil = &closeTo
			}
		}
	}
	f.versions = append(f.versions, version)
	return nil
}

func (f *fakeFees) GetCurrent(ctx context.Context, activityType string, asOf time.Time) (*FeeVersion, error) {
	var current *FeeVersion
	for i := range f.versions {
		v := &f.versions[i]
		if v.ActivityType != activityType || !v.IsCurrent(asOf) {
			continue
		}
		if current == nil || v.ValidFrom.After(current.ValidFrom) {
			current = v
		}
	}
	if current == nil {
		return nil, nil
	}
	copied := *current
	return &copied, nil
}

type fakeDirectory struct {
	athletes []Athlete
}

func (f *fakeDirectory) GetAthlete(ctx context.Context, athleteID string) (*Athlete, error) {
	for _, a := range f.athletes {
		if a.ID == athleteID {
			copied := a
			return &copied, nil
		}
	}
	return nil, ErrAthleteNotFound
}

func (f *fakeDirectory) ListActiveAthletes(ctx context.Context) ([]Athlete, error) {
	var results []Athlete
	for _, a := range f.athletes {
		if a.Active {
			results = append(results, a)
		}
	}
	return results, nil
}

func (f *fakeDirectory) GetActivity(ctx context.Context, activityID string) (*Activity, error) {
	return &Activity{ID: activityID, Name: "Activity " + activityID}, nil
}

func newTestService(clock Clock) (*Service, *fakeLedger, *fakeFees, *fakeDirectory) {
	ledger := newFakeLedger()
	fees := &fakeFees{}
	directory := &fakeDirectory{}
	return NewService(ledger, fees, directory, clock), ledger, fees, directory
}

func TestCreateClaimConvertsToMinorUnits(t *testing.T) {
	now := time.Date(2025, time.October, 2, 10, 30, 0, 0, time.UTC)
	svc, _, _, _ := newTestService(FixedClock{Instant: now})

	payment, err := svc.CreateClaim(context.Background(), CreateClaimInput{
		AthleteID:   "ath-1",
		AmountMajor: 49.99,
		PeriodStart: time.Date(2025, time.October, 1, 14, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, time.October, 31, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(4999), payment.AmountMinor)
	assert.Equal(t, DefaultCurrency, payment.Currency)
	assert.Equal(t, PaymentStatusPending, payment.Status)
	assert.Equal(t, date(2025, time.October, 1), payment.PeriodStart)
	assert.Equal(t, date(2025, time.October, 31), payment.PeriodEnd)
	assert.Equal(t, now, payment.CreatedAt)
	assert.Nil(t, payment.ApprovedAt)
}

func TestCreateClaimValidation(t *testing.T) {
	svc, _, _, _ := newTestService(nil)
	ctx := context.Background()

	_, err := svc.CreateClaim(ctx, CreateClaimInput{
		AthleteID:   "ath-1",
		AmountMajor: -10,
		PeriodStart: date(2025, time.October, 1),
		PeriodEnd:   date(2025, time.October, 31),
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateClaim(ctx, CreateClaimInput{
		AthleteID:   "ath-1",
		AmountMajor: 10,
		PeriodStart: date(2025, time.October, 31),
		PeriodEnd:   date(2025, time.October, 1),
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateClaim(ctx, CreateClaimInput{
		AmountMajor: 10,
		PeriodStart: date(2025, time.October, 1),
		PeriodEnd:   date(2025, time.October, 31),
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestApproveGrantsEntitlement(t *testing.T) {
	now := time.Date(2025, time.October, 2, 9, 0, 0, 0, time.UTC)
	svc, ledger, _, _ := newTestService(FixedClock{Instant: now})
	ctx := context.Background()

	payment, err := svc.CreateClaim(ctx, CreateClaimInput{
		AthleteID:   "ath-1",
		ActivityID:  "act-1",
		AmountMajor: 50,
		PeriodStart: date(2025, time.October, 1),
		PeriodEnd:   date(2025, time.October, 31),
	})
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, now, *approved.ApprovedAt)

	entitlements, err := ledger.ListEntitlements(ctx, "ath-1")
	require.NoError(t, err)
	require.Len(t, entitlements, 1)
	assert.True(t, entitlements[0].IsActive)
	assert.Equal(t, date(2025, time.October, 31), entitlements[0].EndDate)
}

func TestApproveIsGuardedAgainstReplay(t *testing.T) {
	svc, _, _, _ := newTestService(nil)
	ctx := context.Background()

	payment, err := svc.CreateClaim(ctx, CreateClaimInput{
		AthleteID:   "ath-1",
		AmountMajor: 50,
		PeriodStart: date(2025, time.October, 1),
		PeriodEnd:   date(2025, time.October, 31),
	})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, payment.ID)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, payment.ID)
	assert.ErrorIs(t, err, ErrPaymentNotPending)

	_, err = svc.Reject(ctx, payment.ID)
	assert.ErrorIs(t, err, ErrPaymentNotPending)
}

func TestRejectIsTerminal(t *testing.T) {
	svc, _, _, _ := newTestService(nil)
	ctx := context.Background()

	payment, err := svc.CreateClaim(ctx, CreateClaimInput{
		AthleteID:   "ath-1",
		AmountMajor: 50,
		PeriodStart: date(2025, time.October, 1),
		PeriodEnd:   date(2025, time.October, 31),
	})
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusRejected, rejected.Status)
	assert.Nil(t, rejected.ApprovedAt)

	_, err = svc.Approve(ctx, payment.ID)
	assert.ErrorIs(t, err, ErrPaymentNotPending)
}

func TestGetPayment(t *testing.T) {
	svc, _, _, _ := newTestService(nil)
	ctx := context.Background()

	payment, err := svc.CreateClaim(ctx, CreateClaimInput{
		AthleteID:   "ath-1",
		AmountMajor: 50,
		PeriodStart: date(2025, time.October, 1),
		PeriodEnd:   date(2025, time.October, 31),
	})
	require.NoError(t, err)

	found, err := svc.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, found.ID)

	_, err = svc.GetPayment(ctx, "missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestApproveUnknownPayment(t *testing.T) {
	svc, _, _, _ := newTestService(nil)

	_, err := svc.Approve(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestApproveOneActivityLeavesOthersAlone(t *testing.T) {
	svc, ledger, _, _ := newTestService(nil)
	ctx := context.Background()

	first, err := svc.CreateClaim(ctx, CreateClaimInput{
		AthleteID:   "ath-1",
		ActivityID:  "act-a",
		AmountMajor: 50,
		PeriodStart: date(2025, time.October, 1),
		PeriodEnd:   date(2025, time.October, 31),
	})
	require.NoError(t, err)
	second, err := svc.CreateClaim(ctx, CreateClaimInput{
		AthleteID:   "ath-1",
		ActivityID:  "act-b",
		AmountMajor: 30,
		PeriodStart: date(2025, time.October, 1),
		PeriodEnd:   date(2025, time.November, 30),
	})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, first.ID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, second.ID)
	require.NoError(t, err)

	entitlements, err := ledger.ListEntitlements(ctx, "ath-1")
	require.NoError(t, err)
	require.Len(t, entitlements, 2)
	assert.Equal(t, "act-a", entitlements[0].ActivityID)
	assert.True(t, entitlements[0].IsActive)
	assert.Equal(t, date(2025, time.October, 31), entitlements[0].EndDate)
	assert.Equal(t, "act-b", entitlements[1].ActivityID)
	assert.True(t, entitlements[1].IsActive)
	assert.Equal(t, date(2025, time.November, 30), entitlements[1].EndDate)
}

func TestSequentialApprovalsExtendEndDate(t *testing.T) {
	svc, ledger, _, _ := newTestService(nil)
	ctx := context.Background()

	september, err := svc.CreateClaim(ctx, CreateClaimInput{
		AthleteID:   "ath-1",
		ActivityID:  "act-1",
		AmountMajor: 50,
		PeriodStart: date(2025, time.September, 1),
		PeriodEnd:   date(2025, time.September, 30),
	})
	require.NoError(t, err)
	october, err := svc.CreateClaim(ctx, CreateClaimInput{
		AthleteID:   "ath-1",
		ActivityID:  "act-1",
		AmountMajor: 50,
		PeriodStart: date(2025, time.October, 1),
		PeriodEnd:   date(2025, time.October, 31),
	})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, september.ID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, october.ID)
	require.NoError(t, err)

	entitlements, err := ledger.ListEntitlements(ctx, "ath-1")
	require.NoError(t, err)
	require.Len(t, entitlements, 1)
	assert.Equal(t, date(2025, time.October, 31), entitlements[0].EndDate)
}

func TestHasAccessReflectsEntitlements(t *testing.T) {
	now := time.Date(2025, time.October, 29, 12, 0, 0, 0, time.UTC)
	svc, _, _, _ := newTestService(FixedClock{Instant: now})
	ctx := context.Background()

	hasAccess, err := svc.HasAccess(ctx, "ath-1")
	require.NoError(t, err)
	assert.False(t, hasAccess, "athlete with no payments has no access")

	payment, err := svc.CreateClaim(ctx, CreateClaimInput{
		AthleteID:   "ath-1",
		ActivityID:  "act-1",
		AmountMajor: 50,
		PeriodStart: date(2025, time.October, 1),
		PeriodEnd:   date(2025, time.October, 31),
	})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, payment.ID)
	require.NoError(t, err)

	hasAccess, err = svc.HasAccess(ctx, "ath-1")
	require.NoError(t, err)
	assert.True(t, hasAccess)
}

func TestAttachEvidenceRequiresContent(t *testing.T) {
	svc, _, _, _ := newTestService(nil)

	_, err := svc.AttachEvidence(context.Background(), "p-1", Evidence{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAttachEvidenceKeepsStatus(t *testing.T) {
	svc, _, _, _ := newTestService(nil)
	ctx := context.Background()

	payment, err := svc.CreateClaim(ctx, CreateClaimInput{
		AthleteID:   "ath-1",
		AmountMajor: 50,
		PeriodStart: date(2025, time.October, 1),
		PeriodEnd:   date(2025, time.October, 31),
	})
	require.NoError(t, err)

	updated, err := svc.AttachEvidence(ctx, payment.ID, Evidence{URL: "https://bank.example/receipt/1"})
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPending, updated.Status)
	assert.Equal(t, "https://bank.example/receipt/1", updated.Evidence.URL)
}

func TestCreateFeeVersionClosesPrevious(t *testing.T) {
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	svc, _, fees, _ := newTestService(FixedClock{Instant: now})
	ctx := context.Background()

	_, err := svc.CreateFeeVersion(ctx, CreateFeeVersionInput{
		AmountMajor:  60,
		ActivityType: "crossfit",
		ActivityName: "CrossFit",
		ValidFrom:    date(2025, time.January, 1),
	})
	require.NoError(t, err)

	_, err = svc.CreateFeeVersion(ctx, CreateFeeVersionInput{
		AmountMajor:   75,
		ActivityType:  "crossfit",
		ActivityName:  "CrossFit",
		ValidFrom:     date(2025, time.July, 1),
		ClosePrevious: true,
	})
	require.NoError(t, err)

	require.Len(t, fees.versions, 2)
	require.NotNil(t, fees.versions[0].ValidUntil)
	assert.Equal(t, date(2025, time.June, 30), *fees.versions[0].ValidUntil)

	current, err := svc.CurrentFee(ctx, "crossfit")
	require.NoError(t, err)
	assert.Equal(t, int64(6000), current.AmountMinor, "old version still current until july")
}

func TestCurrentFeeMissing(t *testing.T) {
	svc, _, _, _ := newTestService(nil)

	_, err := svc.CurrentFee(context.Background(), "yoga")
	assert.ErrorIs(t, err, ErrNoCurrentFee)
}

func TestCreateFeeVersionValidation(t *testing.T) {
	svc, _, _, _ := newTestService(nil)
	ctx := context.Background()

	_, err := svc.CreateFeeVersion(ctx, CreateFeeVersionInput{
		AmountMajor:  0,
		ActivityType: "crossfit",
		ValidFrom:    date(2025, time.January, 1),
	})
	assert.ErrorIs(t, err, ErrValidation)

	until := date(2024, time.December, 1)
	_, err = svc.CreateFeeVersion(ctx, CreateFeeVersionInput{
		AmountMajor:  50,
		ActivityType: "crossfit",
		ValidFrom:    date(2025, time.January, 1),
		ValidUntil:   &until,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDashboardSummaryClassifiesAthletes(t *testing.T) {
	now := time.Date(2025, time.October, 29, 12, 0, 0, 0, time.UTC)
	svc, _, _, directory := newTestService(FixedClock{Instant: now})
	ctx := context.Background()

	directory.athletes = []Athlete{
		{ID: "ath-active", FullName: "Avery", Active: true},
		{ID: "ath-due", FullName: "Blake", Active: true},
		{ID: "ath-expired", FullName: "Casey", Active: true},
		{ID: "ath-inactive", FullName: "Drew", Active: false},
	}

	seed := func(athleteID string, periodEnd time.Time) {
		payment, err := svc.CreateClaim(ctx, CreateClaimInput{
			AthleteID:   athleteID,
			ActivityID:  "act-1",
			AmountMajor: 50,
			PeriodStart: periodEnd.AddDate(0, -1, 0),
			PeriodEnd:   periodEnd,
		})
		require.NoError(t, err)
		_, err = svc.Approve(ctx, payment.ID)
		require.NoError(t, err)
	}

	seed("ath-active", date(2025, time.December, 31))
	seed("ath-due", date(2025, time.October, 31))
	seed("ath-expired", date(2025, time.September, 30))

	summary, err := svc.DashboardSummary(ctx, DefaultDueSoonThreshold)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ActiveAthletes)
	assert.Equal(t, 1, summary.DueSoonAthletes)
	assert.Equal(t, 1, summary.ExpiredAthletes)
	assert.Equal(t, 3, summary.ApprovedThisMonth)
	assert.Equal(t, 0, summary.PendingPayments)
}
