package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/membership/internal/domain"
)

type fakeLedger struct {
	approved map[string][]domain.Payment
	failFor  map[string]error
}

func (f *fakeLedger) ListApprovedByAthlete(ctx context.Context, athleteID string) ([]domain.Payment, error) {
	if err, ok := f.failFor[athleteID]; ok {
		return nil, err
	}
	return f.approved[athleteID], nil
}

type fakeDirectory struct {
	athletes   []domain.Athlete
	activities map[string]string
}

func (f *fakeDirectory) GetAthlete(ctx context.Context, athleteID string) (*domain.Athlete, error) {
	for _, a := range f.athletes {
		if a.ID == athleteID {
			copied := a
			return &copied, nil
		}
	}
	return nil, domain.ErrAthleteNotFound
}

func (f *fakeDirectory) ListActiveAthletes(ctx context.Context) ([]domain.Athlete, error) {
	return f.athletes, nil
}

func (f *fakeDirectory) GetActivity(ctx context.Context, activityID string) (*domain.Activity, error) {
	name, ok := f.activities[activityID]
	if !ok {
		return nil, nil
	}
	return &domain.Activity{ID: activityID, Name: name}, nil
}

type capturingPublisher struct {
	topic    string
	messages []kafka.Message
}

func (c *capturingPublisher) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	c.topic = topic
	c.messages = append(c.messages, msgs...)
	return nil
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func approvedPayment(athleteID, activityID string, periodEnd time.Time) domain.Payment {
	return domain.Payment{
		ID:          athleteID + "-" + activityID,
		AthleteID:   athleteID,
		ActivityID:  activityID,
		AmountMinor: 5000,
		Currency:    domain.DefaultCurrency,
		PeriodStart: periodEnd.AddDate(0, -1, 0),
		PeriodEnd:   periodEnd,
		Status:      domain.PaymentStatusApproved,
	}
}

func TestForceCheckEmitsDueSoonAndExpired(t *testing.T) {
	now := time.Date(2025, time.October, 29, 8, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{approved: map[string][]domain.Payment{
		"ath-due":     {approvedPayment("ath-due", "act-1", date(2025, time.October, 31))},
		"ath-expired": {approvedPayment("ath-expired", "act-1", date(2025, time.September, 30))},
		"ath-active":  {approvedPayment("ath-active", "act-1", date(2025, time.December, 31))},
	}}
	directory := &fakeDirectory{
		athletes: []domain.Athlete{
			{ID: "ath-due", FullName: "Avery", Email: "avery@example.com", Active: true},
			{ID: "ath-expired", FullName: "Blake", Active: true},
			{ID: "ath-active", FullName: "Casey", Active: true},
		},
		activities: map[string]string{"act-1": "CrossFit"},
	}
	s := New(ledger, directory, domain.FixedClock{Instant: now}, zerolog.Nop(), nil, Config{})

	records, err := s.ForceCheck(context.Background(), domain.DefaultDueSoonThreshold)
	require.NoError(t, err)
	require.Len(t, records, 2)

	due := records[0]
	assert.Equal(t, "ath-due", due.AthleteID)
	assert.Equal(t, "Avery", due.AthleteName)
	assert.Equal(t, "avery@example.com", due.Email)
	assert.Equal(t, "CrossFit", due.ActivityName)
	assert.Equal(t, 2, due.DaysUntilDue)
	assert.False(t, due.IsExpired)
	assert.Equal(t, date(2025, time.October, 31), due.ExpirationDate)
	assert.Equal(t, int64(5000), due.AmountMinor)

	expired := records[1]
	assert.Equal(t, "ath-expired", expired.AthleteID)
	assert.True(t, expired.IsExpired)
	assert.Equal(t, -29, expired.DaysUntilDue)
}

func TestForceCheckSkipsAthletesWithoutPayments(t *testing.T) {
	now := time.Date(2025, time.October, 29, 8, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{approved: map[string][]domain.Payment{}}
	directory := &fakeDirectory{athletes: []domain.Athlete{{ID: "ath-new", FullName: "Drew", Active: true}}}
	s := New(ledger, directory, domain.FixedClock{Instant: now}, zerolog.Nop(), nil, Config{})

	records, err := s.ForceCheck(context.Background(), domain.DefaultDueSoonThreshold)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestForceCheckIsolatesAthleteFailures(t *testing.T) {
	now := time.Date(2025, time.October, 29, 8, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{
		approved: map[string][]domain.Payment{
			"ath-good": {approvedPayment("ath-good", "act-1", date(2025, time.October, 30))},
		},
		failFor: map[string]error{"ath-bad": errors.New("connection reset")},
	}
	directory := &fakeDirectory{
		athletes: []domain.Athlete{
			{ID: "ath-bad", FullName: "Avery", Active: true},
			{ID: "ath-good", FullName: "Blake", Active: true},
		},
		activities: map[string]string{"act-1": "CrossFit"},
	}
	s := New(ledger, directory, domain.FixedClock{Instant: now}, zerolog.Nop(), nil, Config{})

	records, err := s.ForceCheck(context.Background(), domain.DefaultDueSoonThreshold)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ath-good", records[0].AthleteID)
}

func TestForceCheckThresholdWidensWindow(t *testing.T) {
	now := time.Date(2025, time.October, 21, 8, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{approved: map[string][]domain.Payment{
		"ath-1": {approvedPayment("ath-1", "act-1", date(2025, time.October, 31))},
	}}
	directory := &fakeDirectory{
		athletes:   []domain.Athlete{{ID: "ath-1", FullName: "Avery", Active: true}},
		activities: map[string]string{"act-1": "CrossFit"},
	}
	s := New(ledger, directory, domain.FixedClock{Instant: now}, zerolog.Nop(), nil, Config{})

	records, err := s.ForceCheck(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, records, "10 days out is outside a 3 day window")

	records, err = s.ForceCheck(context.Background(), 14)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 10, records[0].DaysUntilDue)
}

func TestForceCheckIsRepeatable(t *testing.T) {
	now := time.Date(2025, time.October, 29, 8, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{approved: map[string][]domain.Payment{
		"ath-1": {approvedPayment("ath-1", "act-1", date(2025, time.October, 31))},
	}}
	directory := &fakeDirectory{
		athletes:   []domain.Athlete{{ID: "ath-1", FullName: "Avery", Active: true}},
		activities: map[string]string{"act-1": "CrossFit"},
	}
	s := New(ledger, directory, domain.FixedClock{Instant: now}, zerolog.Nop(), nil, Config{})

	first, err := s.ForceCheck(context.Background(), domain.DefaultDueSoonThreshold)
	require.NoError(t, err)
	second, err := s.ForceCheck(context.Background(), domain.DefaultDueSoonThreshold)
	require.NoError(t, err)
	assert.Equal(t, first, second, "scanning mutates nothing")
}

func TestForceCheckDefaultsThreshold(t *testing.T) {
	now := time.Date(2025, time.October, 29, 8, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{approved: map[string][]domain.Payment{
		"ath-1": {approvedPayment("ath-1", "act-1", date(2025, time.October, 31))},
	}}
	directory := &fakeDirectory{
		athletes:   []domain.Athlete{{ID: "ath-1", FullName: "Avery", Active: true}},
		activities: map[string]string{"act-1": "CrossFit"},
	}
	s := New(ledger, directory, domain.FixedClock{Instant: now}, zerolog.Nop(), nil, Config{})

	records, err := s.ForceCheck(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1, "non-positive thresholds fall back to the default window")
}

func TestPublishRoutesToNotificationTopic(t *testing.T) {
	now := time.Date(2025, time.October, 29, 8, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{approved: map[string][]domain.Payment{
		"ath-1": {approvedPayment("ath-1", "act-1", date(2025, time.October, 31))},
	}}
	directory := &fakeDirectory{
		athletes:   []domain.Athlete{{ID: "ath-1", FullName: "Avery", Active: true}},
		activities: map[string]string{"act-1": "CrossFit"},
	}
	producer := &capturingPublisher{}
	s := New(ledger, directory, domain.FixedClock{Instant: now}, zerolog.Nop(), producer, Config{})

	records, err := s.ForceCheck(context.Background(), domain.DefaultDueSoonThreshold)
	require.NoError(t, err)
	s.publish(context.Background(), records)

	assert.Equal(t, NotificationTopic, producer.topic)
	require.Len(t, producer.messages, 1)
	assert.Equal(t, []byte("ath-1"), producer.messages[0].Key)
	assert.Contains(t, string(producer.messages[0].Value), "ath-1")
}
