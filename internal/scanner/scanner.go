// Package scanner periodically re-evaluates athlete entitlements and emits
// staff-facing expiry notifications.
package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"example.com/membership/internal/domain"
	"example.com/membership/internal/events"
)

// LedgerReader is the read-only slice of the payment repository the scanner needs.
type LedgerReader interface {
	ListApprovedByAthlete(ctx context.Context, athleteID string) ([]domain.Payment, error)
}

type publisher interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// NotificationTopic receives one message per emitted record on scheduled scans.
const NotificationTopic = "membership_expiry_notifications"

// Scanner walks every active athlete's approved payments and classifies each
// activity against a lead-time threshold. It only reads; entitlement mutation
// happens exclusively through approval.
type Scanner struct {
	ledger           LedgerReader
	directory        domain.Directory
	clock            domain.Clock
	logger           zerolog.Logger
	producer         publisher
	interval         time.Duration
	threshold        int
	shutdownComplete chan struct{}
}

// Config carries scanner tunables.
type Config struct {
	Interval      time.Duration
	DaysThreshold int
}

// New constructs a Scanner. producer may be nil when scheduled publication is off.
func New(ledger LedgerReader, directory domain.Directory, clock domain.Clock, logger zerolog.Logger, producer publisher, cfg Config) *Scanner {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	threshold := cfg.DaysThreshold
	if threshold < 1 {
		threshold = domain.DefaultDueSoonThreshold
	}
	return &Scanner{
		ledger:           ledger,
		directory:        directory,
		clock:            clock,
		logger:           logger.With().Str("component", "scanner").Logger(),
		producer:         producer,
		interval:         cfg.Interval,
		threshold:        threshold,
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the scheduled loop. It should be called in a goroutine.
func (s *Scanner) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.shutdownComplete)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		records, err := s.ForceCheck(ctx, s.threshold)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("scheduled scan failed")
			continue
		}
		s.publish(ctx, records)
		s.logger.Info().Int("records", len(records)).Int("threshold_days", s.threshold).Msg("scan complete")
	}
}

// Wait blocks until the scheduled loop stops.
func (s *Scanner) Wait() {
	<-s.shutdownComplete
}

// ForceCheck synchronously re-runs the scan logic with the supplied threshold.
// Safe to call concurrently with the scheduled loop; both only read.
func (s *Scanner) ForceCheck(ctx context.Context, daysThreshold int) ([]domain.NotificationRecord, error) {
	start := time.Now()
	defer func() {
		scanDuration.Observe(time.Since(start).Seconds())
	}()

	if daysThreshold < 1 {
		daysThreshold = domain.DefaultDueSoonThreshold
	}
	now := s.clock.Now()

	athletes, err := s.directory.ListActiveAthletes(ctx)
	if err != nil {
		return nil, err
	}

	var records []domain.NotificationRecord
	for _, athlete := range athletes {
		athleteRecords, err := s.scanAthlete(ctx, athlete, now, daysThreshold)
		if err != nil {
			// One athlete's failure must not abort the whole scan.
			scanErrors.Inc()
			s.logger.Warn().Err(err).Str("athlete_id", athlete.ID).Msg("skipping athlete")
			continue
		}
		records = append(records, athleteRecords...)
	}

	recordsEmitted.Add(float64(len(records)))
	return records, nil
}

func (s *Scanner) scanAthlete(ctx context.Context, athlete domain.Athlete, now time.Time, threshold int) ([]domain.NotificationRecord, error) {
	approved, err := s.ledger.ListApprovedByAthlete(ctx, athlete.ID)
	if err != nil {
		return nil, err
	}
	if len(approved) == 0 {
		return nil, nil
	}

	byActivity := make(map[string][]domain.Payment)
	for _, p := range approved {
		byActivity[p.ActivityID] = append(byActivity[p.ActivityID], p)
	}
	activityIDs := make([]string, 0, len(byActivity))
	for id := range byActivity {
		activityIDs = append(activityIDs, id)
	}
	sort.Strings(activityIDs)

	var records []domain.NotificationRecord
	for _, activityID := range activityIDs {
		assessment := domain.Resolve(now, threshold, byActivity[activityID])
		if assessment.Classification == domain.ClassificationActive || assessment.LastPayment == nil {
			continue
		}

		activityName := ""
		if activityID != "" {
			activity, err := s.directory.GetActivity(ctx, activityID)
			if err != nil {
				return nil, err
			}
			if activity != nil {
				activityName = activity.Name
			}
		}

		records = append(records, domain.NotificationRecord{
			AthleteID:      athlete.ID,
			AthleteName:    athlete.FullName,
			Email:          athlete.Email,
			Phone:          athlete.Phone,
			ActivityID:     activityID,
			ActivityName:   activityName,
			ExpirationDate: assessment.LastPayment.PeriodEnd,
			DaysUntilDue:   assessment.DaysUntilDue,
			IsExpired:      assessment.Classification == domain.ClassificationExpired,
			AmountMinor:    assessment.LastPayment.AmountMinor,
			Currency:       assessment.LastPayment.Currency,
		})
	}
	return records, nil
}

// publish forwards records to Kafka for staff alerting. Failures are logged,
// never fatal: the next scheduled scan reproduces the same records.
func (s *Scanner) publish(ctx context.Context, records []domain.NotificationRecord) {
	if s.producer == nil || len(records) == 0 {
		return
	}

	messages := make([]kafka.Message, 0, len(records))
	for _, record := range records {
		payload, err := json.Marshal(events.MembershipExpiring{
			AthleteID:      record.AthleteID,
			AthleteName:    record.AthleteName,
			ActivityID:     record.ActivityID,
			ActivityName:   record.ActivityName,
			ExpirationDate: record.ExpirationDate,
			DaysUntilDue:   record.DaysUntilDue,
			IsExpired:      record.IsExpired,
			AmountMinor:    record.AmountMinor,
			Currency:       record.Currency,
		})
		if err != nil {
			continue
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(record.AthleteID),
			Value: payload,
			Time:  time.Now().UTC(),
		})
	}

	if err := s.producer.WriteMessages(ctx, NotificationTopic, messages...); err != nil {
		s.logger.Error().Err(err).Msg("publishing notifications failed")
	}
}
