package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/membership/internal/domain"
	"example.com/membership/internal/events"
	"example.com/membership/internal/observability"
)

const paymentColumns = `payment_id, athlete_id, activity_id, amount_minor, currency, period_start, period_end, status, evidence_url, evidence_text, created_at, approved_at`

// Repository provides Postgres-backed persistence for payments, entitlements,
// and the outbox events recorded alongside them.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreatePayment inserts a new claim in pending state.
func (r *Repository) CreatePayment(ctx context.Context, payment domain.Payment) error {
	const stmt = `INSERT INTO payments (payment_id, athlete_id, activity_id, amount_minor, currency, period_start, period_end, status, evidence_url, evidence_text, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	_, err := r.pool.Exec(ctx, stmt,
		payment.ID,
		payment.AthleteID,
		nullIfEmpty(payment.ActivityID),
		payment.AmountMinor,
		payment.Currency,
		payment.PeriodStart,
		payment.PeriodEnd,
		payment.Status,
		nullIfEmpty(payment.Evidence.URL),
		nullIfEmpty(payment.Evidence.Text),
		payment.CreatedAt,
	)
	return err
}

// GetPayment retrieves a payment by ID. Returns nil when it does not exist.
func (r *Repository) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_id=$1`

	row := r.pool.QueryRow(ctx, query, paymentID)
	payment, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return payment, nil
}

// ListByAthlete returns an athlete's payments newest first with keyset pagination.
func (r *Repository) ListByAthlete(ctx context.Context, athleteID string, cursor *domain.Cursor, limit int) ([]domain.Payment, *domain.Cursor, error) {
	args := []interface{}{athleteID, limit}
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE athlete_id=$1`

	if cursor != nil {
		query += ` AND (created_at, payment_id) < ($3, $4)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	query += ` ORDER BY created_at DESC, payment_id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results, err := collectPayments(rows, limit)
	if err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, nextCursor, nil
}

// ListPending returns the staff approval queue, oldest first so claims are worked
// in submission order. A coach ID narrows the queue to that coach's athletes.
func (r *Repository) ListPending(ctx context.Context, coachID string) ([]domain.Payment, error) {
	query := `SELECT ` + prefixedPaymentColumns("p") + `
        FROM payments p
        JOIN athletes a ON a.athlete_id = p.athlete_id
        WHERE p.status = $1 AND ($2 = '' OR a.coach_id::text = $2)
        ORDER BY p.created_at ASC`

	rows, err := r.pool.Query(ctx, query, domain.PaymentStatusPending, coachID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPayments(rows, 0)
}

// ListApprovedByAthlete returns every approved payment for the athlete.
func (r *Repository) ListApprovedByAthlete(ctx context.Context, athleteID string) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
        WHERE athlete_id=$1 AND status=$2
        ORDER BY period_end DESC`

	rows, err := r.pool.Query(ctx, query, athleteID, domain.PaymentStatusApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPayments(rows, 0)
}

// UpdateEvidence attaches or replaces evidence without touching status.
func (r *Repository) UpdateEvidence(ctx context.Context, paymentID string, evidence domain.Evidence) (*domain.Payment, error) {
	query := `UPDATE payments SET evidence_url=$2, evidence_text=$3 WHERE payment_id=$1
        RETURNING ` + paymentColumns

	row := r.pool.QueryRow(ctx, query, paymentID, nullIfEmpty(evidence.URL), nullIfEmpty(evidence.Text))
	payment, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

// Approve executes the approval transaction: the guarded status flip, the
// entitlement grant, and the outbox events commit together or not at all.
func (r *Repository) Approve(ctx context.Context, paymentID string, now time.Time) (*domain.Payment, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	payment, err := lockPayment(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}
	if !payment.Status.CanTransitionTo(domain.PaymentStatusApproved) {
		err = domain.ErrPaymentNotPending
		return nil, err
	}

	if _, err = tx.Exec(ctx, `UPDATE payments SET status=$2, approved_at=$3 WHERE payment_id=$1`,
		payment.ID, domain.PaymentStatusApproved, now); err != nil {
		return nil, err
	}
	payment.Status = domain.PaymentStatusApproved
	payment.ApprovedAt = &now

	if payment.ActivityID != "" {
		var entitlement domain.ActivityEntitlement
		entitlement, err = upsertEntitlement(ctx, tx, payment.AthleteID, payment.ActivityID, payment.PeriodEnd, now)
		if err != nil {
			return nil, err
		}
		if err = insertOutbox(ctx, tx, "entitlement.extended", payment.AthleteID, events.EntitlementExtended{
			AthleteID:  entitlement.AthleteID,
			ActivityID: entitlement.ActivityID,
			StartDate:  entitlement.StartDate,
			EndDate:    entitlement.EndDate,
			OccurredAt: now,
		}); err != nil {
			return nil, err
		}
	}

	if err = insertOutbox(ctx, tx, "payment.approved", payment.AthleteID, events.PaymentApproved{
		PaymentID:   payment.ID,
		AthleteID:   payment.AthleteID,
		ActivityID:  payment.ActivityID,
		AmountMinor: payment.AmountMinor,
		Currency:    payment.Currency,
		PeriodStart: payment.PeriodStart,
		PeriodEnd:   payment.PeriodEnd,
		ApprovedAt:  now,
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	observability.RecordPaymentApproved(now)
	return payment, nil
}

// Reject executes the guarded pending->rejected transition. No entitlement effect.
func (r *Repository) Reject(ctx context.Context, paymentID string, now time.Time) (*domain.Payment, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	payment, err := lockPayment(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}
	if !payment.Status.CanTransitionTo(domain.PaymentStatusRejected) {
		err = domain.ErrPaymentNotPending
		return nil, err
	}

	if _, err = tx.Exec(ctx, `UPDATE payments SET status=$2 WHERE payment_id=$1`,
		payment.ID, domain.PaymentStatusRejected); err != nil {
		return nil, err
	}
	payment.Status = domain.PaymentStatusRejected

	if err = insertOutbox(ctx, tx, "payment.rejected", payment.AthleteID, events.PaymentRejected{
		PaymentID:  payment.ID,
		AthleteID:  payment.AthleteID,
		OccurredAt: now,
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	observability.RecordPaymentRejected()
	return payment, nil
}

// ListEntitlements returns every entitlement row for an athlete.
func (r *Repository) ListEntitlements(ctx context.Context, athleteID string) ([]domain.ActivityEntitlement, error) {
	const query = `SELECT athlete_id, activity_id, is_active, start_date, end_date, updated_at
        FROM activity_entitlements WHERE athlete_id=$1 ORDER BY activity_id`

	rows, err := r.pool.Query(ctx, query, athleteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.ActivityEntitlement
	for rows.Next() {
		var e domain.ActivityEntitlement
		if err := rows.Scan(&e.AthleteID, &e.ActivityID, &e.IsActive, &e.StartDate, &e.EndDate, &e.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// LedgerSummary aggregates dashboard counts and the recent-approvals feed.
func (r *Repository) LedgerSummary(ctx context.Context, monthStart time.Time, recentLimit int) (*domain.LedgerSummary, error) {
	summary := &domain.LedgerSummary{}

	row := r.pool.QueryRow(ctx, `SELECT
        count(*) FILTER (WHERE status=$1),
        count(*) FILTER (WHERE status=$2 AND approved_at >= $3)
        FROM payments`, domain.PaymentStatusPending, domain.PaymentStatusApproved, monthStart)
	if err := row.Scan(&summary.PendingPayments, &summary.ApprovedThisMonth); err != nil {
		return nil, err
	}

	query := `SELECT ` + paymentColumns + ` FROM payments
        WHERE status=$1 AND approved_at IS NOT NULL
        ORDER BY approved_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, domain.PaymentStatusApproved, recentLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recent, err := collectPayments(rows, recentLimit)
	if err != nil {
		return nil, err
	}
	summary.RecentApproved = recent
	return summary, nil
}

func lockPayment(ctx context.Context, tx pgx.Tx, paymentID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_id=$1 FOR UPDATE`

	row := tx.QueryRow(ctx, query, paymentID)
	payment, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

func upsertEntitlement(ctx context.Context, tx pgx.Tx, athleteID, activityID string, periodEnd, now time.Time) (domain.ActivityEntitlement, error) {
	// Approval is always a fresh grant: is_active flips back on even when the
	// prior window already expired.
	const stmt = `INSERT INTO activity_entitlements (athlete_id, activity_id, is_active, start_date, end_date, updated_at)
        VALUES ($1,$2,true,$3,$4,$5)
        ON CONFLICT (athlete_id, activity_id)
        DO UPDATE SET end_date = EXCLUDED.end_date, is_active = true, updated_at = EXCLUDED.updated_at
        RETURNING athlete_id, activity_id, is_active, start_date, end_date, updated_at`

	var e domain.ActivityEntitlement
	row := tx.QueryRow(ctx, stmt, athleteID, activityID, now, periodEnd, now)
	if err := row.Scan(&e.AthleteID, &e.ActivityID, &e.IsActive, &e.StartDate, &e.EndDate, &e.UpdatedAt); err != nil {
		return domain.ActivityEntitlement{}, err
	}
	return e, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, eventType, aggregateID string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload)
        VALUES ($1,$2,$3,$4,$5,$6)`

	_, err = tx.Exec(ctx, stmt, meta.AggregateType, aggregateID, eventType, meta.Topic, aggregateID, body)
	return err
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	var activityID, evidenceURL, evidenceText *string
	if err := row.Scan(&p.ID, &p.AthleteID, &activityID, &p.AmountMinor, &p.Currency, &p.PeriodStart, &p.PeriodEnd, &p.Status, &evidenceURL, &evidenceText, &p.CreatedAt, &p.ApprovedAt); err != nil {
		return nil, err
	}
	p.ActivityID = deref(activityID)
	p.Evidence = domain.Evidence{URL: deref(evidenceURL), Text: deref(evidenceText)}
	return &p, nil
}

func collectPayments(rows pgx.Rows, capacity int) ([]domain.Payment, error) {
	results := make([]domain.Payment, 0, capacity)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *payment)
	}
	return results, rows.Err()
}

func prefixedPaymentColumns(alias string) string {
	return alias + ".payment_id, " + alias + ".athlete_id, " + alias + ".activity_id, " +
		alias + ".amount_minor, " + alias + ".currency, " + alias + ".period_start, " +
		alias + ".period_end, " + alias + ".status, " + alias + ".evidence_url, " +
		alias + ".evidence_text, " + alias + ".created_at, " + alias + ".approved_at"
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	AggregateType string
	Topic         string
}

var eventCatalog = map[string]EventMetadata{
	"payment.approved": {
		AggregateType: "payment",
		Topic:         "membership_payment_events",
	},
	"payment.rejected": {
		AggregateType: "payment",
		Topic:         "membership_payment_events",
	},
	"entitlement.extended": {
		AggregateType: "entitlement",
		Topic:         "membership_entitlement_events",
	},
}
