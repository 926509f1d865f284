package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/membership/internal/domain"
)

const feeColumns = `fee_version_id, activity_type, activity_name, amount_minor, currency, description, valid_from, valid_until, is_active, created_at`

// FeeRepository provides Postgres-backed persistence for versioned price records.
type FeeRepository struct {
	pool *pgxpool.Pool
}

// NewFeeRepository constructs a FeeRepository.
func NewFeeRepository(pool *pgxpool.Pool) *FeeRepository {
	return &FeeRepository{pool: pool}
}

// CreateVersion inserts a new fee version. With closePrevious set, the still-open
// current version for the activity is closed to valid_from minus one day inside
// the same transaction, so readers never observe two current versions.
func (r *FeeRepository) CreateVersion(ctx context.Context, version domain.FeeVersion, closePrevious bool) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if closePrevious {
		closeTo := version.ValidFrom.AddDate(0, 0, -1)
		if _, err = tx.Exec(ctx, `UPDATE fee_versions
            SET valid_until = $2
            WHERE activity_type = $1 AND is_active AND valid_until IS NULL AND valid_from <= $3`,
			version.ActivityType, closeTo, version.ValidFrom); err != nil {
			return err
		}
	}

	const stmt = `INSERT INTO fee_versions (fee_version_id, activity_type, activity_name, amount_minor, currency, description, valid_from, valid_until, is_active, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	if _, err = tx.Exec(ctx, stmt,
		version.ID,
		version.ActivityType,
		version.ActivityName,
		version.AmountMinor,
		version.Currency,
		nullIfEmpty(version.Description),
		version.ValidFrom,
		version.ValidUntil,
		version.IsActive,
		version.CreatedAt,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetCurrent returns the version pricing the activity at asOf: the latest
// valid_from not after asOf whose window is still open. Nil when none matches.
// asOf is compared at calendar-day granularity; valid_until is inclusive, so a
// version still prices its last valid day at any hour.
func (r *FeeRepository) GetCurrent(ctx context.Context, activityType string, asOf time.Time) (*domain.FeeVersion, error) {
	query := `SELECT ` + feeColumns + ` FROM fee_versions
        WHERE activity_type = $1 AND is_active
          AND valid_from <= $2
          AND (valid_until IS NULL OR valid_until >= $2)
        ORDER BY valid_from DESC
        LIMIT 1`

	asOf = asOf.UTC()
	asOfDay := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)

	row := r.pool.QueryRow(ctx, query, activityType, asOfDay)
	var f domain.FeeVersion
	var description *string
	if err := row.Scan(&f.ID, &f.ActivityType, &f.ActivityName, &f.AmountMinor, &f.Currency, &description, &f.ValidFrom, &f.ValidUntil, &f.IsActive, &f.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	f.Description = deref(description)
	return &f, nil
}
