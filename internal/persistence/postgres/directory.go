package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/membership/internal/domain"
)

// Directory reads the athlete and activity tables owned by the platform's user
// and catalog collaborators. This side only ever reads them.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory constructs a Directory.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// GetAthlete fetches one athlete by ID. Returns domain.ErrAthleteNotFound when absent.
func (d *Directory) GetAthlete(ctx context.Context, athleteID string) (*domain.Athlete, error) {
	const query = `SELECT athlete_id, full_name, email, phone, coach_id, active
        FROM athletes WHERE athlete_id=$1`

	row := d.pool.QueryRow(ctx, query, athleteID)
	athlete, err := scanAthlete(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAthleteNotFound
		}
		return nil, err
	}
	return athlete, nil
}

// ListActiveAthletes returns every athlete still marked active in the directory.
func (d *Directory) ListActiveAthletes(ctx context.Context) ([]domain.Athlete, error) {
	const query = `SELECT athlete_id, full_name, email, phone, coach_id, active
        FROM athletes WHERE active ORDER BY full_name`

	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Athlete
	for rows.Next() {
		athlete, err := scanAthlete(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *athlete)
	}
	return results, rows.Err()
}

// GetActivity fetches one catalog entry by ID. Returns nil when absent.
func (d *Directory) GetActivity(ctx context.Context, activityID string) (*domain.Activity, error) {
	const query = `SELECT activity_id, activity_type, name FROM activities WHERE activity_id=$1`

	row := d.pool.QueryRow(ctx, query, activityID)
	var a domain.Activity
	if err := row.Scan(&a.ID, &a.Type, &a.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func scanAthlete(row pgx.Row) (*domain.Athlete, error) {
	var a domain.Athlete
	var email, phone, coachID *string
	if err := row.Scan(&a.ID, &a.FullName, &email, &phone, &coachID, &a.Active); err != nil {
		return nil, err
	}
	a.Email = deref(email)
	a.Phone = deref(phone)
	a.CoachID = deref(coachID)
	return &a, nil
}
