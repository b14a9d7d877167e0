package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/coachsync/internal/domain"
)

const activityColumns = `record_id, account_id, provider, external_id, name, discipline, started_at, duration_min, distance_km, metrics, calendar_entry_id, confirmed_at, created_at, updated_at`

// ActivityRepo persists ingested external activities.
type ActivityRepo struct {
	pool *pgxpool.Pool
}

// NewActivityRepo constructs an ActivityRepo.
func NewActivityRepo(pool *pgxpool.Pool) *ActivityRepo {
	return &ActivityRepo{pool: pool}
}

// Insert attempts to create a new record. A unique-tuple conflict surfaces as
// domain.ErrActivityExists so the ingestor can run its read-compare-update
// step; conflict is an expected outcome here, not control flow by exception.
func (r *ActivityRepo) Insert(ctx context.Context, record domain.ActivityRecord) error {
	metrics, err := json.Marshal(record.Metrics)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO activity_records
        (record_id, account_id, provider, external_id, name, discipline, started_at, duration_min, distance_km, metrics, calendar_entry_id, confirmed_at, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW())`

	_, err = r.pool.Exec(ctx, stmt,
		record.ID,
		record.AccountID,
		record.Provider,
		record.ExternalID,
		record.Name,
		record.Discipline,
		record.StartedAt,
		record.DurationMin,
		record.DistanceKm,
		metrics,
		record.CalendarEntryID,
		record.ConfirmedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrActivityExists
		}
		return err
	}
	return nil
}

// GetByExternalID returns the record for the unique tuple, or nil.
func (r *ActivityRepo) GetByExternalID(ctx context.Context, accountID, provider string, externalID int64) (*domain.ActivityRecord, error) {
	const query = `SELECT ` + activityColumns + `
        FROM activity_records
        WHERE account_id = $1 AND provider = $2 AND external_id = $3`

	row := r.pool.QueryRow(ctx, query, accountID, provider, externalID)
	record, err := scanActivity(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// Update rewrites the mutable fields of an existing record.
func (r *ActivityRepo) Update(ctx context.Context, record domain.ActivityRecord) error {
	metrics, err := json.Marshal(record.Metrics)
	if err != nil {
		return err
	}

	const stmt = `UPDATE activity_records
        SET name = $2, discipline = $3, started_at = $4, duration_min = $5, distance_km = $6, metrics = $7, confirmed_at = $8, updated_at = NOW()
        WHERE record_id = $1`

	_, err = r.pool.Exec(ctx, stmt,
		record.ID,
		record.Name,
		record.Discipline,
		record.StartedAt,
		record.DurationMin,
		record.DistanceKm,
		metrics,
		record.ConfirmedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (*domain.ActivityRecord, error) {
	var record domain.ActivityRecord
	var metrics []byte
	if err := row.Scan(
		&record.ID,
		&record.AccountID,
		&record.Provider,
		&record.ExternalID,
		&record.Name,
		&record.Discipline,
		&record.StartedAt,
		&record.DurationMin,
		&record.DistanceKm,
		&metrics,
		&record.CalendarEntryID,
		&record.ConfirmedAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &record.Metrics); err != nil {
			return nil, err
		}
	}
	return &record, nil
}
