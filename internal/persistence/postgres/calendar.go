package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/coachsync/internal/domain"
)

const entryColumns = `entry_id, account_id, title, discipline, entry_date, planned_start, status, activity_record_id, origin, origin_external_id, created_at, updated_at`

// CalendarRepo persists planned workouts and their activity links.
type CalendarRepo struct {
	pool *pgxpool.Pool
}

// NewCalendarRepo constructs a CalendarRepo.
func NewCalendarRepo(pool *pgxpool.Pool) *CalendarRepo {
	return &CalendarRepo{pool: pool}
}

// FindPendingCandidates returns unlinked PLANNED/MODIFIED entries for the
// account and discipline whose date falls inside [from, to].
func (r *CalendarRepo) FindPendingCandidates(ctx context.Context, accountID string, discipline domain.Discipline, from, to time.Time) ([]domain.CalendarEntry, error) {
	const query = `SELECT ` + entryColumns + `
        FROM calendar_entries
        WHERE account_id = $1 AND discipline = $2
          AND entry_date BETWEEN $3 AND $4
          AND status IN ('PLANNED','MODIFIED')
          AND activity_record_id IS NULL
        ORDER BY entry_date, planned_start NULLS LAST`

	rows, err := r.pool.Query(ctx, query, accountID, discipline, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.CalendarEntry, 0)
	for rows.Next() {
		var entry domain.CalendarEntry
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.Title, &entry.Discipline, &entry.Date, &entry.PlannedStart, &entry.Status, &entry.ActivityRecordID, &entry.Origin, &entry.OriginExternalID, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// LinkActivity binds an activity record to a calendar entry and moves the
// entry to the synced status in one transaction, so no reader observes the
// link without the status (or vice versa).
func (r *CalendarRepo) LinkActivity(ctx context.Context, entryID, recordID string, status domain.EntryStatus) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE calendar_entries SET activity_record_id = $2, status = $3, updated_at = NOW() WHERE entry_id = $1`,
		entryID, recordID, status,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE activity_records SET calendar_entry_id = $2, updated_at = NOW() WHERE record_id = $1`,
		recordID, entryID,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// UpsertFromActivity materializes a calendar entry for an activity that had
// no plan, keyed by (account, origin, external id) so repeated runs converge
// on one entry. The activity's back-link is written in the same transaction.
func (r *CalendarRepo) UpsertFromActivity(ctx context.Context, entry domain.CalendarEntry, recordID string) (created bool, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	const stmt = `INSERT INTO calendar_entries
        (entry_id, account_id, title, discipline, entry_date, planned_start, status, activity_record_id, origin, origin_external_id, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW())
        ON CONFLICT (account_id, origin, origin_external_id) WHERE origin_external_id IS NOT NULL
        DO UPDATE SET title = EXCLUDED.title, discipline = EXCLUDED.discipline,
            entry_date = EXCLUDED.entry_date, planned_start = EXCLUDED.planned_start,
            status = EXCLUDED.status, activity_record_id = EXCLUDED.activity_record_id,
            updated_at = NOW()
        RETURNING (xmax = 0)`

	row := tx.QueryRow(ctx, stmt,
		entry.ID,
		entry.AccountID,
		entry.Title,
		entry.Discipline,
		entry.Date,
		entry.PlannedStart,
		entry.Status,
		recordID,
		entry.Origin,
		entry.OriginExternalID,
	)
	if err := row.Scan(&created); err != nil {
		return false, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE activity_records
            SET calendar_entry_id = (SELECT entry_id FROM calendar_entries WHERE account_id = $2 AND origin = $3 AND origin_external_id = $4),
                updated_at = NOW()
            WHERE record_id = $1`,
		recordID, entry.AccountID, entry.Origin, entry.OriginExternalID,
	); err != nil {
		return false, err
	}

	return created, tx.Commit(ctx)
}
