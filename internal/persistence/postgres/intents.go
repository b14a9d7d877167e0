package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/coachsync/internal/domain"
)

const intentColumns = `intent_id, account_id, external_activity_id, status, attempts, lease_expires_at, next_attempt_at, last_error, created_at, updated_at`

// Error messages kept for operators are capped; provider bodies can be huge.
const maxErrorLen = 500

// IntentRepo is the durable queue of sync work. Exclusive transitions (claim,
// lease recovery) are conditional updates keyed on identity plus expected
// prior state; zero affected rows means another worker won.
type IntentRepo struct {
	pool *pgxpool.Pool
}

// NewIntentRepo constructs an IntentRepo.
func NewIntentRepo(pool *pgxpool.Pool) *IntentRepo {
	return &IntentRepo{pool: pool}
}

// Enqueue inserts a new PENDING intent. A duplicate open intent for the same
// (account, external id) tuple is absorbed silently; the bool reports whether
// a row was actually created.
func (r *IntentRepo) Enqueue(ctx context.Context, accountID string, externalActivityID *int64) (bool, error) {
	const stmt = `INSERT INTO sync_intents (intent_id, account_id, external_activity_id)
        VALUES ($1, $2, $3)
        ON CONFLICT (account_id, COALESCE(external_activity_id, -1)) WHERE status IN ('PENDING','PROCESSING')
        DO NOTHING`

	tag, err := r.pool.Exec(ctx, stmt, uuid.NewString(), accountID, externalActivityID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RecoverLeases returns PROCESSING intents whose lease expired back to
// PENDING. The holder is presumed crashed.
func (r *IntentRepo) RecoverLeases(ctx context.Context, now time.Time) (int, error) {
	const stmt = `UPDATE sync_intents
        SET status = 'PENDING', lease_expires_at = NULL, updated_at = NOW()
        WHERE status = 'PROCESSING' AND lease_expires_at < $1`

	tag, err := r.pool.Exec(ctx, stmt, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// SelectBatch returns up to limit eligible PENDING intents, oldest first.
// Selection is advisory; Claim decides ownership.
func (r *IntentRepo) SelectBatch(ctx context.Context, now time.Time, limit int) ([]domain.SyncIntent, error) {
	const query = `SELECT ` + intentColumns + `
        FROM sync_intents
        WHERE status = 'PENDING' AND next_attempt_at <= $1
        ORDER BY created_at
        LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	intents := make([]domain.SyncIntent, 0, limit)
	for rows.Next() {
		var intent domain.SyncIntent
		if err := rows.Scan(&intent.ID, &intent.AccountID, &intent.ExternalActivityID, &intent.Status, &intent.Attempts, &intent.LeaseExpiresAt, &intent.NextAttemptAt, &intent.LastError, &intent.CreatedAt, &intent.UpdatedAt); err != nil {
			return nil, err
		}
		intents = append(intents, intent)
	}
	return intents, rows.Err()
}

// Claim atomically transitions one PENDING intent to PROCESSING, bumping the
// attempt counter and setting the lease. Returns ErrNotClaimed when another
// worker got there first.
func (r *IntentRepo) Claim(ctx context.Context, intentID string, leaseFor time.Duration) (*domain.SyncIntent, error) {
	const stmt = `UPDATE sync_intents
        SET status = 'PROCESSING', attempts = attempts + 1, lease_expires_at = NOW() + $2, updated_at = NOW()
        WHERE intent_id = $1 AND status = 'PENDING'
        RETURNING ` + intentColumns

	row := r.pool.QueryRow(ctx, stmt, intentID, leaseFor)
	var intent domain.SyncIntent
	err := row.Scan(&intent.ID, &intent.AccountID, &intent.ExternalActivityID, &intent.Status, &intent.Attempts, &intent.LeaseExpiresAt, &intent.NextAttemptAt, &intent.LastError, &intent.CreatedAt, &intent.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotClaimed
		}
		return nil, err
	}
	return &intent, nil
}

// MarkDone resolves an intent, resetting the attempt counter and clearing the
// last error.
func (r *IntentRepo) MarkDone(ctx context.Context, intentID string) error {
	const stmt = `UPDATE sync_intents
        SET status = 'DONE', attempts = 0, lease_expires_at = NULL, last_error = NULL, updated_at = NOW()
        WHERE intent_id = $1 AND status = 'PROCESSING'`

	_, err := r.pool.Exec(ctx, stmt, intentID)
	return err
}

// Reschedule returns a PROCESSING intent to PENDING with a backoff delay and
// the failure message for operator visibility.
func (r *IntentRepo) Reschedule(ctx context.Context, intentID string, delay time.Duration, lastError string) error {
	const stmt = `UPDATE sync_intents
        SET status = 'PENDING', lease_expires_at = NULL, next_attempt_at = NOW() + $2, last_error = $3, updated_at = NOW()
        WHERE intent_id = $1 AND status = 'PROCESSING'`

	_, err := r.pool.Exec(ctx, stmt, intentID, delay, truncateError(lastError))
	return err
}

// Fail terminally marks an intent FAILED; it is excluded from future claims.
func (r *IntentRepo) Fail(ctx context.Context, intentID string, lastError string) error {
	const stmt = `UPDATE sync_intents
        SET status = 'FAILED', lease_expires_at = NULL, last_error = $2, updated_at = NOW()
        WHERE intent_id = $1 AND status = 'PROCESSING'`

	_, err := r.pool.Exec(ctx, stmt, intentID, truncateError(lastError))
	return err
}

func truncateError(msg string) string {
	if len(msg) > maxErrorLen {
		return msg[:maxErrorLen]
	}
	return msg
}
