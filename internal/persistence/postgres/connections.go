package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/coachsync/internal/domain"
)

// ConnectionRepo persists per-account provider credentials.
type ConnectionRepo struct {
	pool *pgxpool.Pool
}

// NewConnectionRepo constructs a ConnectionRepo.
func NewConnectionRepo(pool *pgxpool.Pool) *ConnectionRepo {
	return &ConnectionRepo{pool: pool}
}

// Get returns the connection for an account.
func (r *ConnectionRepo) Get(ctx context.Context, accountID string) (*domain.Connection, error) {
	const query = `SELECT account_id, access_token, refresh_token, expires_at, scope, last_sync_at, updated_at
        FROM provider_connections WHERE account_id = $1`

	row := r.pool.QueryRow(ctx, query, accountID)
	var conn domain.Connection
	if err := row.Scan(&conn.AccountID, &conn.AccessToken, &conn.RefreshToken, &conn.ExpiresAt, &conn.Scope, &conn.LastSyncAt, &conn.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConnectionNotFound
		}
		return nil, err
	}
	return &conn, nil
}

// RotateTokens replaces both tokens and the expiry in one statement. Either
// the whole credential pair rotates or nothing does.
func (r *ConnectionRepo) RotateTokens(ctx context.Context, accountID string, grant domain.Connection) error {
	const stmt = `UPDATE provider_connections
        SET access_token = $2, refresh_token = $3, expires_at = $4, scope = $5, updated_at = NOW()
        WHERE account_id = $1`

	tag, err := r.pool.Exec(ctx, stmt, accountID, grant.AccessToken, grant.RefreshToken, grant.ExpiresAt, grant.Scope)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}

// TouchLastSync records a successful sync pass for the account.
func (r *ConnectionRepo) TouchLastSync(ctx context.Context, accountID string, at time.Time) error {
	const stmt = `UPDATE provider_connections SET last_sync_at = $2, updated_at = NOW() WHERE account_id = $1`
	_, err := r.pool.Exec(ctx, stmt, accountID, at)
	return err
}

// ListStale returns accounts whose last successful sync is older than the
// cutoff (or has never happened). Feeds the backfill safety sweep.
func (r *ConnectionRepo) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.Connection, error) {
	const query = `SELECT account_id, access_token, refresh_token, expires_at, scope, last_sync_at, updated_at
        FROM provider_connections
        WHERE last_sync_at IS NULL OR last_sync_at < $1
        ORDER BY last_sync_at NULLS FIRST
        LIMIT $2`

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conns := make([]domain.Connection, 0)
	for rows.Next() {
		var conn domain.Connection
		if err := rows.Scan(&conn.AccountID, &conn.AccessToken, &conn.RefreshToken, &conn.ExpiresAt, &conn.Scope, &conn.LastSyncAt, &conn.UpdatedAt); err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}
