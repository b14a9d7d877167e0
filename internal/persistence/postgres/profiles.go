package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/coachsync/internal/cache"
	"example.com/coachsync/internal/domain"
)

// ProfileRepo looks up per-account settings, fronted by a TTL cache so a
// batch touching the same account repeatedly hits Postgres once.
type ProfileRepo struct {
	pool  *pgxpool.Pool
	cache *cache.Memory[domain.AccountProfile]
}

// NewProfileRepo constructs a ProfileRepo. The cache is injected so its
// lifecycle stays with the process wiring, not with this type.
func NewProfileRepo(pool *pgxpool.Pool, profileCache *cache.Memory[domain.AccountProfile]) *ProfileRepo {
	return &ProfileRepo{pool: pool, cache: profileCache}
}

// Get returns the profile for an account. Accounts without a stored profile
// get a UTC default; a missing row must not wedge their sync work.
func (r *ProfileRepo) Get(ctx context.Context, accountID string) (domain.AccountProfile, error) {
	if profile, err := r.cache.Get(accountID); err == nil {
		return profile, nil
	}

	const query = `SELECT account_id, coach_id, timezone FROM account_profiles WHERE account_id = $1`

	row := r.pool.QueryRow(ctx, query, accountID)
	var profile domain.AccountProfile
	if err := row.Scan(&profile.AccountID, &profile.CoachID, &profile.Timezone); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			profile = domain.AccountProfile{AccountID: accountID, Timezone: "UTC"}
			r.cache.Set(accountID, profile)
			return profile, nil
		}
		return domain.AccountProfile{}, err
	}

	r.cache.Set(accountID, profile)
	return profile, nil
}
