// Package sync implements the external activity synchronization engine: the
// token manager, activity ingestor, calendar matcher, and the cron-driven
// queue runner that ties them together.
package sync

import (
	"context"
	"time"

	"example.com/coachsync/internal/domain"
	"example.com/coachsync/internal/provider/strava"
)

// ConnectionStore persists provider credentials per account.
type ConnectionStore interface {
	Get(ctx context.Context, accountID string) (*domain.Connection, error)
	RotateTokens(ctx context.Context, accountID string, grant domain.Connection) error
	TouchLastSync(ctx context.Context, accountID string, at time.Time) error
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.Connection, error)
}

// IntentStore is the durable queue of sync work.
type IntentStore interface {
	Enqueue(ctx context.Context, accountID string, externalActivityID *int64) (bool, error)
	RecoverLeases(ctx context.Context, now time.Time) (int, error)
	SelectBatch(ctx context.Context, now time.Time, limit int) ([]domain.SyncIntent, error)
	Claim(ctx context.Context, intentID string, leaseFor time.Duration) (*domain.SyncIntent, error)
	MarkDone(ctx context.Context, intentID string) error
	Reschedule(ctx context.Context, intentID string, delay time.Duration, lastError string) error
	Fail(ctx context.Context, intentID string, lastError string) error
}

// ActivityStore persists ingested activity records.
type ActivityStore interface {
	Insert(ctx context.Context, record domain.ActivityRecord) error
	GetByExternalID(ctx context.Context, accountID, provider string, externalID int64) (*domain.ActivityRecord, error)
	Update(ctx context.Context, record domain.ActivityRecord) error
}

// CalendarStore persists planned workouts and activity links.
type CalendarStore interface {
	FindPendingCandidates(ctx context.Context, accountID string, discipline domain.Discipline, from, to time.Time) ([]domain.CalendarEntry, error)
	LinkActivity(ctx context.Context, entryID, recordID string, status domain.EntryStatus) error
	UpsertFromActivity(ctx context.Context, entry domain.CalendarEntry, recordID string) (bool, error)
}

// ProfileStore resolves per-account settings.
type ProfileStore interface {
	Get(ctx context.Context, accountID string) (domain.AccountProfile, error)
}

// Provider is the outbound surface of the fitness API.
type Provider interface {
	RefreshToken(ctx context.Context, refreshToken string) (strava.TokenGrant, error)
	ListActivities(ctx context.Context, accessToken string, after time.Time, perPage int) ([]strava.Activity, error)
	GetActivity(ctx context.Context, accessToken string, externalID int64) (strava.Activity, error)
}
