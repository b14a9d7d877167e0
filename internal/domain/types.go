// Package domain defines the core types of the activity synchronization engine.
package domain

import (
	"errors"
	"time"
)

var (
	// ErrActivityExists indicates an activity record already exists for the
	// (account, provider, external id) tuple. Callers re-read and merge.
	ErrActivityExists = errors.New("activity record already exists")
	// ErrConnectionNotFound is returned when an account has no provider connection.
	ErrConnectionNotFound = errors.New("provider connection not found")
	// ErrNotClaimed signals a lost claim race; the intent belongs to another worker.
	ErrNotClaimed = errors.New("intent not claimed")
	// ErrTokenRefresh wraps a rejected refresh-token exchange. Per-account failure.
	ErrTokenRefresh = errors.New("token refresh failed")
)

// ProviderStrava tags records ingested from the Strava API.
const ProviderStrava = "strava"

// Connection holds one account's OAuth credential pair for the provider.
// Mutated only by the token manager; a refresh replaces both tokens and the
// expiry in a single write.
type Connection struct {
	AccountID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
	LastSyncAt   *time.Time
	UpdatedAt    time.Time
}

// IntentStatus is the queue state of a SyncIntent.
type IntentStatus string

const (
	IntentPending    IntentStatus = "PENDING"
	IntentProcessing IntentStatus = "PROCESSING"
	IntentDone       IntentStatus = "DONE"
	IntentFailed     IntentStatus = "FAILED"
)

// SyncIntent is a durable queue entry: poll one account, or fetch one
// specific external activity for it.
type SyncIntent struct {
	ID                 string
	AccountID          string
	ExternalActivityID *int64
	Status             IntentStatus
	Attempts           int
	LeaseExpiresAt     *time.Time
	NextAttemptAt      time.Time
	LastError          *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// MetricsPayload is the compact per-provider metrics blob stored with an
// activity record. Values are normalized display units; absent fields stay nil.
type MetricsPayload struct {
	DistanceKm      *float64 `json:"distance_km,omitempty"`
	DurationMin     *int     `json:"duration_min,omitempty"`
	AvgSpeedKmh     *float64 `json:"avg_speed_kmh,omitempty"`
	PaceMinPerKm    *float64 `json:"pace_min_per_km,omitempty"`
	AvgHeartRate    *float64 `json:"avg_heart_rate,omitempty"`
	MaxHeartRate    *float64 `json:"max_heart_rate,omitempty"`
	AvgCadence      *float64 `json:"avg_cadence,omitempty"`
	ElevationGainM  *float64 `json:"elevation_gain_m,omitempty"`
	Calories        *float64 `json:"calories,omitempty"`
	SummaryPolyline *string  `json:"summary_polyline,omitempty"`
}

// ActivityRecord is an ingested external activity, unique per
// (account, provider, external id).
type ActivityRecord struct {
	ID              string
	AccountID       string
	Provider        string
	ExternalID      int64
	Name            string
	Discipline      Discipline
	StartedAt       time.Time
	DurationMin     int
	DistanceKm      *float64
	Metrics         map[string]MetricsPayload // keyed by provider
	CalendarEntryID *string
	ConfirmedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EntryStatus is the lifecycle state of a planned calendar entry.
type EntryStatus string

const (
	EntryPlanned         EntryStatus = "PLANNED"
	EntryModified        EntryStatus = "MODIFIED"
	EntrySyncedDraft     EntryStatus = "SYNCED_DRAFT"
	EntrySyncedConfirmed EntryStatus = "SYNCED_CONFIRMED"
	EntrySkipped         EntryStatus = "SKIPPED"
	EntryCancelled       EntryStatus = "CANCELLED"
)

// Pending reports whether the entry can still receive a matched activity.
func (s EntryStatus) Pending() bool {
	return s == EntryPlanned || s == EntryModified
}

// CalendarEntry is a planned workout on an account's calendar. Entries
// materialized from unmatched activities carry an origin tag and the external
// activity id as their natural key.
type CalendarEntry struct {
	ID               string
	AccountID        string
	Title            string
	Discipline       Discipline
	Date             time.Time // date component only, account-local
	PlannedStart     *time.Time
	Status           EntryStatus
	ActivityRecordID *string
	Origin           string
	OriginExternalID *int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AccountProfile carries the per-account settings the engine needs.
type AccountProfile struct {
	AccountID string
	CoachID   string
	Timezone  string
}

// Location resolves the profile timezone, falling back to UTC when the
// stored name is missing or invalid.
func (p AccountProfile) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
