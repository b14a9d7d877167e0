package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"example.com/coachsync/internal/domain"
	"example.com/coachsync/internal/provider/strava"
)

// In-memory stores mirroring the repository contracts, used by the unit
// tests. The real conditional-update semantics live in Postgres and are
// covered by the integration test.

type memIntents struct {
	items map[string]*domain.SyncIntent
	seq   int
}

func newMemIntents() *memIntents {
	return &memIntents{items: make(map[string]*domain.SyncIntent)}
}

func (m *memIntents) add(intent domain.SyncIntent) string {
	if intent.ID == "" {
		intent.ID = uuid.NewString()
	}
	m.seq++
	intent.CreatedAt = time.Unix(int64(m.seq), 0)
	if intent.Status == "" {
		intent.Status = domain.IntentPending
	}
	m.items[intent.ID] = &intent
	return intent.ID
}

func (m *memIntents) Enqueue(_ context.Context, accountID string, externalActivityID *int64) (bool, error) {
	for _, item := range m.items {
		if item.AccountID != accountID {
			continue
		}
		if item.Status != domain.IntentPending && item.Status != domain.IntentProcessing {
			continue
		}
		if int64PtrEqual(item.ExternalActivityID, externalActivityID) {
			return false, nil
		}
	}
	m.add(domain.SyncIntent{AccountID: accountID, ExternalActivityID: externalActivityID})
	return true, nil
}

func (m *memIntents) RecoverLeases(_ context.Context, now time.Time) (int, error) {
	recovered := 0
	for _, item := range m.items {
		if item.Status == domain.IntentProcessing && item.LeaseExpiresAt != nil && item.LeaseExpiresAt.Before(now) {
			item.Status = domain.IntentPending
			item.LeaseExpiresAt = nil
			recovered++
		}
	}
	return recovered, nil
}

func (m *memIntents) SelectBatch(_ context.Context, now time.Time, limit int) ([]domain.SyncIntent, error) {
	batch := make([]domain.SyncIntent, 0)
	for _, item := range m.items {
		if item.Status == domain.IntentPending && !item.NextAttemptAt.After(now) {
			batch = append(batch, *item)
		}
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].CreatedAt.Before(batch[j].CreatedAt) })
	if len(batch) > limit {
		batch = batch[:limit]
	}
	return batch, nil
}

func (m *memIntents) Claim(_ context.Context, intentID string, leaseFor time.Duration) (*domain.SyncIntent, error) {
	item, ok := m.items[intentID]
	if !ok || item.Status != domain.IntentPending {
		return nil, domain.ErrNotClaimed
	}
	item.Status = domain.IntentProcessing
	item.Attempts++
	lease := time.Now().Add(leaseFor)
	item.LeaseExpiresAt = &lease
	claimed := *item
	return &claimed, nil
}

func (m *memIntents) MarkDone(_ context.Context, intentID string) error {
	item := m.items[intentID]
	item.Status = domain.IntentDone
	item.Attempts = 0
	item.LastError = nil
	item.LeaseExpiresAt = nil
	return nil
}

func (m *memIntents) Reschedule(_ context.Context, intentID string, delay time.Duration, lastError string) error {
	item := m.items[intentID]
	item.Status = domain.IntentPending
	item.LeaseExpiresAt = nil
	item.NextAttemptAt = time.Now().Add(delay)
	item.LastError = &lastError
	return nil
}

func (m *memIntents) Fail(_ context.Context, intentID string, lastError string) error {
	item := m.items[intentID]
	item.Status = domain.IntentFailed
	item.LeaseExpiresAt = nil
	item.LastError = &lastError
	return nil
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type memConnections struct {
	conns       map[string]*domain.Connection
	rotations   int
	lastSyncSet map[string]time.Time
}

func newMemConnections() *memConnections {
	return &memConnections{conns: make(map[string]*domain.Connection), lastSyncSet: make(map[string]time.Time)}
}

func (m *memConnections) Get(_ context.Context, accountID string) (*domain.Connection, error) {
	conn, ok := m.conns[accountID]
	if !ok {
		return nil, domain.ErrConnectionNotFound
	}
	copied := *conn
	return &copied, nil
}

func (m *memConnections) RotateTokens(_ context.Context, accountID string, grant domain.Connection) error {
	conn, ok := m.conns[accountID]
	if !ok {
		return domain.ErrConnectionNotFound
	}
	conn.AccessToken = grant.AccessToken
	conn.RefreshToken = grant.RefreshToken
	conn.ExpiresAt = grant.ExpiresAt
	conn.Scope = grant.Scope
	m.rotations++
	return nil
}

func (m *memConnections) TouchLastSync(_ context.Context, accountID string, at time.Time) error {
	if conn, ok := m.conns[accountID]; ok {
		conn.LastSyncAt = &at
	}
	m.lastSyncSet[accountID] = at
	return nil
}

func (m *memConnections) ListStale(_ context.Context, cutoff time.Time, limit int) ([]domain.Connection, error) {
	stale := make([]domain.Connection, 0)
	for _, conn := range m.conns {
		if conn.LastSyncAt == nil || conn.LastSyncAt.Before(cutoff) {
			stale = append(stale, *conn)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].AccountID < stale[j].AccountID })
	if len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

type activityKey struct {
	accountID  string
	provider   string
	externalID int64
}

type memActivities struct {
	records map[activityKey]*domain.ActivityRecord
	inserts int
	updates int
}

func newMemActivities() *memActivities {
	return &memActivities{records: make(map[activityKey]*domain.ActivityRecord)}
}

func (m *memActivities) Insert(_ context.Context, record domain.ActivityRecord) error {
	key := activityKey{record.AccountID, record.Provider, record.ExternalID}
	if _, exists := m.records[key]; exists {
		return domain.ErrActivityExists
	}
	copied := record
	m.records[key] = &copied
	m.inserts++
	return nil
}

func (m *memActivities) GetByExternalID(_ context.Context, accountID, provider string, externalID int64) (*domain.ActivityRecord, error) {
	record, ok := m.records[activityKey{accountID, provider, externalID}]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (m *memActivities) Update(_ context.Context, record domain.ActivityRecord) error {
	key := activityKey{record.AccountID, record.Provider, record.ExternalID}
	if _, ok := m.records[key]; !ok {
		return fmt.Errorf("no record for external id %d", record.ExternalID)
	}
	copied := record
	m.records[key] = &copied
	m.updates++
	return nil
}

func (m *memActivities) setLink(accountID string, externalID int64, entryID string) {
	for key, record := range m.records {
		if key.accountID == accountID && key.externalID == externalID {
			record.CalendarEntryID = &entryID
		}
	}
}

type memCalendar struct {
	entries map[string]*domain.CalendarEntry
	links   int
	upserts int
}

func newMemCalendar() *memCalendar {
	return &memCalendar{entries: make(map[string]*domain.CalendarEntry)}
}

func (m *memCalendar) add(entry domain.CalendarEntry) string {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = domain.EntryPlanned
	}
	if entry.Origin == "" {
		entry.Origin = "plan"
	}
	m.entries[entry.ID] = &entry
	return entry.ID
}

func (m *memCalendar) FindPendingCandidates(_ context.Context, accountID string, discipline domain.Discipline, from, to time.Time) ([]domain.CalendarEntry, error) {
	matches := make([]domain.CalendarEntry, 0)
	for _, entry := range m.entries {
		if entry.AccountID != accountID || entry.Discipline != discipline {
			continue
		}
		if !entry.Status.Pending() || entry.ActivityRecordID != nil {
			continue
		}
		if entry.Date.Before(from) || entry.Date.After(to) {
			continue
		}
		matches = append(matches, *entry)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Date.Before(matches[j].Date) })
	return matches, nil
}

func (m *memCalendar) LinkActivity(_ context.Context, entryID, recordID string, status domain.EntryStatus) error {
	entry, ok := m.entries[entryID]
	if !ok {
		return fmt.Errorf("no entry %s", entryID)
	}
	entry.ActivityRecordID = &recordID
	entry.Status = status
	m.links++
	return nil
}

func (m *memCalendar) UpsertFromActivity(_ context.Context, entry domain.CalendarEntry, recordID string) (bool, error) {
	m.upserts++
	for _, existing := range m.entries {
		if existing.AccountID == entry.AccountID && existing.Origin == entry.Origin &&
			int64PtrEqual(existing.OriginExternalID, entry.OriginExternalID) {
			existing.Title = entry.Title
			existing.Discipline = entry.Discipline
			existing.Date = entry.Date
			existing.PlannedStart = entry.PlannedStart
			existing.Status = entry.Status
			existing.ActivityRecordID = &recordID
			return false, nil
		}
	}
	entry.ActivityRecordID = &recordID
	m.add(entry)
	return true, nil
}

type memProfiles struct {
	profiles map[string]domain.AccountProfile
}

func newMemProfiles() *memProfiles {
	return &memProfiles{profiles: make(map[string]domain.AccountProfile)}
}

func (m *memProfiles) Get(_ context.Context, accountID string) (domain.AccountProfile, error) {
	if profile, ok := m.profiles[accountID]; ok {
		return profile, nil
	}
	return domain.AccountProfile{AccountID: accountID, Timezone: "UTC"}, nil
}

type fakeProvider struct {
	refreshFn    func(refreshToken string) (strava.TokenGrant, error)
	listFn       func(accessToken string, after time.Time, perPage int) ([]strava.Activity, error)
	getFn        func(accessToken string, externalID int64) (strava.Activity, error)
	refreshCalls int
	listCalls    []string
}

func (p *fakeProvider) RefreshToken(_ context.Context, refreshToken string) (strava.TokenGrant, error) {
	p.refreshCalls++
	if p.refreshFn == nil {
		return strava.TokenGrant{}, fmt.Errorf("unexpected refresh")
	}
	return p.refreshFn(refreshToken)
}

func (p *fakeProvider) ListActivities(_ context.Context, accessToken string, after time.Time, perPage int) ([]strava.Activity, error) {
	p.listCalls = append(p.listCalls, accessToken)
	if p.listFn == nil {
		return nil, nil
	}
	return p.listFn(accessToken, after, perPage)
}

func (p *fakeProvider) GetActivity(_ context.Context, accessToken string, externalID int64) (strava.Activity, error) {
	if p.getFn == nil {
		return strava.Activity{}, fmt.Errorf("unexpected get")
	}
	return p.getFn(accessToken, externalID)
}
