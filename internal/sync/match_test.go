package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/coachsync/internal/domain"
)

func plannedAt(t time.Time) *time.Time { return &t }

func runRecord(externalID int64, startedAt time.Time) *domain.ActivityRecord {
	return &domain.ActivityRecord{
		ID:         "rec-1",
		AccountID:  "acct-1",
		Provider:   domain.ProviderStrava,
		ExternalID: externalID,
		Name:       "Morning Run",
		Discipline: domain.DisciplineRun,
		StartedAt:  startedAt,
	}
}

func TestMatchPrefersClosestStartTime(t *testing.T) {
	calendar := newMemCalendar()
	day := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	earlyID := calendar.add(domain.CalendarEntry{
		AccountID:    "acct-1",
		Discipline:   domain.DisciplineRun,
		Date:         day,
		PlannedStart: plannedAt(day.Add(7 * time.Hour)),
	})
	calendar.add(domain.CalendarEntry{
		AccountID:    "acct-1",
		Discipline:   domain.DisciplineRun,
		Date:         day,
		PlannedStart: plannedAt(day.Add(18 * time.Hour)),
	})

	matcher := NewMatcher(calendar, newMemProfiles(), true)
	record := runRecord(101, time.Date(2026, time.January, 5, 7, 2, 0, 0, time.UTC))

	outcome, err := matcher.Match(context.Background(), record)
	require.NoError(t, err)
	require.True(t, outcome.Matched)
	require.False(t, outcome.CreatedEntry)

	entry := calendar.entries[earlyID]
	require.Equal(t, domain.EntrySyncedDraft, entry.Status)
	require.NotNil(t, entry.ActivityRecordID)
	require.Equal(t, "rec-1", *entry.ActivityRecordID)
	require.NotNil(t, record.CalendarEntryID)
	require.Equal(t, earlyID, *record.CalendarEntryID)
}

func TestMatchTimedEntryBeatsUntimed(t *testing.T) {
	calendar := newMemCalendar()
	day := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	calendar.add(domain.CalendarEntry{
		AccountID:  "acct-1",
		Discipline: domain.DisciplineRun,
		Date:       day,
	})
	timedID := calendar.add(domain.CalendarEntry{
		AccountID:    "acct-1",
		Discipline:   domain.DisciplineRun,
		Date:         day,
		PlannedStart: plannedAt(day.Add(7 * time.Hour)),
	})

	matcher := NewMatcher(calendar, newMemProfiles(), true)
	record := runRecord(101, time.Date(2026, time.January, 5, 7, 2, 0, 0, time.UTC))

	outcome, err := matcher.Match(context.Background(), record)
	require.NoError(t, err)
	require.True(t, outcome.Matched)
	require.Equal(t, "rec-1", *calendar.entries[timedID].ActivityRecordID)
}

func TestMatchSameDayBeatsAdjacentDay(t *testing.T) {
	calendar := newMemCalendar()
	day := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	calendar.add(domain.CalendarEntry{
		AccountID:    "acct-1",
		Discipline:   domain.DisciplineRun,
		Date:         day.AddDate(0, 0, -1),
		PlannedStart: plannedAt(day.AddDate(0, 0, -1).Add(7 * time.Hour)),
	})
	sameDayID := calendar.add(domain.CalendarEntry{
		AccountID:    "acct-1",
		Discipline:   domain.DisciplineRun,
		Date:         day,
		PlannedStart: plannedAt(day.Add(18 * time.Hour)),
	})

	matcher := NewMatcher(calendar, newMemProfiles(), true)
	record := runRecord(101, time.Date(2026, time.January, 5, 7, 2, 0, 0, time.UTC))

	outcome, err := matcher.Match(context.Background(), record)
	require.NoError(t, err)
	require.True(t, outcome.Matched)
	require.Equal(t, "rec-1", *calendar.entries[sameDayID].ActivityRecordID)
}

func TestMatchConfirmedActivityConfirmsEntry(t *testing.T) {
	calendar := newMemCalendar()
	day := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	entryID := calendar.add(domain.CalendarEntry{
		AccountID:    "acct-1",
		Discipline:   domain.DisciplineRun,
		Date:         day,
		PlannedStart: plannedAt(day.Add(7 * time.Hour)),
	})

	matcher := NewMatcher(calendar, newMemProfiles(), true)
	record := runRecord(101, time.Date(2026, time.January, 5, 7, 0, 0, 0, time.UTC))
	confirmed := time.Now()
	record.ConfirmedAt = &confirmed

	_, err := matcher.Match(context.Background(), record)
	require.NoError(t, err)
	require.Equal(t, domain.EntrySyncedConfirmed, calendar.entries[entryID].Status)
}

func TestMatchUsesAccountTimezoneForLocalDate(t *testing.T) {
	calendar := newMemCalendar()
	// 23:30 UTC Jan 5 is already Jan 6 in Auckland.
	aucklandDay := time.Date(2026, time.January, 6, 0, 0, 0, 0, time.UTC)
	entryID := calendar.add(domain.CalendarEntry{
		AccountID:    "acct-1",
		Discipline:   domain.DisciplineRun,
		Date:         aucklandDay,
		PlannedStart: plannedAt(aucklandDay.Add(12 * time.Hour)),
	})

	profiles := newMemProfiles()
	profiles.profiles["acct-1"] = domain.AccountProfile{AccountID: "acct-1", Timezone: "Pacific/Auckland"}

	matcher := NewMatcher(calendar, profiles, false)
	record := runRecord(101, time.Date(2026, time.January, 5, 23, 30, 0, 0, time.UTC))

	outcome, err := matcher.Match(context.Background(), record)
	require.NoError(t, err)
	require.True(t, outcome.Matched)
	require.Equal(t, "rec-1", *calendar.entries[entryID].ActivityRecordID)
}

func TestMatchMaterializesWhenNoCandidate(t *testing.T) {
	calendar := newMemCalendar()
	matcher := NewMatcher(calendar, newMemProfiles(), true)
	record := runRecord(101, time.Date(2026, time.January, 5, 7, 2, 0, 0, time.UTC))

	outcome, err := matcher.Match(context.Background(), record)
	require.NoError(t, err)
	require.False(t, outcome.Matched)
	require.True(t, outcome.CreatedEntry)
	require.Len(t, calendar.entries, 1)

	for _, entry := range calendar.entries {
		require.Equal(t, "Morning Run", entry.Title)
		require.Equal(t, domain.ProviderStrava, entry.Origin)
		require.Equal(t, int64(101), *entry.OriginExternalID)
		require.Equal(t, domain.EntrySyncedDraft, entry.Status)
	}
}

func TestMatchMaterializationIsIdempotent(t *testing.T) {
	calendar := newMemCalendar()
	matcher := NewMatcher(calendar, newMemProfiles(), true)
	ctx := context.Background()

	first := runRecord(101, time.Date(2026, time.January, 5, 7, 2, 0, 0, time.UTC))
	outcome, err := matcher.Match(ctx, first)
	require.NoError(t, err)
	require.True(t, outcome.CreatedEntry)

	second := runRecord(101, time.Date(2026, time.January, 5, 7, 2, 0, 0, time.UTC))
	outcome, err = matcher.Match(ctx, second)
	require.NoError(t, err)
	require.False(t, outcome.CreatedEntry)
	require.Len(t, calendar.entries, 1)
}

func TestMatchLeavesLinkedRecordsAlone(t *testing.T) {
	calendar := newMemCalendar()
	matcher := NewMatcher(calendar, newMemProfiles(), true)

	record := runRecord(101, time.Now())
	linked := "entry-1"
	record.CalendarEntryID = &linked

	outcome, err := matcher.Match(context.Background(), record)
	require.NoError(t, err)
	require.False(t, outcome.Matched)
	require.False(t, outcome.CreatedEntry)
	require.Zero(t, calendar.links)
	require.Zero(t, calendar.upserts)
}
