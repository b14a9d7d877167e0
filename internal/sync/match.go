package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"example.com/coachsync/internal/domain"
)

// Matcher links ingested activities to planned calendar entries, or
// materializes a standalone entry when no plan exists.
type Matcher struct {
	calendar      CalendarStore
	profiles      ProfileStore
	adjacentDays  bool
	fallbackTitle string
}

// NewMatcher constructs a Matcher. adjacentDays widens the candidate window
// to the day before and after the activity's local date.
func NewMatcher(calendar CalendarStore, profiles ProfileStore, adjacentDays bool) *Matcher {
	return &Matcher{
		calendar:      calendar,
		profiles:      profiles,
		adjacentDays:  adjacentDays,
		fallbackTitle: "Synced activity",
	}
}

// MatchOutcome reports what the matcher did for one activity.
type MatchOutcome struct {
	Matched      bool
	CreatedEntry bool
}

// Match finds the best pending calendar entry for the record and links it,
// or materializes a new entry. Records already linked are left alone.
func (m *Matcher) Match(ctx context.Context, record *domain.ActivityRecord) (MatchOutcome, error) {
	if record.CalendarEntryID != nil {
		return MatchOutcome{}, nil
	}

	profile, err := m.profiles.Get(ctx, record.AccountID)
	if err != nil {
		return MatchOutcome{}, fmt.Errorf("match activity %d: %w", record.ExternalID, err)
	}

	localStart := record.StartedAt.In(profile.Location())
	activityDate := dateOnly(localStart)

	from, to := activityDate, activityDate
	if m.adjacentDays {
		from = activityDate.AddDate(0, 0, -1)
		to = activityDate.AddDate(0, 0, 1)
	}

	candidates, err := m.calendar.FindPendingCandidates(ctx, record.AccountID, record.Discipline, from, to)
	if err != nil {
		return MatchOutcome{}, err
	}

	status := domain.EntrySyncedDraft
	if record.ConfirmedAt != nil {
		status = domain.EntrySyncedConfirmed
	}

	if best := pickCandidate(candidates, activityDate, localStart); best != nil {
		if err := m.calendar.LinkActivity(ctx, best.ID, record.ID, status); err != nil {
			return MatchOutcome{}, err
		}
		entryID := best.ID
		record.CalendarEntryID = &entryID
		return MatchOutcome{Matched: true}, nil
	}

	title := record.Name
	if title == "" {
		title = m.fallbackTitle
	}
	plannedStart := wallClock(localStart)
	externalID := record.ExternalID

	entry := domain.CalendarEntry{
		ID:               uuid.NewString(),
		AccountID:        record.AccountID,
		Title:            title,
		Discipline:       record.Discipline,
		Date:             activityDate,
		PlannedStart:     &plannedStart,
		Status:           status,
		Origin:           domain.ProviderStrava,
		OriginExternalID: &externalID,
	}

	created, err := m.calendar.UpsertFromActivity(ctx, entry, record.ID)
	if err != nil {
		return MatchOutcome{}, err
	}
	return MatchOutcome{CreatedEntry: created}, nil
}

// pickCandidate ranks eligible entries: same-day before adjacent-day, then
// smallest planned-vs-actual start delta, entries without a planned time after
// all timed entries, remaining ties broken by earliest planned time.
func pickCandidate(candidates []domain.CalendarEntry, activityDate time.Time, localStart time.Time) *domain.CalendarEntry {
	if len(candidates) == 0 {
		return nil
	}

	activityMinutes := clockMinutes(localStart)
	ranked := make([]domain.CalendarEntry, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		di, dj := dayDistance(ranked[i].Date, activityDate), dayDistance(ranked[j].Date, activityDate)
		if di != dj {
			return di < dj
		}

		ti, tj := ranked[i].PlannedStart, ranked[j].PlannedStart
		if (ti != nil) != (tj != nil) {
			return ti != nil
		}
		if ti == nil {
			return ranked[i].Date.Before(ranked[j].Date)
		}

		deltaI := absInt(clockMinutes(*ti) - activityMinutes)
		deltaJ := absInt(clockMinutes(*tj) - activityMinutes)
		if deltaI != deltaJ {
			return deltaI < deltaJ
		}
		return ti.Before(*tj)
	})

	best := ranked[0]
	return &best
}

// dateOnly truncates to the calendar date, normalized to UTC midnight so
// dates from different sources compare by day.
func dateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// wallClock strips the zone, keeping local wall-clock components.
func wallClock(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

func dayDistance(a, b time.Time) int {
	diff := dateOnly(a).Sub(dateOnly(b))
	return absInt(int(diff.Hours() / 24))
}

func clockMinutes(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
