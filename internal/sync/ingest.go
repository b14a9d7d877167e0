package sync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/google/uuid"

	"example.com/coachsync/internal/domain"
	"example.com/coachsync/internal/provider/strava"
)

// Ingestor converts raw provider activities into normalized activity records.
// Ingestion is idempotent per (account, provider, external id): insert first,
// and on an identity conflict read the stored record, compare, and only write
// when something genuinely changed.
type Ingestor struct {
	activities ActivityStore
}

// NewIngestor constructs an Ingestor.
func NewIngestor(activities ActivityStore) *Ingestor {
	return &Ingestor{activities: activities}
}

// Ingest upserts one provider activity. The returned record reflects the
// stored state; changed reports whether a row was created or updated.
func (i *Ingestor) Ingest(ctx context.Context, accountID string, activity strava.Activity) (*domain.ActivityRecord, bool, error) {
	record := buildRecord(accountID, activity)

	err := i.activities.Insert(ctx, record)
	if err == nil {
		return &record, true, nil
	}
	if !errors.Is(err, domain.ErrActivityExists) {
		return nil, false, fmt.Errorf("insert activity %d: %w", activity.ID, err)
	}

	existing, err := i.activities.GetByExternalID(ctx, accountID, domain.ProviderStrava, activity.ID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// Conflict but no row: the row vanished between statements. Treat as
		// a transient failure and let the retry path handle it.
		return nil, false, fmt.Errorf("activity %d: conflict without stored record", activity.ID)
	}

	if unchangedRecord(*existing, record) {
		return existing, false, nil
	}

	merged := *existing
	merged.Name = record.Name
	merged.Discipline = record.Discipline
	merged.StartedAt = record.StartedAt
	merged.DurationMin = record.DurationMin
	merged.DistanceKm = record.DistanceKm
	if merged.Metrics == nil {
		merged.Metrics = make(map[string]domain.MetricsPayload)
	}
	// Sibling provider payloads already stored stay untouched.
	merged.Metrics[domain.ProviderStrava] = record.Metrics[domain.ProviderStrava]

	if err := i.activities.Update(ctx, merged); err != nil {
		return nil, false, fmt.Errorf("update activity %d: %w", activity.ID, err)
	}
	return &merged, true, nil
}

func buildRecord(accountID string, activity strava.Activity) domain.ActivityRecord {
	discipline := domain.ClassifyDiscipline(activity.Sport())

	name := activity.Name.Value
	if name == "" {
		name = "Synced activity"
	}

	record := domain.ActivityRecord{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Provider:    domain.ProviderStrava,
		ExternalID:  activity.ID,
		Name:        name,
		Discipline:  discipline,
		StartedAt:   activity.StartDate.UTC(),
		DurationMin: normalizeDuration(activity.ElapsedTime),
		Metrics: map[string]domain.MetricsPayload{
			domain.ProviderStrava: normalizeMetrics(activity, discipline),
		},
	}

	if meters := activity.Distance.Ptr(); meters != nil {
		km := roundTo(*meters/1000, 2)
		record.DistanceKm = &km
	}
	return record
}

// normalizeDuration converts elapsed seconds to rounded minutes, floor 1.
func normalizeDuration(elapsedSeconds int) int {
	minutes := int(math.Round(float64(elapsedSeconds) / 60))
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

func normalizeMetrics(activity strava.Activity, discipline domain.Discipline) domain.MetricsPayload {
	payload := domain.MetricsPayload{
		AvgHeartRate:   activity.AverageHeartrate.Ptr(),
		MaxHeartRate:   activity.MaxHeartrate.Ptr(),
		AvgCadence:     activity.AverageCadence.Ptr(),
		ElevationGainM: activity.ElevationGain.Ptr(),
		Calories:       activity.Calories.Ptr(),
	}

	duration := normalizeDuration(activity.ElapsedTime)
	payload.DurationMin = &duration

	if meters := activity.Distance.Ptr(); meters != nil {
		km := roundTo(*meters/1000, 2)
		payload.DistanceKm = &km
	}

	if speed := activity.AverageSpeed.Ptr(); speed != nil && *speed > 0 {
		kmh := roundTo(*speed*3.6, 2)
		payload.AvgSpeedKmh = &kmh
		// Pace only makes sense for run-like work.
		if discipline == domain.DisciplineRun {
			pace := roundTo(60/kmh, 2)
			payload.PaceMinPerKm = &pace
		}
	}

	if activity.Map != nil && activity.Map.SummaryPolyline.Set && activity.Map.SummaryPolyline.Value != "" {
		polyline := activity.Map.SummaryPolyline.Value
		payload.SummaryPolyline = &polyline
	}
	return payload
}

// unchangedRecord decides whether a re-delivery is a no-op. The comparison
// covers exactly the fields a genuine provider change would move.
func unchangedRecord(existing, incoming domain.ActivityRecord) bool {
	if existing.DurationMin != incoming.DurationMin {
		return false
	}
	if !floatPtrEqual(existing.DistanceKm, incoming.DistanceKm) {
		return false
	}
	if !existing.StartedAt.Equal(incoming.StartedAt) {
		return false
	}
	return reflect.DeepEqual(existing.Metrics[domain.ProviderStrava], incoming.Metrics[domain.ProviderStrava])
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func roundTo(value float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(value*factor) / factor
}
