package strava

import (
	"encoding/json"
	"time"
)

// OptionalFloat decodes a JSON number while tolerating absent or wrongly
// typed values: anything that is not a number leaves the field unset instead
// of failing the whole activity.
type OptionalFloat struct {
	Value float64
	Set   bool
}

// UnmarshalJSON implements tolerant decoding.
func (f *OptionalFloat) UnmarshalJSON(data []byte) error {
	var value float64
	if err := json.Unmarshal(data, &value); err != nil {
		f.Set = false
		return nil
	}
	f.Value = value
	f.Set = true
	return nil
}

// Ptr returns the value as a pointer, nil when unset.
func (f OptionalFloat) Ptr() *float64 {
	if !f.Set {
		return nil
	}
	value := f.Value
	return &value
}

// OptionalString decodes a JSON string, treating non-strings as absent.
type OptionalString struct {
	Value string
	Set   bool
}

// UnmarshalJSON implements tolerant decoding.
func (s *OptionalString) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		s.Set = false
		return nil
	}
	s.Value = value
	s.Set = true
	return nil
}

// Activity is one activity object as returned by the provider's REST API.
// Only id, start instant, and elapsed time are contractual; everything else
// is optional and decoded tolerantly.
type Activity struct {
	ID               int64          `json:"id"`
	Name             OptionalString `json:"name"`
	SportType        OptionalString `json:"sport_type"`
	Type             OptionalString `json:"type"`
	StartDate        time.Time      `json:"start_date"`
	ElapsedTime      int            `json:"elapsed_time"`
	MovingTime       OptionalFloat  `json:"moving_time"`
	Distance         OptionalFloat  `json:"distance"`
	AverageSpeed     OptionalFloat  `json:"average_speed"`
	AverageHeartrate OptionalFloat  `json:"average_heartrate"`
	MaxHeartrate     OptionalFloat  `json:"max_heartrate"`
	AverageCadence   OptionalFloat  `json:"average_cadence"`
	ElevationGain    OptionalFloat  `json:"total_elevation_gain"`
	Calories         OptionalFloat  `json:"calories"`
	Map              *ActivityMap   `json:"map"`
}

// ActivityMap carries the route polyline when the provider includes one.
type ActivityMap struct {
	SummaryPolyline OptionalString `json:"summary_polyline"`
}

// Sport returns the sport classification string, preferring the newer
// sport_type field over the legacy type field.
func (a Activity) Sport() string {
	if a.SportType.Set && a.SportType.Value != "" {
		return a.SportType.Value
	}
	return a.Type.Value
}

// TokenGrant is the provider's token-exchange response. All four fields are
// contractual; a response missing any of them is a hard failure.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
}
