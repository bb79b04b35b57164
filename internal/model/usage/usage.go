package usage

import "time"

// DayLayout formats the calendar day a usage record belongs to (UTC).
const DayLayout = "2006-01-02"

// DayKey returns the ledger day key for t.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// LimitType names the cap that rejected an admission check.
type LimitType string

const (
	LimitDailyCost       LimitType = "daily_cost"
	LimitRealtimeMinutes LimitType = "realtime_minutes"
	LimitStandardMinutes LimitType = "standard_minutes"
	LimitSessionDuration LimitType = "session_duration"
)

// Record aggregates one user's voice usage for one calendar day.
type Record struct {
	UserID           string    `json:"userId"`
	Day              string    `json:"day"`
	RealtimeMinutes  float64   `json:"realtimeMinutes"`
	StandardMinutes  float64   `json:"standardMinutes"`
	EstimatedCostUSD float64   `json:"estimatedCostUsd"`
	UpdatedAt        time.Time `json:"updatedAt,omitempty"`
}

// Delta is an additive change applied to a Record. Fields are never negative.
type Delta struct {
	RealtimeMinutes  float64
	StandardMinutes  float64
	EstimatedCostUSD float64
}

// IsZero reports whether applying d would leave a record unchanged.
func (d Delta) IsZero() bool {
	return d.RealtimeMinutes == 0 && d.StandardMinutes == 0 && d.EstimatedCostUSD == 0
}

// Limits are the per-user daily caps.
type Limits struct {
	RealtimeMinutes float64 `json:"realtimeMinutes"`
	StandardMinutes float64 `json:"standardMinutes"`
	DailyCostUSD    float64 `json:"dailyCostUsd"`
}

// Rates are the estimated USD cost per minute of each processing mode.
type Rates struct {
	RealtimePerMinute float64 `json:"realtimePerMinute"`
	StandardPerMinute float64 `json:"standardPerMinute"`
}

// Decision is the result of an admission check.
type Decision struct {
	Allowed    bool      `json:"allowed"`
	LimitType  LimitType `json:"limitType,omitempty"`
	Suggestion string    `json:"suggestion,omitempty"`
	Record     Record    `json:"record"`
}
