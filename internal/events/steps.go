// Package events defines the payloads exchanged over the platform event bus.
package events

import "time"

// SensorReading is emitted by a device gateway for every hardware pedometer
// callback. CumulativeSteps is the counter since device boot, not a delta.
type SensorReading struct {
	DeviceID        string    `json:"device_id"`
	UserID          string    `json:"user_id"`
	CumulativeSteps int64     `json:"cumulative_steps"`
	DistanceM       float64   `json:"distance_m"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// SensorRebooted signals that the device restarted and its cumulative counter
// was reset to zero.
type SensorRebooted struct {
	DeviceID string    `json:"device_id"`
	UserID   string    `json:"user_id"`
	BootedAt time.Time `json:"booted_at"`
}

// GoalReached is published the first time a user's daily step target is met.
type GoalReached struct {
	UserID     string    `json:"user_id"`
	Day        string    `json:"day"`
	Steps      int64     `json:"steps"`
	Target     int64     `json:"target"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DayClosed is published when a midnight rollover flushes the final totals
// for a calendar day. The day's record is immutable after this point.
type DayClosed struct {
	UserID     string    `json:"user_id"`
	Day        string    `json:"day"`
	Steps      int64     `json:"steps"`
	DistanceKm float64   `json:"distance_km"`
	Calories   int64     `json:"calories"`
	TargetHit  bool      `json:"target_hit"`
	OccurredAt time.Time `json:"occurred_at"`
}
