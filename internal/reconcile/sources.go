package reconcile

import (
	"context"
	"errors"
	"time"

	"example.com/steps/internal/domain"
)

// ErrPermissionDenied signals the platform health source rejected the read.
// The caller degrades to the record store; nothing is surfaced as fatal.
var ErrPermissionDenied = errors.New("health data permission denied")

// RecordStore is the remote per-day record store the reconciler keeps
// eventually consistent with its in-memory totals.
type RecordStore interface {
	Upsert(ctx context.Context, rec domain.DailyStepRecord, closing bool) (domain.DailyStepRecord, error)
	Get(ctx context.Context, userID string, day time.Time) (*domain.DailyStepRecord, error)
}

// DailyTotals is a read-only snapshot from an authoritative source.
type DailyTotals struct {
	Steps      int64
	DistanceKm float64
	Calories   int64
}

// HealthSource reads today's totals from the platform health API.
// Implementations return ErrPermissionDenied when the user has not granted
// access, and (nil, nil) when no data exists for the day.
type HealthSource interface {
	Today(ctx context.Context, userID string, day time.Time) (*DailyTotals, error)
}

// QueueEntry is one pending remote write persisted while offline.
type QueueEntry struct {
	UserID     string
	Day        time.Time
	Steps      int64
	DistanceKm float64
	Calories   int64
	TargetHit  bool
	Closing    bool
	QueuedAtMs int64
}

// WriteQueue spills failed remote writes to device-local storage and replays
// them in insertion order once connectivity returns.
type WriteQueue interface {
	Enqueue(ctx context.Context, entry QueueEntry) error
	// Replay applies fn to each queued entry in order, deleting entries as
	// they succeed. It stops at the first failure, leaving the remainder
	// queued, and returns the number of entries replayed.
	Replay(ctx context.Context, fn func(context.Context, QueueEntry) error) (int, error)
}
