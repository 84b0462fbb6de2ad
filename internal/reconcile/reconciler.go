// Package reconcile merges cumulative hardware step counts, platform health
// readings, and previously synced database totals into one authoritative
// "steps today" figure per user.
package reconcile

import (
	"context"
	"log"
	"sync"
	"time"

	"example.com/steps/internal/domain"
)

// Conversion factors applied per accepted step.
const (
	defaultStepLengthKm    = 0.000762 // 0.762 m average stride
	defaultCaloriesPerStep = 0.04
)

// Options tunes reconciliation behaviour. Zero values take defaults.
type Options struct {
	UpdateCeiling   int64   // largest plausible step delta in a single reading
	DailyCeiling    int64   // largest plausible running total for one day
	SyncThreshold   int64   // minimum unsynced delta before a non-forced write
	StepLengthKm    float64 // distance credited per step
	CaloriesPerStep float64
	Location        *time.Location
	Clock           func() time.Time
	Logger          *log.Logger
}

func (o Options) withDefaults() Options {
	if o.UpdateCeiling <= 0 {
		o.UpdateCeiling = 5000
	}
	if o.DailyCeiling <= 0 {
		o.DailyCeiling = 120000
	}
	if o.SyncThreshold <= 0 {
		o.SyncThreshold = 25
	}
	if o.StepLengthKm <= 0 {
		o.StepLengthKm = defaultStepLengthKm
	}
	if o.CaloriesPerStep <= 0 {
		o.CaloriesPerStep = defaultCaloriesPerStep
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = log.New(log.Writer(), "[reconcile] ", log.LstdFlags)
	}
	return o
}

// Reconciler owns all per-user reconciliation state explicitly; nothing is
// captured in closures or package globals. Callbacks arrive from a consumer
// loop, a periodic sync task, and shutdown, so the struct carries its own
// lock. Remote failures degrade to the offline queue; rejected readings are
// dropped with a logged reason. No method returns an error the caller must
// treat as fatal.
type Reconciler struct {
	userID string
	goal   int64
	store  RecordStore
	health HealthSource
	queue  WriteQueue
	opts   Options

	mu sync.Mutex

	// baseline is the cumulative sensor value captured at session start;
	// nil means the next reading re-anchors instead of contributing.
	baseline     *int64
	distBaseline float64
	prevDelta    int64
	sessionDelta int64
	sessionDist  float64

	// base* come from the database (or health API) at day start / resume.
	baseSteps    int64
	baseDistance float64
	baseCalories int64

	// visible totals; steps never regresses within a day.
	steps      int64
	distanceKm float64
	calories   int64

	day        time.Time // tracked local calendar day, midnight
	lastSynced int64     // steps figure of the last successful remote write
	lastUpdate time.Time
}

// New constructs a Reconciler. health and queue may be nil; the reconciler
// then skips the health source and drops writes it cannot deliver.
func New(userID string, goal int64, store RecordStore, health HealthSource, queue WriteQueue, opts Options) *Reconciler {
	return &Reconciler{
		userID: userID,
		goal:   goal,
		store:  store,
		health: health,
		queue:  queue,
		opts:   opts.withDefaults(),
	}
}

// Ingest processes one hardware sensor callback carrying the cumulative step
// count since device boot and the sensor-reported distance in meters. The
// first reading after a baseline reset anchors the baseline and contributes
// nothing visible. Implausible jumps are rejected and logged.
func (r *Reconciler) Ingest(ctx context.Context, cumulativeSteps int64, distanceMeters float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.opts.Clock()
	r.checkRolloverLocked(ctx, now)

	if r.baseline == nil {
		anchor := cumulativeSteps
		r.baseline = &anchor
		r.distBaseline = distanceMeters
		r.prevDelta = 0
		r.lastUpdate = now
		return
	}

	delta := cumulativeSteps - *r.baseline
	if delta < 0 {
		delta = 0
	}

	if jump := delta - r.prevDelta; jump > r.opts.UpdateCeiling {
		r.opts.Logger.Printf("rejected reading (user=%s): delta jump %d exceeds ceiling %d", r.userID, jump, r.opts.UpdateCeiling)
		recordReadingRejected("jump")
		return
	}
	if r.baseSteps+delta > r.opts.DailyCeiling {
		r.opts.Logger.Printf("rejected reading (user=%s): daily total %d exceeds ceiling %d", r.userID, r.baseSteps+delta, r.opts.DailyCeiling)
		recordReadingRejected("daily_ceiling")
		return
	}

	r.prevDelta = delta
	r.sessionDelta = delta

	sessionDist := float64(delta) * r.opts.StepLengthKm
	if sensorDist := (distanceMeters - r.distBaseline) / 1000; sensorDist > sessionDist {
		sessionDist = sensorDist
	}
	r.sessionDist = sessionDist

	if cand := r.baseSteps + delta; cand > r.steps {
		r.steps = cand
	}
	if cand := r.baseDistance + sessionDist; cand > r.distanceKm {
		r.distanceKm = cand
	}
	if cand := r.baseCalories + int64(float64(delta)*r.opts.CaloriesPerStep); cand > r.calories {
		r.calories = cand
	}
	r.lastUpdate = now
	recordReadingAccepted()
}

// CheckRollover forces a day-boundary check outside the sensor path, so a
// rollover happens even on a quiet device. It reports whether a new day
// started.
func (r *Reconciler) CheckRollover(ctx context.Context, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkRolloverLocked(ctx, now)
}

// checkRolloverLocked flushes the previous day exactly once (queued on
// failure) and zeroes all counters for the new day. Flush-then-reset runs
// under the lock, so callers observe it atomically.
func (r *Reconciler) checkRolloverLocked(ctx context.Context, now time.Time) bool {
	day := domain.Midnight(now, r.opts.Location)
	if r.day.IsZero() {
		r.day = day
		return false
	}
	if day.Equal(r.day) {
		return false
	}

	if r.steps > 0 || r.lastSynced > 0 {
		r.flushLocked(ctx, true)
	}

	r.baseline = nil
	r.distBaseline = 0
	r.prevDelta = 0
	r.sessionDelta = 0
	r.sessionDist = 0
	r.baseSteps = 0
	r.baseDistance = 0
	r.baseCalories = 0
	r.steps = 0
	r.distanceKm = 0
	r.calories = 0
	r.lastSynced = 0
	r.day = day
	recordRollover()
	return true
}

// NoteReboot clears the baseline so the next reading re-anchors instead of
// producing a huge spurious delta. Accumulated visible totals survive by
// folding the current session into the base figures.
func (r *Reconciler) NoteReboot() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.baseSteps += r.sessionDelta
	r.baseDistance += r.sessionDist
	r.baseCalories += int64(float64(r.sessionDelta) * r.opts.CaloriesPerStep)
	r.baseline = nil
	r.distBaseline = 0
	r.prevDelta = 0
	r.sessionDelta = 0
	r.sessionDist = 0
}

// Sync writes current totals to the remote store when the unsynced delta
// reaches the threshold, or unconditionally when force is set (used on
// shutdown and by the periodic task). Failures degrade to the offline queue
// and are never returned.
func (r *Reconciler) Sync(ctx context.Context, force bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.checkRolloverLocked(ctx, r.opts.Clock())

	if r.steps == 0 && r.lastSynced == 0 {
		return
	}
	if !force && r.steps-r.lastSynced < r.opts.SyncThreshold {
		return
	}
	r.flushLocked(ctx, false)
}

// flushLocked performs one remote upsert. On success it absorbs any larger
// stored totals (another device may be ahead) and replays the offline
// queue; on failure it enqueues the write for later replay.
func (r *Reconciler) flushLocked(ctx context.Context, closing bool) {
	rec := r.snapshotLocked()

	stored, err := r.store.Upsert(ctx, rec, closing)
	if err != nil {
		r.opts.Logger.Printf("sync failed (user=%s day=%s): %v; queued for replay", r.userID, rec.DayString(), err)
		recordSyncFailure()
		r.enqueueLocked(ctx, rec, closing)
		return
	}

	recordSyncSuccess()
	if closing {
		return
	}

	r.lastSynced = r.steps
	if stored.Steps > r.steps {
		r.baseSteps = stored.Steps - r.sessionDelta
		r.steps = stored.Steps
		r.lastSynced = stored.Steps
	}
	if stored.DistanceKm > r.distanceKm {
		r.baseDistance = stored.DistanceKm - r.sessionDist
		r.distanceKm = stored.DistanceKm
	}
	if stored.Calories > r.calories {
		r.baseCalories = stored.Calories - int64(float64(r.sessionDelta)*r.opts.CaloriesPerStep)
		r.calories = stored.Calories
	}

	r.replayQueueLocked(ctx)
}

func (r *Reconciler) enqueueLocked(ctx context.Context, rec domain.DailyStepRecord, closing bool) {
	if r.queue == nil {
		return
	}
	entry := QueueEntry{
		UserID:     rec.UserID,
		Day:        rec.Day,
		Steps:      rec.Steps,
		DistanceKm: rec.DistanceKm,
		Calories:   rec.Calories,
		TargetHit:  rec.TargetHit,
		Closing:    closing,
		QueuedAtMs: r.opts.Clock().UnixMilli(),
	}
	if err := r.queue.Enqueue(ctx, entry); err != nil {
		// Last resort: the write is lost, but the in-memory totals remain and
		// the next successful sync carries the same monotone figure.
		r.opts.Logger.Printf("offline enqueue failed (user=%s): %v", r.userID, err)
	}
}

func (r *Reconciler) replayQueueLocked(ctx context.Context) {
	if r.queue == nil {
		return
	}
	replayed, err := r.queue.Replay(ctx, func(ctx context.Context, entry QueueEntry) error {
		rec := domain.DailyStepRecord{
			UserID:     entry.UserID,
			Day:        entry.Day,
			Steps:      entry.Steps,
			DistanceKm: entry.DistanceKm,
			Calories:   entry.Calories,
			TargetHit:  entry.TargetHit,
		}
		_, upsertErr := r.store.Upsert(ctx, rec, entry.Closing)
		return upsertErr
	})
	if replayed > 0 {
		recordQueueReplayed(replayed)
	}
	if err != nil {
		r.opts.Logger.Printf("queue replay stopped (user=%s): %v", r.userID, err)
	}
}

// ReconcileOnResume re-reads the authoritative source after the process was
// suspended and takes the larger of the fresh total and the in-memory one.
// The health API wins when available; a denied permission or failed read
// degrades to the record store, and a failed store read leaves the current
// totals untouched.
func (r *Reconciler) ReconcileOnResume(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.checkRolloverLocked(ctx, r.opts.Clock())

	var fresh *DailyTotals
	fromStore := false

	if r.health != nil {
		totals, err := r.health.Today(ctx, r.userID, r.day)
		switch {
		case err != nil:
			r.opts.Logger.Printf("health source unavailable (user=%s): %v", r.userID, err)
		case totals != nil:
			fresh = totals
		}
	}

	if fresh == nil {
		rec, err := r.store.Get(ctx, r.userID, r.day)
		if err != nil {
			r.opts.Logger.Printf("resume read failed (user=%s): %v", r.userID, err)
			return
		}
		if rec != nil {
			fresh = &DailyTotals{Steps: rec.Steps, DistanceKm: rec.DistanceKm, Calories: rec.Calories}
			fromStore = true
		}
	}

	if fresh == nil {
		return
	}

	if fresh.Steps > r.steps {
		r.baseSteps = fresh.Steps - r.sessionDelta
		r.steps = fresh.Steps
	}
	if fresh.DistanceKm > r.distanceKm {
		r.baseDistance = fresh.DistanceKm - r.sessionDist
		r.distanceKm = fresh.DistanceKm
	}
	if fresh.Calories > r.calories {
		r.baseCalories = fresh.Calories - int64(float64(r.sessionDelta)*r.opts.CaloriesPerStep)
		r.calories = fresh.Calories
	}
	if fromStore && fresh.Steps > r.lastSynced {
		r.lastSynced = fresh.Steps
	}
}

// Snapshot returns the current visible totals.
func (r *Reconciler) Snapshot() domain.DailyStepRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reconciler) snapshotLocked() domain.DailyStepRecord {
	return domain.DailyStepRecord{
		UserID:     r.userID,
		Day:        r.day,
		Steps:      r.steps,
		DistanceKm: r.distanceKm,
		Calories:   r.calories,
		TargetHit:  r.goal > 0 && r.steps >= r.goal,
		UpdatedAt:  r.lastUpdate,
	}
}
