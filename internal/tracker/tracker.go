// Package tracker wires sensor events to per-user reconcilers and keeps the
// remote store eventually consistent with them.
package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"

	"example.com/steps/internal/reconcile"
	"example.com/steps/internal/sensor"
)

// GoalSource reads a user's daily step target. The tracker reads it once per
// user and caches it inside the reconciler.
type GoalSource interface {
	GetGoal(ctx context.Context, userID string) (int64, error)
}

// Tracker owns one reconciler per user and implements sensor.Handler.
type Tracker struct {
	store   reconcile.RecordStore
	health  reconcile.HealthSource
	queue   reconcile.WriteQueue
	goals   GoalSource
	defGoal int64
	opts    reconcile.Options
	logger  *log.Logger

	mu          sync.Mutex
	reconcilers map[string]*reconcile.Reconciler
}

// New constructs a Tracker. health and queue may be nil.
func New(store reconcile.RecordStore, health reconcile.HealthSource, queue reconcile.WriteQueue, goals GoalSource, defaultGoal int64, opts reconcile.Options) *Tracker {
	if defaultGoal <= 0 {
		defaultGoal = 10000
	}
	return &Tracker{
		store:       store,
		health:      health,
		queue:       queue,
		goals:       goals,
		defGoal:     defaultGoal,
		opts:        opts,
		logger:      log.New(log.Writer(), "[tracker] ", log.LstdFlags),
		reconcilers: make(map[string]*reconcile.Reconciler),
	}
}

var _ sensor.Handler = (*Tracker)(nil)

// Handle dispatches one decoded sensor message. Reconciliation failures
// degrade internally; only unroutable messages return an error.
func (t *Tracker) Handle(ctx context.Context, msg sensor.Message) error {
	switch msg.EventType {
	case sensor.EventTypeReading:
		reading, err := msg.Reading()
		if err != nil {
			return fmt.Errorf("decode reading: %w", err)
		}
		if reading.UserID == "" {
			return fmt.Errorf("reading without user id (device=%s)", reading.DeviceID)
		}
		rec := t.reconcilerFor(ctx, reading.UserID)
		rec.Ingest(ctx, reading.CumulativeSteps, reading.DistanceM)
		return nil

	case sensor.EventTypeReboot:
		reboot, err := msg.Reboot()
		if err != nil {
			return fmt.Errorf("decode reboot: %w", err)
		}
		if reboot.UserID == "" {
			return fmt.Errorf("reboot without user id (device=%s)", reboot.DeviceID)
		}
		t.reconcilerFor(ctx, reboot.UserID).NoteReboot()
		return nil

	default:
		return fmt.Errorf("unknown event type: %s", msg.EventType)
	}
}

// reconcilerFor returns the user's reconciler, creating and seeding it on
// first sight. Seeding reads the goal once and absorbs any already-synced
// totals for the day.
func (t *Tracker) reconcilerFor(ctx context.Context, userID string) *reconcile.Reconciler {
	t.mu.Lock()
	if rec, ok := t.reconcilers[userID]; ok {
		t.mu.Unlock()
		return rec
	}
	t.mu.Unlock()

	goal := t.defGoal
	if t.goals != nil {
		if g, err := t.goals.GetGoal(ctx, userID); err != nil {
			t.logger.Printf("goal read failed (user=%s), using default %d: %v", userID, goal, err)
		} else if g > 0 {
			goal = g
		}
	}

	rec := reconcile.New(userID, goal, t.store, t.health, t.queue, t.opts)
	rec.ReconcileOnResume(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.reconcilers[userID]; ok {
		return existing
	}
	t.reconcilers[userID] = rec
	return rec
}

// SyncAll flushes every reconciler; the periodic task calls it unforced and
// shutdown calls it forced. The rollover check inside each Sync keeps quiet
// devices rolling over at midnight.
func (t *Tracker) SyncAll(ctx context.Context, force bool) error {
	for _, rec := range t.snapshotReconcilers() {
		rec.Sync(ctx, force)
	}
	return nil
}

// ResumeAll re-reads authoritative sources for every tracked user, used when
// the process returns from a suspension.
func (t *Tracker) ResumeAll(ctx context.Context) {
	for _, rec := range t.snapshotReconcilers() {
		rec.ReconcileOnResume(ctx)
	}
}

// Shutdown force-flushes all reconcilers; the backgrounding analogue.
func (t *Tracker) Shutdown(ctx context.Context) {
	if err := t.SyncAll(ctx, true); err != nil {
		t.logger.Printf("shutdown flush: %v", err)
	}
}

func (t *Tracker) snapshotReconcilers() []*reconcile.Reconciler {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*reconcile.Reconciler, 0, len(t.reconcilers))
	for _, rec := range t.reconcilers {
		out = append(out, rec)
	}
	return out
}
