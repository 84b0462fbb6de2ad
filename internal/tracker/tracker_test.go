package tracker

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/steps/internal/domain"
	"example.com/steps/internal/reconcile"
	"example.com/steps/internal/sensor"
)

type memStore struct {
	mu      sync.Mutex
	records map[string]domain.DailyStepRecord
	upserts int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]domain.DailyStepRecord)}
}

func (s *memStore) key(userID string, day time.Time) string {
	return userID + "|" + day.Format(domain.DayFormat)
}

func (s *memStore) Upsert(ctx context.Context, rec domain.DailyStepRecord, closing bool) (domain.DailyStepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	key := s.key(rec.UserID, rec.Day)
	if existing, ok := s.records[key]; ok && existing.Steps > rec.Steps {
		rec.Steps = existing.Steps
	}
	s.records[key] = rec
	return rec, nil
}

func (s *memStore) Get(ctx context.Context, userID string, day time.Time) (*domain.DailyStepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[s.key(userID, day)]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

type fixedGoals struct {
	goals map[string]int64
}

func (g fixedGoals) GetGoal(ctx context.Context, userID string) (int64, error) {
	return g.goals[userID], nil
}

func readingMessage(t *testing.T, userID string, cumulative int64) sensor.Message {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"device_id":        "dev-1",
		"user_id":          userID,
		"cumulative_steps": cumulative,
		"distance_m":       0,
	})
	require.NoError(t, err)
	return sensor.Message{
		Topic:     "step_sensor_readings",
		EventType: sensor.EventTypeReading,
		UserID:    userID,
		Payload:   payload,
	}
}

func rebootMessage(t *testing.T, userID string) sensor.Message {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"device_id": "dev-1",
		"user_id":   userID,
	})
	require.NoError(t, err)
	return sensor.Message{
		Topic:     "step_sensor_readings",
		EventType: sensor.EventTypeReboot,
		UserID:    userID,
		Payload:   payload,
	}
}

func testTracker(store *memStore, goals GoalSource) *Tracker {
	now := time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC)
	opts := reconcile.Options{
		Location: time.UTC,
		Clock:    func() time.Time { return now },
		Logger:   log.New(discard{}, "", 0),
	}
	return New(store, nil, nil, goals, 10000, opts)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestHandleRoutesReadingsPerUser(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tr := testTracker(store, nil)

	require.NoError(t, tr.Handle(ctx, readingMessage(t, "alice", 1000)))
	require.NoError(t, tr.Handle(ctx, readingMessage(t, "alice", 1250)))
	require.NoError(t, tr.Handle(ctx, readingMessage(t, "bob", 500)))
	require.NoError(t, tr.Handle(ctx, readingMessage(t, "bob", 560)))

	require.NoError(t, tr.SyncAll(ctx, true))

	day := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)
	alice, err := store.Get(ctx, "alice", day)
	require.NoError(t, err)
	require.NotNil(t, alice)
	require.Equal(t, int64(250), alice.Steps)

	bob, err := store.Get(ctx, "bob", day)
	require.NoError(t, err)
	require.NotNil(t, bob)
	require.Equal(t, int64(60), bob.Steps)
}

func TestHandleRebootPreservesTotals(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tr := testTracker(store, nil)

	require.NoError(t, tr.Handle(ctx, readingMessage(t, "alice", 4000)))
	require.NoError(t, tr.Handle(ctx, readingMessage(t, "alice", 4300)))
	require.NoError(t, tr.Handle(ctx, rebootMessage(t, "alice")))
	require.NoError(t, tr.Handle(ctx, readingMessage(t, "alice", 10)))
	require.NoError(t, tr.Handle(ctx, readingMessage(t, "alice", 110)))

	require.NoError(t, tr.SyncAll(ctx, true))

	day := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)
	rec, err := store.Get(ctx, "alice", day)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, int64(400), rec.Steps)
}

func TestGoalSourceDrivesTargetHit(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	day := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)
	store.records["alice|2026-03-04"] = domain.DailyStepRecord{
		UserID: "alice",
		Day:    day,
		Steps:  950,
	}
	tr := testTracker(store, fixedGoals{goals: map[string]int64{"alice": 1000}})

	require.NoError(t, tr.Handle(ctx, readingMessage(t, "alice", 200)))
	require.NoError(t, tr.Handle(ctx, readingMessage(t, "alice", 260)))
	require.NoError(t, tr.SyncAll(ctx, true))

	rec, err := store.Get(ctx, "alice", day)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, int64(1010), rec.Steps)
	require.True(t, rec.TargetHit)
}

func TestHandleRejectsUnknownEventType(t *testing.T) {
	tr := testTracker(newMemStore(), nil)
	err := tr.Handle(context.Background(), sensor.Message{EventType: "bogus"})
	require.Error(t, err)
}
