package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	records map[string]DailyStepRecord
	goals   map[string]int64
	upserts []DailyStepRecord
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		records: make(map[string]DailyStepRecord),
		goals:   make(map[string]int64),
	}
}

func (s *stubRepo) key(userID string, day time.Time) string {
	return userID + "|" + day.Format(DayFormat)
}

func (s *stubRepo) Upsert(ctx context.Context, rec DailyStepRecord, closing bool) (DailyStepRecord, error) {
	s.upserts = append(s.upserts, rec)
	s.records[s.key(rec.UserID, rec.Day)] = rec
	return rec, nil
}

func (s *stubRepo) Get(ctx context.Context, userID string, day time.Time) (*DailyStepRecord, error) {
	rec, ok := s.records[s.key(userID, day)]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (s *stubRepo) History(ctx context.Context, userID string, cursor *Cursor, limit int) ([]DailyStepRecord, *Cursor, error) {
	return nil, nil, nil
}

func (s *stubRepo) Leaderboard(ctx context.Context, day time.Time, limit int) ([]LeaderboardEntry, error) {
	return nil, nil
}

func (s *stubRepo) RecentDays(ctx context.Context, userID string, limit int) ([]DailyStepRecord, error) {
	var out []DailyStepRecord
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *stubRepo) GetGoal(ctx context.Context, userID string) (int64, error) {
	return s.goals[userID], nil
}

func (s *stubRepo) SetGoal(ctx context.Context, userID string, target int64) error {
	s.goals[userID] = target
	return nil
}

func (s *stubRepo) EraseUser(ctx context.Context, userID string) error {
	return nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func hitDay(repo *stubRepo, userID string, on time.Time) {
	repo.records[repo.key(userID, on)] = DailyStepRecord{
		UserID:    userID,
		Day:       on,
		Steps:     12000,
		TargetHit: true,
	}
}

func TestTodayFallsBackToZeros(t *testing.T) {
	svc := NewService(newStubRepo(), 10000, time.UTC)

	rec, err := svc.Today(context.Background(), "alice", day(2026, time.March, 4).Add(9*time.Hour))
	require.NoError(t, err)
	require.Equal(t, "alice", rec.UserID)
	require.Zero(t, rec.Steps)
	require.Equal(t, "2026-03-04", rec.DayString())
}

func TestReportDerivesTargetHitFromGoal(t *testing.T) {
	repo := newStubRepo()
	repo.goals["alice"] = 1000
	svc := NewService(repo, 10000, time.UTC)

	stored, err := svc.Report(context.Background(), DailyStepRecord{
		UserID: "alice",
		Day:    day(2026, time.March, 4),
		Steps:  1010,
	})
	require.NoError(t, err)
	require.True(t, stored.TargetHit)

	stored, err = svc.Report(context.Background(), DailyStepRecord{
		UserID: "alice",
		Day:    day(2026, time.March, 5),
		Steps:  990,
		// Clients cannot claim the goal; the service recomputes it.
		TargetHit: true,
	})
	require.NoError(t, err)
	require.False(t, stored.TargetHit)
}

func TestGoalDefaultsWhenUnset(t *testing.T) {
	svc := NewService(newStubRepo(), 10000, time.UTC)

	goal, err := svc.Goal(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, int64(10000), goal)
}

func TestSetGoalRejectsNonPositive(t *testing.T) {
	svc := NewService(newStubRepo(), 10000, time.UTC)

	require.ErrorIs(t, svc.SetGoal(context.Background(), "alice", 0), ErrInvalidGoal)
	require.ErrorIs(t, svc.SetGoal(context.Background(), "alice", -5), ErrInvalidGoal)
	require.NoError(t, svc.SetGoal(context.Background(), "alice", 8000))
}

func TestStreakCountsBackFromToday(t *testing.T) {
	repo := newStubRepo()
	today := day(2026, time.March, 10)
	for d := 0; d < 4; d++ {
		hitDay(repo, "alice", today.AddDate(0, 0, -d))
	}
	svc := NewService(repo, 10000, time.UTC)

	summary, err := svc.Streak(context.Background(), "alice", today.Add(20*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 4, summary.Current)
	require.Equal(t, 4, summary.Longest)
}

func TestStreakSurvivesUnfinishedToday(t *testing.T) {
	repo := newStubRepo()
	today := day(2026, time.March, 10)
	// Yesterday and two days before are hit; today is still in progress.
	for d := 1; d <= 3; d++ {
		hitDay(repo, "alice", today.AddDate(0, 0, -d))
	}
	svc := NewService(repo, 10000, time.UTC)

	summary, err := svc.Streak(context.Background(), "alice", today.Add(9*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 3, summary.Current)
}

func TestStreakLongestSpansGaps(t *testing.T) {
	repo := newStubRepo()
	today := day(2026, time.March, 20)
	// A five-day run further back, then a gap, then two recent days.
	for d := 10; d <= 14; d++ {
		hitDay(repo, "alice", today.AddDate(0, 0, -d))
	}
	hitDay(repo, "alice", today.AddDate(0, 0, -1))
	hitDay(repo, "alice", today)
	svc := NewService(repo, 10000, time.UTC)

	summary, err := svc.Streak(context.Background(), "alice", today.Add(22*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, summary.Current)
	require.Equal(t, 5, summary.Longest)
}

func TestStreakZeroWhenNothingHit(t *testing.T) {
	svc := NewService(newStubRepo(), 10000, time.UTC)

	summary, err := svc.Streak(context.Background(), "alice", day(2026, time.March, 10))
	require.NoError(t, err)
	require.Zero(t, summary.Current)
	require.Zero(t, summary.Longest)
}
