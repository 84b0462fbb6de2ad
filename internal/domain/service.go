// Package domain defines the business logic for the steps service.
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRecordNotFound is returned when a daily record cannot be located.
	ErrRecordNotFound = errors.New("daily step record not found")
	// ErrInvalidGoal rejects non-positive daily step targets.
	ErrInvalidGoal = errors.New("daily step goal must be positive")
)

// Cursor models the history pagination token. One record exists per day, so
// paging by day alone is stable.
type Cursor struct {
	Day time.Time
}

// RecordRepository captures persistence operations for daily records, goals,
// and account erasure.
type RecordRepository interface {
	// Upsert writes the record keyed by (UserID, Day) and returns the stored
	// row after monotonic merging. closing marks a rollover flush that seals
	// the day.
	Upsert(ctx context.Context, rec DailyStepRecord, closing bool) (DailyStepRecord, error)
	Get(ctx context.Context, userID string, day time.Time) (*DailyStepRecord, error)
	History(ctx context.Context, userID string, cursor *Cursor, limit int) ([]DailyStepRecord, *Cursor, error)
	Leaderboard(ctx context.Context, day time.Time, limit int) ([]LeaderboardEntry, error)
	RecentDays(ctx context.Context, userID string, limit int) ([]DailyStepRecord, error)
	GetGoal(ctx context.Context, userID string) (int64, error)
	SetGoal(ctx context.Context, userID string, target int64) error
	EraseUser(ctx context.Context, userID string) error
}

// Service orchestrates step-record workflows for the HTTP API.
type Service struct {
	repo        RecordRepository
	defaultGoal int64
	loc         *time.Location
}

// NewService constructs a Service. defaultGoal applies to users who never
// set an explicit target.
func NewService(repo RecordRepository, defaultGoal int64, loc *time.Location) *Service {
	if defaultGoal <= 0 {
		defaultGoal = 10000
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{repo: repo, defaultGoal: defaultGoal, loc: loc}
}

// Today returns the record for the given day, or a zeroed record when the
// user has not moved yet. A missing row is not an error: the UI falls back
// to zeros rather than a blank state.
func (s *Service) Today(ctx context.Context, userID string, day time.Time) (DailyStepRecord, error) {
	day = Midnight(day, s.loc)
	rec, err := s.repo.Get(ctx, userID, day)
	if err != nil {
		return DailyStepRecord{}, err
	}
	if rec == nil {
		return DailyStepRecord{UserID: userID, Day: day}, nil
	}
	return *rec, nil
}

// Report upserts client-computed daily totals. TargetHit is derived
// server-side from the user's goal so clients cannot fake it.
func (s *Service) Report(ctx context.Context, rec DailyStepRecord) (DailyStepRecord, error) {
	if rec.Steps < 0 || rec.DistanceKm < 0 || rec.Calories < 0 {
		return DailyStepRecord{}, errors.New("negative totals rejected")
	}
	goal, err := s.Goal(ctx, rec.UserID)
	if err != nil {
		return DailyStepRecord{}, err
	}
	rec.Day = Midnight(rec.Day, s.loc)
	rec.TargetHit = rec.Steps >= goal
	return s.repo.Upsert(ctx, rec, false)
}

// ParseDay interprets a YYYY-MM-DD value in the service timezone.
func (s *Service) ParseDay(value string) (time.Time, error) {
	return time.ParseInLocation(DayFormat, value, s.loc)
}

// History lists records newest-first with cursor pagination.
func (s *Service) History(ctx context.Context, userID string, cursor *Cursor, limit int) ([]DailyStepRecord, *Cursor, error) {
	return s.repo.History(ctx, userID, cursor, limit)
}

// Goal returns the user's daily target, falling back to the service default.
func (s *Service) Goal(ctx context.Context, userID string) (int64, error) {
	goal, err := s.repo.GetGoal(ctx, userID)
	if err != nil {
		return 0, err
	}
	if goal <= 0 {
		return s.defaultGoal, nil
	}
	return goal, nil
}

// SetGoal stores a new daily target for the user.
func (s *Service) SetGoal(ctx context.Context, userID string, target int64) error {
	if target <= 0 {
		return ErrInvalidGoal
	}
	return s.repo.SetGoal(ctx, userID, target)
}

// Leaderboard returns the top records for a day, ranked by steps.
func (s *Service) Leaderboard(ctx context.Context, day time.Time, limit int) ([]LeaderboardEntry, error) {
	return s.repo.Leaderboard(ctx, Midnight(day, s.loc), limit)
}

// streakWindowDays bounds how far back streak computation looks.
const streakWindowDays = 366

// Streak computes the user's current and longest target-hit streaks from
// recent records. Today counts toward the current streak only once hit;
// an unhit today does not break a streak that ran through yesterday.
func (s *Service) Streak(ctx context.Context, userID string, now time.Time) (StreakSummary, error) {
	records, err := s.repo.RecentDays(ctx, userID, streakWindowDays)
	if err != nil {
		return StreakSummary{}, err
	}

	hit := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.TargetHit {
			hit[rec.DayString()] = true
		}
	}

	today := Midnight(now, s.loc)
	summary := StreakSummary{}

	cursor := today
	if !hit[cursor.Format(DayFormat)] {
		// Today is still in progress; a streak through yesterday survives.
		cursor = cursor.AddDate(0, 0, -1)
	}
	for hit[cursor.Format(DayFormat)] {
		summary.Current++
		cursor = cursor.AddDate(0, 0, -1)
	}

	run := 0
	for d := 0; d < streakWindowDays; d++ {
		day := today.AddDate(0, 0, -d)
		if hit[day.Format(DayFormat)] {
			run++
			if run > summary.Longest {
				summary.Longest = run
			}
		} else {
			run = 0
		}
	}

	return summary, nil
}

// EraseUser removes every record belonging to the user. This is the only
// path that deletes daily records.
func (s *Service) EraseUser(ctx context.Context, userID string) error {
	return s.repo.EraseUser(ctx, userID)
}
