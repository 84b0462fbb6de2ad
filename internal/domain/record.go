package domain

import "time"

// DayFormat is the canonical wire representation of a local calendar day.
const DayFormat = "2006-01-02"

// DailyStepRecord is the per-(user, day) aggregate stored in PostgreSQL.
// Steps never regresses within a day; the store enforces this with a
// GREATEST guard so concurrent writers remain order-independent.
type DailyStepRecord struct {
	UserID     string
	Day        time.Time // local calendar day, midnight
	Steps      int64
	DistanceKm float64
	Calories   int64
	TargetHit  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DayString renders the record day in DayFormat.
func (r DailyStepRecord) DayString() string {
	return r.Day.Format(DayFormat)
}

// LeaderboardEntry is one row of the daily leaderboard.
type LeaderboardEntry struct {
	Rank       int
	UserID     string
	Steps      int64
	DistanceKm float64
	TargetHit  bool
}

// StreakSummary describes consecutive target-hit days for a user.
type StreakSummary struct {
	Current int // consecutive hit days ending today (or yesterday if today is still open)
	Longest int // longest run inside the inspected window
}

// Midnight truncates t to the start of its calendar day in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
