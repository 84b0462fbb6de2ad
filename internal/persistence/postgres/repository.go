// Package postgres provides Postgres-backed persistence for daily step
// records, goals, and outbox events.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/steps/internal/domain"
	"example.com/steps/internal/events"
	"example.com/steps/internal/observability"
)

// Repository implements domain.RecordRepository on top of pgx.
type Repository struct {
	pool        *pgxpool.Pool
	defaultGoal int64
}

// NewRepository constructs a Repository. defaultGoal is used for the
// goal-reached event payload when the user never set an explicit target.
func NewRepository(pool *pgxpool.Pool, defaultGoal int64) *Repository {
	if defaultGoal <= 0 {
		defaultGoal = 10000
	}
	return &Repository{pool: pool, defaultGoal: defaultGoal}
}

var _ domain.RecordRepository = (*Repository)(nil)

const recordColumns = `user_id, day, steps, distance_km, calories, target_hit, created_at, updated_at`

// Upsert merges the record into daily_steps with GREATEST guards so a stale
// writer can never regress the totals, and records outbox events inside the
// same transaction: goal_reached on the first target-hit write of the day,
// day_closed when a rollover flush seals the day.
func (r *Repository) Upsert(ctx context.Context, rec domain.DailyStepRecord, closing bool) (domain.DailyStepRecord, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.DailyStepRecord{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	var prevHit bool
	err = tx.QueryRow(ctx,
		`SELECT target_hit FROM daily_steps WHERE user_id=$1 AND day=$2 FOR UPDATE`,
		rec.UserID, rec.Day,
	).Scan(&prevHit)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.DailyStepRecord{}, err
	}
	err = nil

	const upsert = `INSERT INTO daily_steps (user_id, day, steps, distance_km, calories, target_hit, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())
        ON CONFLICT (user_id, day) DO UPDATE SET
            steps       = GREATEST(daily_steps.steps, EXCLUDED.steps),
            distance_km = GREATEST(daily_steps.distance_km, EXCLUDED.distance_km),
            calories    = GREATEST(daily_steps.calories, EXCLUDED.calories),
            target_hit  = daily_steps.target_hit OR EXCLUDED.target_hit,
            updated_at  = NOW()
        RETURNING ` + recordColumns

	var stored domain.DailyStepRecord
	row := tx.QueryRow(ctx, upsert, rec.UserID, rec.Day, rec.Steps, rec.DistanceKm, rec.Calories, rec.TargetHit)
	if err = scanRecord(row, &stored); err != nil {
		return domain.DailyStepRecord{}, err
	}

	now := time.Now().UTC()

	if stored.TargetHit && !prevHit {
		goal, goalErr := goalInTx(ctx, tx, rec.UserID, r.defaultGoal)
		if goalErr != nil {
			err = goalErr
			return domain.DailyStepRecord{}, err
		}
		if err = insertOutbox(ctx, tx, stored, "steps.goal_reached", events.GoalReached{
			UserID:     stored.UserID,
			Day:        stored.DayString(),
			Steps:      stored.Steps,
			Target:     goal,
			OccurredAt: now,
		}); err != nil {
			return domain.DailyStepRecord{}, err
		}
	}

	if closing {
		if err = insertOutbox(ctx, tx, stored, "steps.day_closed", events.DayClosed{
			UserID:     stored.UserID,
			Day:        stored.DayString(),
			Steps:      stored.Steps,
			DistanceKm: stored.DistanceKm,
			Calories:   stored.Calories,
			TargetHit:  stored.TargetHit,
			OccurredAt: now,
		}); err != nil {
			return domain.DailyStepRecord{}, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return domain.DailyStepRecord{}, err
	}
	observability.RecordDailyPersisted(stored.UpdatedAt)
	if closing {
		observability.RecordDayClosed(stored.UpdatedAt)
	}
	return stored, nil
}

func goalInTx(ctx context.Context, tx pgx.Tx, userID string, fallback int64) (int64, error) {
	var goal int64
	err := tx.QueryRow(ctx, `SELECT target_steps FROM step_goals WHERE user_id=$1`, userID).Scan(&goal)
	if errors.Is(err, pgx.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return 0, err
	}
	return goal, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, rec domain.DailyStepRecord, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	aggregateID := fmt.Sprintf("%s:%s", rec.UserID, rec.DayString())
	dedupeKey := fmt.Sprintf("%s:%s", aggregateID, eventType)

	// Dedupe key makes replays (offline-queue or DLQ driven) idempotent: a
	// day produces at most one event of each type.
	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		rec.UserID,
		"daily_steps",
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		rec.UserID,
		body,
		dedupeKey,
	)
	return err
}

// Get retrieves a record by (user, day). Returns (nil, nil) when absent.
func (r *Repository) Get(ctx context.Context, userID string, day time.Time) (*domain.DailyStepRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM daily_steps WHERE user_id=$1 AND day=$2`,
		userID, day,
	)
	var rec domain.DailyStepRecord
	if err := scanRecord(row, &rec); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// History returns records newest-first with day-based cursor pagination.
func (r *Repository) History(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.DailyStepRecord, *domain.Cursor, error) {
	args := []interface{}{userID, limit}
	query := `SELECT ` + recordColumns + ` FROM daily_steps WHERE user_id=$1`
	if cursor != nil {
		query += ` AND day < $3`
		args = append(args, cursor.Day)
	}
	query += ` ORDER BY day DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.DailyStepRecord, 0, limit)
	for rows.Next() {
		var rec domain.DailyStepRecord
		if err := scanRecord(rows, &rec); err != nil {
			return nil, nil, err
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		next = &domain.Cursor{Day: results[len(results)-1].Day}
	}
	return results, next, nil
}

// Leaderboard returns the top records for a day ranked by steps.
func (r *Repository) Leaderboard(ctx context.Context, day time.Time, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, steps, distance_km, target_hit
           FROM daily_steps WHERE day=$1
          ORDER BY steps DESC, user_id
          LIMIT $2`,
		day, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LeaderboardEntry, 0, limit)
	for rows.Next() {
		var entry domain.LeaderboardEntry
		if err := rows.Scan(&entry.UserID, &entry.Steps, &entry.DistanceKm, &entry.TargetHit); err != nil {
			return nil, err
		}
		entry.Rank = len(entries) + 1
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// RecentDays returns up to limit most recent records for streak computation.
func (r *Repository) RecentDays(ctx context.Context, userID string, limit int) ([]domain.DailyStepRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM daily_steps WHERE user_id=$1 ORDER BY day DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.DailyStepRecord, 0, limit)
	for rows.Next() {
		var rec domain.DailyStepRecord
		if err := scanRecord(rows, &rec); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// GetGoal returns the user's target, or 0 when unset.
func (r *Repository) GetGoal(ctx context.Context, userID string) (int64, error) {
	var goal int64
	err := r.pool.QueryRow(ctx, `SELECT target_steps FROM step_goals WHERE user_id=$1`, userID).Scan(&goal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return goal, nil
}

// SetGoal upserts the user's daily target.
func (r *Repository) SetGoal(ctx context.Context, userID string, target int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO step_goals (user_id, target_steps, updated_at) VALUES ($1,$2,NOW())
         ON CONFLICT (user_id) DO UPDATE SET target_steps = EXCLUDED.target_steps, updated_at = NOW()`,
		userID, target,
	)
	return err
}

// EraseUser deletes all per-user data in one transaction. Account erasure is
// the only path that removes daily records.
func (r *Repository) EraseUser(ctx context.Context, userID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, stmt := range []string{
		`DELETE FROM daily_steps WHERE user_id=$1`,
		`DELETE FROM step_goals WHERE user_id=$1`,
		`DELETE FROM outbox WHERE user_id=$1`,
		`DELETE FROM outbox_dlq WHERE user_id=$1`,
	} {
		if _, err := tx.Exec(ctx, stmt, userID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner, rec *domain.DailyStepRecord) error {
	return row.Scan(&rec.UserID, &rec.Day, &rec.Steps, &rec.DistanceKm, &rec.Calories, &rec.TargetHit, &rec.CreatedAt, &rec.UpdatedAt)
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	"steps.goal_reached": {
		Topic:         "step_events",
		SchemaSubject: "step_events-value",
	},
	"steps.day_closed": {
		Topic:         "step_events",
		SchemaSubject: "step_events-value",
	},
}
