// Package queue persists pending remote writes in device-local SQLite so a
// tracker that loses connectivity can replay them later in insertion order.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"example.com/steps/internal/domain"
	"example.com/steps/internal/reconcile"
)

var _ reconcile.WriteQueue = (*SQLite)(nil)

// SQLite is an append-only offline queue backed by a local SQLite file.
type SQLite struct {
	db *sql.DB
}

// Open creates or opens the queue database at path. ":memory:" works for tests.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("queue: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue: pinging database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue: setting WAL mode: %w", err)
	}

	const schema = `
        CREATE TABLE IF NOT EXISTS sync_queue (
            id           INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id      TEXT NOT NULL,
            day          TEXT NOT NULL,
            steps        INTEGER NOT NULL,
            distance_km  REAL NOT NULL,
            calories     INTEGER NOT NULL,
            target_hit   INTEGER NOT NULL,
            closing      INTEGER NOT NULL,
            queued_at_ms INTEGER NOT NULL
        );`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue: creating schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close releases the underlying database.
func (q *SQLite) Close() error {
	return q.db.Close()
}

// Enqueue appends a pending write.
func (q *SQLite) Enqueue(ctx context.Context, entry reconcile.QueueEntry) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO sync_queue (user_id, day, steps, distance_km, calories, target_hit, closing, queued_at_ms)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.UserID,
		entry.Day.Format(domain.DayFormat),
		entry.Steps,
		entry.DistanceKm,
		entry.Calories,
		boolToInt(entry.TargetHit),
		boolToInt(entry.Closing),
		entry.QueuedAtMs,
	)
	if err != nil {
		return fmt.Errorf("queue: enqueue: %w", err)
	}
	return nil
}

// Replay applies fn to queued entries oldest-first, deleting each entry after
// it succeeds. The first failure stops the replay with the remainder intact,
// so every entry is delivered at most once per replay pass and never dropped.
func (q *SQLite) Replay(ctx context.Context, fn func(context.Context, reconcile.QueueEntry) error) (int, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, day, steps, distance_km, calories, target_hit, closing, queued_at_ms
           FROM sync_queue ORDER BY id`)
	if err != nil {
		return 0, fmt.Errorf("queue: replay select: %w", err)
	}

	type pending struct {
		id    int64
		entry reconcile.QueueEntry
	}
	var batch []pending
	for rows.Next() {
		var (
			p         pending
			day       string
			targetHit int
			closing   int
		)
		if err := rows.Scan(&p.id, &p.entry.UserID, &day, &p.entry.Steps, &p.entry.DistanceKm, &p.entry.Calories, &targetHit, &closing, &p.entry.QueuedAtMs); err != nil {
			rows.Close()
			return 0, fmt.Errorf("queue: replay scan: %w", err)
		}
		parsed, err := time.Parse(domain.DayFormat, day)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("queue: corrupt day %q: %w", day, err)
		}
		p.entry.Day = parsed
		p.entry.TargetHit = targetHit != 0
		p.entry.Closing = closing != 0
		batch = append(batch, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("queue: replay rows: %w", err)
	}
	rows.Close()

	replayed := 0
	for _, p := range batch {
		if err := fn(ctx, p.entry); err != nil {
			return replayed, err
		}
		if _, err := q.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, p.id); err != nil {
			return replayed, fmt.Errorf("queue: delete replayed entry: %w", err)
		}
		replayed++
	}
	return replayed, nil
}

// Depth reports the number of pending entries.
func (q *SQLite) Depth(ctx context.Context) (int, error) {
	var count int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&count); err != nil {
		return 0, fmt.Errorf("queue: depth: %w", err)
	}
	return count, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
