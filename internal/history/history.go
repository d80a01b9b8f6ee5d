// Package history keeps an append-only SQLite log of valve transitions.
// It is an audit trail; the controller never reads state back from it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sweeney/greenhouse-controller/internal/logic"
)

const driverName = "sqlite"

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02 15:04:05.000"

const schemaValveEvents = `
CREATE TABLE IF NOT EXISTS valve_events (
    id TEXT PRIMARY KEY,
    occurred_at TEXT NOT NULL,
    event TEXT NOT NULL,
    reason TEXT,
    moisture_pct REAL,
    open_for_ms INTEGER NOT NULL DEFAULT 0
);
`

const indexValveEvents = `
CREATE INDEX IF NOT EXISTS valve_events_occurred_at ON valve_events (occurred_at);
`

// Recorder appends valve events.
type Recorder interface {
	Record(ctx context.Context, e logic.ValveEvent) error
}

// Entry is one stored valve event.
type Entry struct {
	ID          string
	OccurredAt  time.Time
	Event       string
	Reason      string
	MoisturePct *float64
	OpenForMs   int64
}

// Store is a Recorder backed by database/sql.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already initialised database.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Open opens or creates the SQLite file at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// One writer: the control loop.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return NewStore(db), nil
}

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range []string{schemaValveEvents, indexValveEvents} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}

// Record inserts e. A missing ID or timestamp is filled in.
func (s *Store) Record(ctx context.Context, e logic.ValveEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	var reason, moisture any
	if r := e.Reason(); r != "" {
		reason = r
	}
	if !math.IsNaN(e.MoisturePct) && !math.IsInf(e.MoisturePct, 0) {
		moisture = e.MoisturePct
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO valve_events (id, occurred_at, event, reason, moisture_pct, open_for_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.Timestamp.UTC().Format(timeLayout),
		e.Kind(),
		reason,
		moisture,
		e.OpenFor.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert valve event %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, occurred_at, event, reason, moisture_pct, open_for_ms
		FROM valve_events
		ORDER BY occurred_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query valve events: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e        Entry
			at       string
			reason   sql.NullString
			moisture sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &at, &e.Event, &reason, &moisture, &e.OpenForMs); err != nil {
			return nil, fmt.Errorf("scan valve event: %w", err)
		}
		if e.OccurredAt, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("parse occurred_at %q: %w", at, err)
		}
		e.Reason = reason.String
		if moisture.Valid {
			v := moisture.Float64
			e.MoisturePct = &v
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
