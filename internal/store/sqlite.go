// Package store persists the history of update attempts. The installed
// version itself is never stored here; the live install manifest is the
// source of truth for that.
package store

import (
	"database/sql"
	"time"

	_ "github.com/glebarez/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Attempt outcomes.
const (
	OutcomeApplied   = "applied"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeNoUpdate  = "no-update"
)

// AttemptRecord is one row of update-attempt history.
type AttemptRecord struct {
	ID          string
	StartedAt   time.Time
	FromVersion string
	ToVersion   string
	Outcome     string
	Detail      string
}

// Open opens the SQLite database and creates tables if needed
func Open(dbPath string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, err
	}

	db := &DB{DB: sqlDB}

	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// createTables creates the necessary database tables
func (db *DB) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		from_version TEXT NOT NULL,
		to_version TEXT NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_started_at ON attempts(started_at DESC);
	`

	_, err := db.Exec(query)
	return err
}

// SaveAttempt records or updates one update attempt.
func (db *DB) SaveAttempt(record AttemptRecord) error {
	query := `
	INSERT INTO attempts (id, started_at, from_version, to_version, outcome, detail)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		from_version = excluded.from_version,
		to_version = excluded.to_version,
		outcome = excluded.outcome,
		detail = excluded.detail
	`

	_, err := db.Exec(
		query,
		record.ID,
		record.StartedAt.Unix(),
		record.FromVersion,
		record.ToVersion,
		record.Outcome,
		record.Detail,
	)

	return err
}

// GetRecentAttempts retrieves recent update attempts, newest first.
func (db *DB) GetRecentAttempts(limit int) ([]AttemptRecord, error) {
	query := `
	SELECT id, started_at, from_version, to_version, outcome, detail
	FROM attempts
	ORDER BY started_at DESC
	LIMIT ?
	`

	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []AttemptRecord
	for rows.Next() {
		var r AttemptRecord
		var ts int64
		var detail sql.NullString
		if err := rows.Scan(&r.ID, &ts, &r.FromVersion, &r.ToVersion, &r.Outcome, &detail); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(ts, 0)
		r.Detail = detail.String
		records = append(records, r)
	}

	return records, rows.Err()
}
