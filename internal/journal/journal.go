package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultPath is the default run-history database location.
const DefaultPath = "/var/lib/nvme-migrate/history.db"

// DB records migration runs and their step transitions. It is write-only
// history for the operator: sessions never read previous state back, so a
// missing or broken journal cannot change migration behavior.
type DB struct {
	conn *sql.DB
	path string
}

// SessionRecord is one migration run.
type SessionRecord struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	BootMode   string     `json:"boot_mode"`
	SourceDisk string     `json:"source_disk"`
	DestDisk   string     `json:"dest_disk"`
	Outcome    string     `json:"outcome"`
	Failure    string     `json:"failure,omitempty"`
}

// Event is one step transition inside a run.
type Event struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Step      string    `json:"step"`
	Detail    string    `json:"detail,omitempty"`
}

// New opens or creates the journal database at the given path.
func New(path string) (*DB, error) {
	if path == "" {
		path = DefaultPath
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to configure journal: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func (d *DB) Close() error { return d.conn.Close() }

func (d *DB) Path() string { return d.path }

const migrationV1 = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	boot_mode TEXT NOT NULL,
	source_disk TEXT NOT NULL,
	dest_disk TEXT NOT NULL,
	outcome TEXT NOT NULL DEFAULT 'running',
	failure TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	ts TIMESTAMP NOT NULL,
	step TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
`

// migrate runs the schema migrations.
func (d *DB) migrate() error {
	_, err := d.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	var version int
	if err := d.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return err
	}

	migrations := []string{migrationV1}
	for i, migration := range migrations {
		v := i + 1
		if v <= version {
			continue
		}
		tx, err := d.conn.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migration); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", v); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// BeginSession records the start of a run and returns its id.
func (d *DB) BeginSession(bootMode, sourceDisk, destDisk string) (string, error) {
	id := uuid.NewString()
	_, err := d.conn.Exec(
		"INSERT INTO sessions (id, started_at, boot_mode, source_disk, dest_disk, outcome) VALUES (?, ?, ?, ?, ?, 'running')",
		id, time.Now().UTC(), bootMode, sourceDisk, destDisk)
	if err != nil {
		return "", err
	}
	return id, nil
}

// RecordEvent appends a step transition to a run.
func (d *DB) RecordEvent(sessionID, step, detail string) error {
	_, err := d.conn.Exec(
		"INSERT INTO events (session_id, ts, step, detail) VALUES (?, ?, ?, ?)",
		sessionID, time.Now().UTC(), step, detail)
	return err
}

// FinishSession stamps the terminal outcome of a run.
func (d *DB) FinishSession(sessionID, outcome, failure string) error {
	_, err := d.conn.Exec(
		"UPDATE sessions SET finished_at = ?, outcome = ?, failure = ? WHERE id = ?",
		time.Now().UTC(), outcome, failure, sessionID)
	return err
}

// RecentSessions returns the most recent runs, newest first.
func (d *DB) RecentSessions(limit int) ([]*SessionRecord, error) {
	rows, err := d.conn.Query(`
		SELECT id, started_at, finished_at, boot_mode, source_disk, dest_disk, outcome, failure
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*SessionRecord
	for rows.Next() {
		var s SessionRecord
		var finished sql.NullTime
		if err := rows.Scan(&s.ID, &s.StartedAt, &finished, &s.BootMode, &s.SourceDisk, &s.DestDisk, &s.Outcome, &s.Failure); err != nil {
			return nil, err
		}
		if finished.Valid {
			s.FinishedAt = &finished.Time
		}
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

// SessionEvents returns the step transitions of a run, oldest first.
func (d *DB) SessionEvents(sessionID string) ([]*Event, error) {
	rows, err := d.conn.Query(
		"SELECT id, session_id, ts, step, detail FROM events WHERE session_id = ? ORDER BY id", sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Timestamp, &e.Step, &e.Detail); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
