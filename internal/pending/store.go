// Package pending is the durable queue of recordings captured but not yet
// confirmed saved to the backend. A queued record survives process restarts
// and is the sole source of truth that its recording exists until the
// backend confirms persistence.
package pending

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested pending record does not exist.
var ErrNotFound = errors.New("pending record not found")

// Record is one unsent recording and its capture metadata. Timestamp (unix
// milliseconds) is the key.
type Record struct {
	Timestamp   int64
	Audio       []byte
	Title       string
	Category    string
	Description string
	Share       bool
	CreatedAt   time.Time
}

// Store persists pending records in a local SQLite database.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the pending database path under XDG state.
func DefaultDBPath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "actcue", "pending.sqlite"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for pending store: %w", err)
	}
	return filepath.Join(home, ".local", "state", "actcue", "pending.sqlite"), nil
}

// Open opens (creating if needed) the pending database with WAL enabled.
// Opening never uploads or deletes anything on its own.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create pending store dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open pending store: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping pending store: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS pending_captures (
			timestamp   INTEGER PRIMARY KEY,
			audio       BLOB NOT NULL,
			title       TEXT NOT NULL DEFAULT '',
			category    TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			share       INTEGER NOT NULL DEFAULT 0,
			created_at  REAL NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create pending schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue inserts a record and returns its key. A zero timestamp takes the
// current time; key collisions bump forward by one millisecond so no record
// is ever overwritten.
func (s *Store) Enqueue(rec Record) (int64, error) {
	if len(rec.Audio) == 0 {
		return 0, errors.New("refusing to enqueue empty audio")
	}

	key := rec.Timestamp
	if key == 0 {
		key = time.Now().UnixMilli()
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	for attempt := 0; attempt < 1000; attempt++ {
		res, err := s.db.Exec(`
			INSERT INTO pending_captures (timestamp, audio, title, category, description, share, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(timestamp) DO NOTHING
		`, key, rec.Audio, rec.Title, rec.Category, rec.Description, boolToInt(rec.Share), unixFloat(createdAt))
		if err != nil {
			return 0, fmt.Errorf("enqueue pending record: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("enqueue pending record: %w", err)
		}
		if affected == 1 {
			return key, nil
		}
		key++
	}

	return 0, errors.New("enqueue pending record: could not find a free key")
}

// Dequeue removes a record after the backend has confirmed persistence.
func (s *Store) Dequeue(id int64) error {
	res, err := s.db.Exec(`DELETE FROM pending_captures WHERE timestamp = ?`, id)
	if err != nil {
		return fmt.Errorf("dequeue pending record %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("dequeue pending record %d: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns one record with its audio blob.
func (s *Store) Get(id int64) (Record, error) {
	row := s.db.QueryRow(`
		SELECT timestamp, audio, title, category, description, share, created_at
		FROM pending_captures
		WHERE timestamp = ?
	`, id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get pending record %d: %w", id, err)
	}
	return rec, nil
}

// ListPending returns all queued records, oldest first. Every listed record
// is a recording that was captured but never confirmed saved.
func (s *Store) ListPending() ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT timestamp, audio, title, category, description, share, created_at
		FROM pending_captures
		ORDER BY timestamp ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list pending records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var share int
	var createdAt float64
	if err := row.Scan(&rec.Timestamp, &rec.Audio, &rec.Title, &rec.Category,
		&rec.Description, &share, &createdAt); err != nil {
		return Record{}, err
	}
	rec.Share = share != 0
	rec.CreatedAt = timeFromUnix(createdAt)
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
