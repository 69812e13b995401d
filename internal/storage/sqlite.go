package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the relations as SQL tables. Writes are serialized by
// mu so that Enqueue's read of MAX(publish_at) and its insert cannot
// interleave with another writer in this process.
type SQLiteStore struct {
	conn *sql.DB
	mu   sync.Mutex
}

// NewSQLiteStore opens or creates an SQLite database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection: ":memory:" databases are per connection, and SQLite
	// allows a single writer anyway.
	conn.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set wal mode: %w", err)
		}
	}

	s := &SQLiteStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posted (
		guid TEXT PRIMARY KEY
	);
	CREATE TABLE IF NOT EXISTS queue (
		guid TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		publish_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS queue_publish_at ON queue (publish_at);
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.conn.Exec(schema)
	return err
}

func (s *SQLiteStore) Backend() string { return DriverSQLite }

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStore) IsPosted(guid string) (bool, error) {
	var one int
	err := s.conn.QueryRow("SELECT 1 FROM posted WHERE guid = ?", guid).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) MarkPosted(guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec("INSERT OR IGNORE INTO posted (guid) VALUES (?)", guid)
	return err
}

func (s *SQLiteStore) Enqueue(guid, payload string, delay time.Duration, now time.Time) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("enqueueing %s: %w", guid, err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRow("SELECT 1 FROM posted WHERE guid = ?", guid).Scan(&one)
	switch {
	case err == nil:
		return nil, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, fmt.Errorf("enqueueing %s: %w", guid, err)
	}

	var last sql.NullInt64
	if err := tx.QueryRow("SELECT MAX(publish_at) FROM queue").Scan(&last); err != nil {
		return nil, false, fmt.Errorf("enqueueing %s: %w", guid, err)
	}

	rec := &Record{
		GUID:      guid,
		Payload:   payload,
		PublishAt: nextPublishAt(last.Int64, last.Valid, delay, now),
	}
	if _, err := tx.Exec("INSERT OR IGNORE INTO queue (guid, payload, publish_at) VALUES (?, ?, ?)",
		rec.GUID, rec.Payload, rec.PublishAt); err != nil {
		return nil, false, fmt.Errorf("enqueueing %s: %w", guid, err)
	}
	if _, err := tx.Exec("INSERT OR IGNORE INTO posted (guid) VALUES (?)", guid); err != nil {
		return nil, false, fmt.Errorf("enqueueing %s: %w", guid, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("enqueueing %s: %w", guid, err)
	}
	return rec, true, nil
}

func (s *SQLiteStore) AddToQueue(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec("INSERT OR IGNORE INTO queue (guid, payload, publish_at) VALUES (?, ?, ?)",
		rec.GUID, rec.Payload, rec.PublishAt)
	return err
}

func (s *SQLiteStore) RemoveFromQueue(guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec("DELETE FROM queue WHERE guid = ?", guid)
	return err
}

func (s *SQLiteStore) GetQueueItem(guid string) (*Record, error) {
	var rec Record
	err := s.conn.QueryRow("SELECT guid, payload, publish_at FROM queue WHERE guid = ?", guid).
		Scan(&rec.GUID, &rec.Payload, &rec.PublishAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) ListQueue() ([]*Record, error) {
	rows, err := s.conn.Query("SELECT guid, payload, publish_at FROM queue ORDER BY publish_at, guid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.GUID, &rec.Payload, &rec.PublishAt); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) QueueLen() (int, error) {
	var n int
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM queue").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) LastPublishAt() (int64, bool, error) {
	var last sql.NullInt64
	if err := s.conn.QueryRow("SELECT MAX(publish_at) FROM queue").Scan(&last); err != nil {
		return 0, false, err
	}
	return last.Int64, last.Valid, nil
}

func (s *SQLiteStore) Reschedule(guid string, publishAt int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.conn.Exec("UPDATE queue SET publish_at = ? WHERE guid = ?", publishAt, guid)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetSetting(key string) (string, error) {
	var value string
	err := s.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

func (s *SQLiteStore) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec("INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", key, value)
	return err
}

func (s *SQLiteStore) SeedSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec("INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)", key, value)
	return err
}
