package storage

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a queue record or setting does not exist.
var ErrNotFound = errors.New("not found")

const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

// Store holds the three relations feedq persists: the posted set, the
// publication queue and the settings table. Every method is atomic on its
// own; Enqueue is the one read-then-write sequence and runs as a single
// write transaction.
type Store interface {
	// IsPosted reports whether guid was ever queued.
	IsPosted(guid string) (bool, error)
	// MarkPosted records guid; marking twice is a no-op.
	MarkPosted(guid string) error

	// Enqueue queues guid unless it was already posted. publish_at is
	// derived from the latest queued record inside the same transaction.
	// The bool result is false when guid was skipped as a duplicate.
	Enqueue(guid, payload string, delay time.Duration, now time.Time) (*Record, bool, error)
	// AddToQueue inserts rec iff its guid is absent.
	AddToQueue(rec *Record) error
	// RemoveFromQueue deletes guid if present.
	RemoveFromQueue(guid string) error
	// GetQueueItem returns ErrNotFound when guid is not queued.
	GetQueueItem(guid string) (*Record, error)
	// ListQueue returns every record ordered by publish time.
	ListQueue() ([]*Record, error)
	// QueueLen counts the queued records.
	QueueLen() (int, error)
	// LastPublishAt returns the greatest publish_at, false when empty.
	LastPublishAt() (int64, bool, error)
	// Reschedule overwrites publish_at; false when guid is not queued.
	Reschedule(guid string, publishAt int64) (bool, error)

	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
	// SeedSetting writes value only when key has no value yet.
	SeedSetting(key, value string) error

	Backend() string
	Close() error
}

// NewStore opens the backend named by driver.
func NewStore(driver, path string, timeout time.Duration) (Store, error) {
	switch driver {
	case "", DriverBolt:
		return NewBoltStore(path, timeout)
	case DriverSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}
