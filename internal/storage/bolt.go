package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	postedBucket   = []byte("posted")
	queueBucket    = []byte("queue")
	settingsBucket = []byte("settings")
)

// queueValue is the bucket value for a queue key; the guid is the key.
type queueValue struct {
	Payload   string `json:"payload"`
	PublishAt int64  `json:"publish_at"`
}

type BoltStore struct {
	db      *bolt.DB
	tmpPath string
}

// NewBoltStore opens (or creates) a bbolt file at dbPath. The special path
// ":memory:" opens a throwaway file that is removed on Close.
func NewBoltStore(dbPath string, timeout time.Duration) (*BoltStore, error) {
	var tmpPath string
	if dbPath == ":memory:" {
		f, err := os.CreateTemp("", "feedq-*.db")
		if err != nil {
			return nil, fmt.Errorf("creating temp database: %w", err)
		}
		f.Close()
		dbPath, tmpPath = f.Name(), f.Name()
	}

	if timeout <= 0 {
		timeout = 1 * time.Second
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{postedBucket, queueBucket, settingsBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db, tmpPath: tmpPath}, nil
}

func (s *BoltStore) Backend() string { return DriverBolt }

func (s *BoltStore) Close() error {
	err := s.db.Close()
	if s.tmpPath != "" {
		os.Remove(s.tmpPath)
	}
	return err
}

func (s *BoltStore) IsPosted(guid string) (bool, error) {
	var posted bool
	err := s.db.View(func(tx *bolt.Tx) error {
		posted = tx.Bucket(postedBucket).Get([]byte(guid)) != nil
		return nil
	})
	return posted, err
}

func (s *BoltStore) MarkPosted(guid string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return markPosted(tx, guid)
	})
}

func markPosted(tx *bolt.Tx, guid string) error {
	b := tx.Bucket(postedBucket)
	if b.Get([]byte(guid)) != nil {
		return nil
	}
	return b.Put([]byte(guid), []byte{1})
}

func (s *BoltStore) Enqueue(guid, payload string, delay time.Duration, now time.Time) (*Record, bool, error) {
	var rec *Record
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(postedBucket).Get([]byte(guid)) != nil {
			return nil
		}

		last, ok, err := lastPublishAt(tx)
		if err != nil {
			return err
		}

		candidate := &Record{
			GUID:      guid,
			Payload:   payload,
			PublishAt: nextPublishAt(last, ok, delay, now),
		}
		if _, err := putIfAbsent(tx, candidate); err != nil {
			return err
		}
		if err := markPosted(tx, guid); err != nil {
			return err
		}
		rec = candidate
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("enqueueing %s: %w", guid, err)
	}
	return rec, rec != nil, nil
}

func (s *BoltStore) AddToQueue(rec *Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := putIfAbsent(tx, rec)
		return err
	})
}

func putIfAbsent(tx *bolt.Tx, rec *Record) (bool, error) {
	b := tx.Bucket(queueBucket)
	if b.Get([]byte(rec.GUID)) != nil {
		return false, nil
	}
	data, err := json.Marshal(queueValue{Payload: rec.Payload, PublishAt: rec.PublishAt})
	if err != nil {
		return false, err
	}
	return true, b.Put([]byte(rec.GUID), data)
}

func (s *BoltStore) RemoveFromQueue(guid string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(queueBucket).Delete([]byte(guid))
	})
}

func (s *BoltStore) GetQueueItem(guid string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(queueBucket).Get([]byte(guid))
		if data == nil {
			return ErrNotFound
		}
		var err error
		rec, err = decodeQueueValue(guid, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func decodeQueueValue(guid string, data []byte) (*Record, error) {
	var v queueValue
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decoding queue record %s: %w", guid, err)
	}
	return &Record{GUID: guid, Payload: v.Payload, PublishAt: v.PublishAt}, nil
}

func (s *BoltStore) ListQueue() ([]*Record, error) {
	var records []*Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(queueBucket).ForEach(func(k, v []byte) error {
			rec, err := decodeQueueValue(string(k), v)
			if err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortRecords(records)
	return records, nil
}

func sortRecords(records []*Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].PublishAt != records[j].PublishAt {
			return records[i].PublishAt < records[j].PublishAt
		}
		return records[i].GUID < records[j].GUID
	})
}

func (s *BoltStore) QueueLen() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(queueBucket).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *BoltStore) LastPublishAt() (int64, bool, error) {
	var (
		last int64
		ok   bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		last, ok, err = lastPublishAt(tx)
		return err
	})
	return last, ok, err
}

func lastPublishAt(tx *bolt.Tx) (int64, bool, error) {
	var (
		last  int64
		found bool
	)
	err := tx.Bucket(queueBucket).ForEach(func(k, v []byte) error {
		rec, err := decodeQueueValue(string(k), v)
		if err != nil {
			return err
		}
		if !found || rec.PublishAt > last {
			last, found = rec.PublishAt, true
		}
		return nil
	})
	return last, found, err
}

func (s *BoltStore) Reschedule(guid string, publishAt int64) (bool, error) {
	var updated bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(queueBucket)
		data := b.Get([]byte(guid))
		if data == nil {
			return nil
		}
		rec, err := decodeQueueValue(guid, data)
		if err != nil {
			return err
		}
		out, err := json.Marshal(queueValue{Payload: rec.Payload, PublishAt: publishAt})
		if err != nil {
			return err
		}
		updated = true
		return b.Put([]byte(guid), out)
	})
	return updated, err
}

func (s *BoltStore) GetSetting(key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(settingsBucket).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		value = string(data)
		return nil
	})
	return value, err
}

func (s *BoltStore) SetSetting(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(settingsBucket).Put([]byte(key), []byte(value))
	})
}

func (s *BoltStore) SeedSetting(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(settingsBucket)
		if b.Get([]byte(key)) != nil {
			return nil
		}
		return b.Put([]byte(key), []byte(value))
	})
}
