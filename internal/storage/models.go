package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the feed item content captured at ingestion time. It is
// stored verbatim as the queue record's payload text.
type Payload struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Published string `json:"published"`
	Link      string `json:"link"`
	Content   string `json:"content"`
}

// Encode renders p as the opaque payload text kept in the queue.
func (p Payload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	return string(data), nil
}

// Record is a pending publication.
type Record struct {
	GUID      string `json:"guid"`
	Payload   string `json:"payload"`
	PublishAt int64  `json:"publish_at"`
}

// Decode parses the stored payload text.
func (r *Record) Decode() (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(r.Payload), &p); err != nil {
		return p, fmt.Errorf("decoding payload for %s: %w", r.GUID, err)
	}
	return p, nil
}

// PublishTime returns PublishAt as a time.Time.
func (r *Record) PublishTime() time.Time {
	return time.Unix(r.PublishAt, 0)
}

// nextPublishAt is the spacing rule shared by every backend: a new record
// goes delay after the latest queued one, or delay after now when the
// queue is empty.
func nextPublishAt(last int64, hasLast bool, delay time.Duration, now time.Time) int64 {
	base := now.Unix()
	if hasLast {
		base = last
	}
	return base + int64(delay/time.Second)
}
