// Package relay moves feed items through the publication queue: it
// assigns publish times at ingestion, fires deliveries when they come
// due and serves the operator commands that edit the queue.
package relay

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/pders01/feedq/internal/storage"
)

// DelaySettingKey is the settings key holding the spacing in minutes.
const DelaySettingKey = "delay_minutes"

// MaxDelayMinutes is the largest delay that still fits in a time.Duration.
const MaxDelayMinutes = int(math.MaxInt64 / int64(time.Minute))

var ErrInvalidDelay = errors.New("delay must be between 0 and 153722867 minutes")

// ValidMinutes reports whether minutes is a usable delay.
func ValidMinutes(minutes int) bool {
	return minutes >= 0 && minutes <= MaxDelayMinutes
}

// DelayPolicy holds the spacing between consecutive publications. The
// value is cached in memory and written through to the settings table.
type DelayPolicy struct {
	mu      sync.RWMutex
	store   storage.Store
	minutes int
}

// NewDelayPolicy seeds the setting with defaultMinutes when it has never
// been set and loads the current value.
func NewDelayPolicy(store storage.Store, defaultMinutes int) (*DelayPolicy, error) {
	if !ValidMinutes(defaultMinutes) {
		return nil, ErrInvalidDelay
	}
	if err := store.SeedSetting(DelaySettingKey, strconv.Itoa(defaultMinutes)); err != nil {
		return nil, fmt.Errorf("seeding delay: %w", err)
	}

	raw, err := store.GetSetting(DelaySettingKey)
	if err != nil {
		return nil, fmt.Errorf("loading delay: %w", err)
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || !ValidMinutes(minutes) {
		return nil, fmt.Errorf("stored %s %q: %w", DelaySettingKey, raw, ErrInvalidDelay)
	}

	return &DelayPolicy{store: store, minutes: minutes}, nil
}

// Get returns the delay in minutes.
func (d *DelayPolicy) Get() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.minutes
}

// Duration returns the delay as a time.Duration.
func (d *DelayPolicy) Duration() time.Duration {
	return time.Duration(d.Get()) * time.Minute
}

// Set persists a new delay. Records already queued keep their times.
func (d *DelayPolicy) Set(minutes int) error {
	if !ValidMinutes(minutes) {
		return ErrInvalidDelay
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.store.SetSetting(DelaySettingKey, strconv.Itoa(minutes)); err != nil {
		return fmt.Errorf("saving delay: %w", err)
	}
	d.minutes = minutes
	return nil
}
