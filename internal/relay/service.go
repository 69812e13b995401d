package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/pders01/feedq/internal/debuglog"
	"github.com/pders01/feedq/internal/metrics"
	"github.com/pders01/feedq/internal/scheduler"
	"github.com/pders01/feedq/internal/storage"
)

// Service is the operator view of the queue. Every mutation keeps the
// store and the timers in step.
type Service struct {
	store  storage.Store
	delay  *DelayPolicy
	timers Timers
	clock  scheduler.Clock
	log    *debuglog.FieldLogger
}

func NewService(store storage.Store, delay *DelayPolicy, timers Timers, clock scheduler.Clock) *Service {
	if clock == nil {
		clock = scheduler.SystemClock{}
	}
	return &Service{
		store:  store,
		delay:  delay,
		timers: timers,
		clock:  clock,
		log:    debuglog.WithFields(map[string]any{"component": "admin"}),
	}
}

// Restore arms a timer for every record in the queue. Overdue records
// fire right away.
func (s *Service) Restore() (int, error) {
	records, err := s.store.ListQueue()
	if err != nil {
		return 0, fmt.Errorf("listing queue: %w", err)
	}

	entries := make([]scheduler.Entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, scheduler.Entry{GUID: rec.GUID, FireAt: rec.PublishTime()})
	}
	s.timers.Restore(entries)
	reportQueueLength(s.store, s.log)
	return len(entries), nil
}

// List returns every queued record ordered by publish time.
func (s *Service) List() ([]*storage.Record, error) {
	return s.store.ListQueue()
}

// Get returns the record for guid; found is false when it is not queued.
func (s *Service) Get(guid string) (rec *storage.Record, found bool, err error) {
	rec, err = s.store.GetQueueItem(guid)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Delete cancels the timer for guid and drops it from the queue. The guid
// stays in the posted set.
func (s *Service) Delete(guid string) error {
	s.timers.Cancel(guid)
	if err := s.store.RemoveFromQueue(guid); err != nil {
		return fmt.Errorf("deleting %s: %w", guid, err)
	}
	reportQueueLength(s.store, s.log)
	s.log.With("guid", guid).Infof("deleted from queue")
	return nil
}

// Reschedule moves guid to now + minutes. It reports false without any
// change when guid is not queued.
func (s *Service) Reschedule(guid string, minutes int) (time.Time, bool, error) {
	if !ValidMinutes(minutes) {
		return time.Time{}, false, ErrInvalidDelay
	}

	_, found, err := s.Get(guid)
	if err != nil || !found {
		return time.Time{}, false, err
	}

	at := s.clock.Now().Add(time.Duration(minutes) * time.Minute).Truncate(time.Second)
	s.timers.Cancel(guid)
	ok, err := s.store.Reschedule(guid, at.Unix())
	if err != nil {
		return time.Time{}, false, fmt.Errorf("rescheduling %s: %w", guid, err)
	}
	if !ok {
		return time.Time{}, false, nil
	}
	s.timers.Schedule(guid, at)
	reportQueueLength(s.store, s.log)

	s.log.With("guid", guid).Infof("rescheduled to %s", at.Format(time.DateTime))
	return at, true, nil
}

// reportQueueLength sets the queue gauge from the store, so failed
// deliveries still waiting in the queue are counted.
func reportQueueLength(store storage.Store, log *debuglog.FieldLogger) {
	n, err := store.QueueLen()
	if err != nil {
		log.Warnf("counting queue: %v", err)
		return
	}
	metrics.SetQueueLength(n)
}

// Delay returns the current spacing in minutes.
func (s *Service) Delay() int {
	return s.delay.Get()
}

// SetDelay changes the spacing for items ingested from now on.
func (s *Service) SetDelay(minutes int) error {
	if err := s.delay.Set(minutes); err != nil {
		return err
	}
	s.log.Infof("delay set to %d minutes", minutes)
	return nil
}
