// Package scheduler maps keys to one-shot fire times and dispatches them
// from a single loop in fire-time order.
package scheduler

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pders01/feedq/internal/debuglog"
)

// FireFunc is invoked once per due entry. Errors are logged only.
type FireFunc func(ctx context.Context, guid string) error

// Entry is a pending timer.
type Entry struct {
	GUID   string
	FireAt time.Time
}

type item struct {
	Entry
	seq   uint64
	index int
}

type entryHeap []*item

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if !h[i].FireAt.Equal(h[j].FireAt) {
		return h[i].FireAt.Before(h[j].FireAt)
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

type Scheduler struct {
	mu     sync.Mutex
	queue  entryHeap
	byGUID map[string]*item
	seq    uint64
	wake   chan struct{}

	clock Clock
	fire  FireFunc
	log   *debuglog.FieldLogger
}

// New returns a scheduler that calls fire for each due entry once Run is
// started. A nil clock means the system clock.
func New(fire FireFunc, clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{
		byGUID: make(map[string]*item),
		wake:   make(chan struct{}, 1),
		clock:  clock,
		fire:   fire,
		log:    debuglog.WithFields(map[string]any{"component": "scheduler"}),
	}
}

// Schedule creates or replaces the timer for guid.
func (s *Scheduler) Schedule(guid string, at time.Time) {
	s.mu.Lock()
	s.seq++
	if it, ok := s.byGUID[guid]; ok {
		it.FireAt = at
		it.seq = s.seq
		heap.Fix(&s.queue, it.index)
	} else {
		it := &item{Entry: Entry{GUID: guid, FireAt: at}, seq: s.seq}
		heap.Push(&s.queue, it)
		s.byGUID[guid] = it
	}
	s.mu.Unlock()

	s.log.Debugf("scheduled %s at %s", guid, at.Format(time.RFC3339))
	s.notify()
}

// Cancel removes any pending timer for guid.
func (s *Scheduler) Cancel(guid string) bool {
	s.mu.Lock()
	it, ok := s.byGUID[guid]
	if ok {
		heap.Remove(&s.queue, it.index)
		delete(s.byGUID, guid)
	}
	s.mu.Unlock()

	if ok {
		s.log.Debugf("cancelled %s", guid)
		s.notify()
	}
	return ok
}

// Restore schedules every (guid, publish_at) pair, moving overdue ones to
// now so they fire immediately instead of being dropped.
func (s *Scheduler) Restore(entries []Entry) {
	now := s.clock.Now()
	for _, e := range entries {
		at := e.FireAt
		if at.Before(now) {
			at = now
		}
		s.Schedule(e.GUID, at)
	}
	s.log.Infof("restored %d timers", len(entries))
}

// Len returns the number of pending timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Pending returns a snapshot of pending timers ordered by fire time.
func (s *Scheduler) Pending() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.queue))
	for _, it := range s.queue {
		out = append(out, it.Entry)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].FireAt.Before(out[j].FireAt)
		}
		return out[i].GUID < out[j].GUID
	})
	return out
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// next pops the earliest entry if it is due. Otherwise it returns the fire
// time to wait for; ok is false when nothing is scheduled.
func (s *Scheduler) next() (guid string, wakeAt time.Time, due, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return "", time.Time{}, false, false
	}
	head := s.queue[0]
	if head.FireAt.After(s.clock.Now()) {
		return "", head.FireAt, false, true
	}
	heap.Pop(&s.queue)
	delete(s.byGUID, head.GUID)
	return head.GUID, head.FireAt, true, true
}

// Run dispatches due entries until ctx is cancelled. Entries fire
// sequentially on this goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Infof("dispatch loop started")
	for {
		if err := ctx.Err(); err != nil {
			s.log.Infof("dispatch loop stopped")
			return err
		}

		guid, wakeAt, due, ok := s.next()
		if due {
			if err := s.fire(ctx, guid); err != nil {
				s.log.With("guid", guid).Errorf("fire failed: %v", err)
			}
			continue
		}

		var timer <-chan time.Time
		if ok {
			timer = s.clock.WaitUntil(wakeAt)
		}

		select {
		case <-ctx.Done():
			s.log.Infof("dispatch loop stopped")
			return ctx.Err()
		case <-s.wake:
		case <-timer:
		}
	}
}
