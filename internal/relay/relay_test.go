package relay

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pders01/feedq/internal/config"
	"github.com/pders01/feedq/internal/delivery"
	"github.com/pders01/feedq/internal/feed"
	"github.com/pders01/feedq/internal/scheduler"
	"github.com/pders01/feedq/internal/storage"
)

var t0 = time.Unix(1_700_000_000, 0)

// fakeSink records messages and replays scripted errors before
// succeeding.
type fakeSink struct {
	mu   sync.Mutex
	errs []error
	sent []delivery.Message
	hits int
}

func (s *fakeSink) Send(_ context.Context, msg delivery.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return err
		}
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSink) messages() []delivery.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]delivery.Message(nil), s.sent...)
}

func (s *fakeSink) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits
}

type harness struct {
	cfg      *config.Config
	store    storage.Store
	clock    *scheduler.ManualClock
	sched    *scheduler.Scheduler
	delay    *DelayPolicy
	pipeline *Pipeline
	executor *Executor
	service  *Service
	sink     *fakeSink
}

func newHarness(t *testing.T, driver string) *harness {
	t.Helper()

	cfg := config.TestConfig()
	store, err := storage.NewStore(driver, filepath.Join(t.TempDir(), "feedq.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return wire(t, cfg, store)
}

func wire(t *testing.T, cfg *config.Config, store storage.Store) *harness {
	t.Helper()

	h := &harness{
		cfg:   cfg,
		store: store,
		clock: scheduler.NewManualClock(t0),
		sink:  &fakeSink{},
	}

	delay, err := NewDelayPolicy(store, cfg.Queue.DefaultDelayMinutes)
	require.NoError(t, err)
	h.delay = delay

	h.executor = NewExecutor(store, h.sink, cfg)
	h.sched = scheduler.New(h.executor.Fire, h.clock)
	h.pipeline = NewPipeline(store, delay, h.sched, h.clock)
	h.service = NewService(store, delay, h.sched, h.clock)
	return h
}

// run starts the dispatch loop and stops it when the test ends.
func (h *harness) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.sched.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func item(guid, title string) feed.Item {
	return feed.Item{
		GUID: guid,
		Payload: storage.Payload{
			ID:      guid,
			Title:   title,
			Link:    "https://example.org/" + guid,
			Content: "body of " + guid,
		},
	}
}

func forEachDriver(t *testing.T, fn func(t *testing.T, h *harness)) {
	for _, driver := range []string{storage.DriverBolt, storage.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			fn(t, newHarness(t, driver))
		})
	}
}

type failingSource struct{}

func (failingSource) Items(context.Context) ([]feed.Item, error) {
	return nil, errors.New("feed down")
}

type staticSource []feed.Item

func (s staticSource) Items(context.Context) ([]feed.Item, error) {
	return s, nil
}
