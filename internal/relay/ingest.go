package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pders01/feedq/internal/debuglog"
	"github.com/pders01/feedq/internal/feed"
	"github.com/pders01/feedq/internal/metrics"
	"github.com/pders01/feedq/internal/scheduler"
	"github.com/pders01/feedq/internal/storage"
)

// Timers is the part of the scheduler the relay drives.
type Timers interface {
	Schedule(guid string, at time.Time)
	Cancel(guid string) bool
	Restore(entries []scheduler.Entry)
	Len() int
}

// IngestResult summarises one ingestion run.
type IngestResult struct {
	Seen    int
	Queued  int
	Skipped int
}

// Pipeline turns feed items into queued, scheduled records. Runs are
// serialized so publish times stay monotonic.
type Pipeline struct {
	mu     sync.Mutex
	store  storage.Store
	delay  *DelayPolicy
	timers Timers
	clock  scheduler.Clock
	log    *debuglog.FieldLogger
}

func NewPipeline(store storage.Store, delay *DelayPolicy, timers Timers, clock scheduler.Clock) *Pipeline {
	if clock == nil {
		clock = scheduler.SystemClock{}
	}
	return &Pipeline{
		store:  store,
		delay:  delay,
		timers: timers,
		clock:  clock,
		log:    debuglog.WithFields(map[string]any{"component": "ingest"}),
	}
}

// Ingest queues every item not seen before, in the order given. A storage
// error stops the run; records committed before it stay scheduled.
func (p *Pipeline) Ingest(ctx context.Context, items []feed.Item) (IngestResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var res IngestResult
	defer func() { metrics.RecordIngest(res.Queued, res.Skipped) }()

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Seen++

		if it.GUID == "" {
			res.Skipped++
			p.log.Debugf("skipping item without guid: %q", it.Payload.Title)
			continue
		}

		posted, err := p.store.IsPosted(it.GUID)
		if err != nil {
			return res, fmt.Errorf("checking %s: %w", it.GUID, err)
		}
		if posted {
			res.Skipped++
			continue
		}

		payload, err := it.Payload.Encode()
		if err != nil {
			return res, err
		}

		rec, queued, err := p.store.Enqueue(it.GUID, payload, p.delay.Duration(), p.clock.Now())
		if err != nil {
			return res, fmt.Errorf("queueing %s: %w", it.GUID, err)
		}
		if !queued {
			res.Skipped++
			continue
		}

		p.timers.Schedule(rec.GUID, rec.PublishTime())
		res.Queued++
		p.log.With("guid", rec.GUID).Infof("queued for %s", rec.PublishTime().Format(time.DateTime))
	}

	reportQueueLength(p.store, p.log)
	return res, nil
}

// Poll fetches the source once and ingests what it returns.
func (p *Pipeline) Poll(ctx context.Context, src feed.Source) (IngestResult, error) {
	items, err := src.Items(ctx)
	if err != nil {
		return IngestResult{}, fmt.Errorf("fetching feed: %w", err)
	}
	return p.Ingest(ctx, items)
}

// Run polls src immediately and then every interval until ctx is done.
// Poll failures are logged and retried on the next tick.
func (p *Pipeline) Run(ctx context.Context, src feed.Source, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.log.Infof("polling every %s", interval)
	for {
		res, err := p.Poll(ctx, src)
		switch {
		case err != nil && ctx.Err() == nil:
			metrics.RecordPollError()
			p.log.Errorf("poll failed: %v", err)
		case res.Queued > 0:
			p.log.Infof("poll queued %d of %d items", res.Queued, res.Seen)
		default:
			p.log.Debugf("poll found nothing new (%d items)", res.Seen)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
