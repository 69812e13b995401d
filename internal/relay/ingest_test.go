package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/feedq/internal/feed"
)

func TestPipeline_SpacingScenario(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h *harness) {
		ctx := context.Background()

		res, err := h.pipeline.Ingest(ctx, []feed.Item{item("A", "a"), item("B", "b")})
		require.NoError(t, err)
		assert.Equal(t, IngestResult{Seen: 2, Queued: 2}, res)

		require.NoError(t, h.delay.Set(5))
		res, err = h.pipeline.Ingest(ctx, []feed.Item{item("C", "c")})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Queued)

		want := map[string]int64{
			"A": t0.Unix() + 3600,
			"B": t0.Unix() + 7200,
			"C": t0.Unix() + 7500,
		}
		for guid, at := range want {
			rec, err := h.store.GetQueueItem(guid)
			require.NoError(t, err)
			assert.Equal(t, at, rec.PublishAt, guid)
		}

		pending := h.sched.Pending()
		require.Len(t, pending, 3)
		assert.Equal(t, "A", pending[0].GUID)
		assert.Equal(t, time.Unix(want["A"], 0), pending[0].FireAt)
		assert.Equal(t, "C", pending[2].GUID)
	})
}

func TestPipeline_DedupIsIdempotent(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		items := []feed.Item{item("A", "a"), item("B", "b")}

		_, err := h.pipeline.Ingest(ctx, items)
		require.NoError(t, err)

		res, err := h.pipeline.Ingest(ctx, items)
		require.NoError(t, err)
		assert.Equal(t, IngestResult{Seen: 2, Skipped: 2}, res)

		records, err := h.store.ListQueue()
		require.NoError(t, err)
		assert.Len(t, records, 2)
		assert.Equal(t, 2, h.sched.Len())
	})
}

func TestPipeline_PostedButDeletedStaysSkipped(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h *harness) {
		ctx := context.Background()

		_, err := h.pipeline.Ingest(ctx, []feed.Item{item("A", "a")})
		require.NoError(t, err)
		require.NoError(t, h.service.Delete("A"))

		res, err := h.pipeline.Ingest(ctx, []feed.Item{item("A", "a")})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Skipped)
		assert.Zero(t, h.sched.Len())
	})
}

func TestPipeline_SkipsEmptyGUID(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h *harness) {
		res, err := h.pipeline.Ingest(context.Background(), []feed.Item{item("", "no guid"), item("A", "a")})
		require.NoError(t, err)
		assert.Equal(t, IngestResult{Seen: 2, Queued: 1, Skipped: 1}, res)

		rec, err := h.store.GetQueueItem("A")
		require.NoError(t, err)
		assert.Equal(t, t0.Unix()+3600, rec.PublishAt, "skipped items do not consume a slot")
	})
}

func TestPipeline_StoresPayloadVerbatim(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h *harness) {
		it := item("A", "Review: 'Lada Vesta' test")
		it.Payload.Author = "Ivan"
		it.Payload.Published = "Wed, 01 Jan 2025 12:00:00 GMT"

		_, err := h.pipeline.Ingest(context.Background(), []feed.Item{it})
		require.NoError(t, err)

		rec, err := h.store.GetQueueItem("A")
		require.NoError(t, err)
		p, err := rec.Decode()
		require.NoError(t, err)
		assert.Equal(t, it.Payload, p)
	})
}

func TestPipeline_IdleQueueAnchorsOnNow(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		_, err := h.pipeline.Ingest(ctx, []feed.Item{item("A", "a")})
		require.NoError(t, err)
		require.NoError(t, h.service.Delete("A"))

		h.clock.Advance(10 * time.Hour)
		_, err = h.pipeline.Ingest(ctx, []feed.Item{item("B", "b")})
		require.NoError(t, err)

		rec, err := h.store.GetQueueItem("B")
		require.NoError(t, err)
		assert.Equal(t, t0.Add(10*time.Hour).Unix()+3600, rec.PublishAt)
	})
}

func TestPipeline_ConcurrentRunsStaySpaced(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h *harness) {
		require.NoError(t, h.delay.Set(1))

		done := make(chan struct{})
		for _, batch := range [][]feed.Item{
			{item("a1", ""), item("a2", ""), item("a3", "")},
			{item("b1", ""), item("b2", ""), item("b3", "")},
		} {
			go func() {
				defer func() { done <- struct{}{} }()
				_, err := h.pipeline.Ingest(context.Background(), batch)
				assert.NoError(t, err)
			}()
		}
		<-done
		<-done

		records, err := h.store.ListQueue()
		require.NoError(t, err)
		require.Len(t, records, 6)
		for i, rec := range records {
			assert.Equal(t, t0.Unix()+int64(60*(i+1)), rec.PublishAt)
		}
	})
}

func TestPipeline_CancelledContext(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h *harness) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res, err := h.pipeline.Ingest(ctx, []feed.Item{item("A", "a")})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, res.Queued)
	})
}

func TestPipeline_Poll(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h *harness) {
		res, err := h.pipeline.Poll(context.Background(), staticSource{item("A", "a")})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Queued)

		_, err = h.pipeline.Poll(context.Background(), failingSource{})
		assert.ErrorContains(t, err, "feed down")
	})
}

func TestPipeline_RunSurvivesPollErrors(t *testing.T) {
	h := newHarness(t, "bolt")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := h.pipeline.Run(ctx, failingSource{}, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPipeline_RunIngestsImmediately(t *testing.T) {
	h := newHarness(t, "bolt")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.pipeline.Run(ctx, staticSource{item("A", "a")}, time.Hour) }()

	assert.Eventually(t, func() bool { return h.sched.Len() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
