package admin

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/feedq/internal/feed"
	"github.com/pders01/feedq/internal/relay"
	"github.com/pders01/feedq/internal/scheduler"
	"github.com/pders01/feedq/internal/storage"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    storage.Store
	clock    *scheduler.ManualClock
	sched    *scheduler.Scheduler
	pipeline *relay.Pipeline
	svc      *relay.Service
	cmds     *Commands
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := storage.NewStore(storage.DriverBolt, filepath.Join(t.TempDir(), "feedq.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	delay, err := relay.NewDelayPolicy(store, 60)
	require.NoError(t, err)

	f := &fixture{store: store, clock: scheduler.NewManualClock(t0)}
	f.sched = scheduler.New(func(context.Context, string) error { return nil }, f.clock)
	f.pipeline = relay.NewPipeline(store, delay, f.sched, f.clock)
	f.svc = relay.NewService(store, delay, f.sched, f.clock)
	f.cmds = NewCommands(f.svc, []string{"@admin", "ops"})
	f.cmds.SetLocation(time.UTC)
	return f
}

func (f *fixture) ingest(t *testing.T, guids ...string) {
	t.Helper()
	items := make([]feed.Item, 0, len(guids))
	for _, g := range guids {
		items = append(items, feed.Item{GUID: g, Payload: storage.Payload{ID: g, Title: "Title " + g, Link: "https://example.org/" + g}})
	}
	_, err := f.pipeline.Ingest(context.Background(), items)
	require.NoError(t, err)
}

func (f *fixture) run(t *testing.T, text string) string {
	t.Helper()
	reply, ok, err := f.cmds.Execute("admin", text)
	require.NoError(t, err)
	require.True(t, ok, "expected a reply to %q", text)
	return reply
}

func TestCommands_Authorization(t *testing.T) {
	f := newFixture(t)

	assert.True(t, f.cmds.Authorized("admin"))
	assert.True(t, f.cmds.Authorized("@admin"))
	assert.True(t, f.cmds.Authorized("ops"))
	assert.False(t, f.cmds.Authorized("mallory"))
	assert.False(t, f.cmds.Authorized(""))

	reply, ok, err := f.cmds.Execute("mallory", "/queue_del A")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, reply)
}

func TestCommands_UnknownIsSilent(t *testing.T) {
	f := newFixture(t)
	for _, text := range []string{"/frobnicate", "hello", "", "   "} {
		_, ok, err := f.cmds.Execute("admin", text)
		require.NoError(t, err)
		assert.False(t, ok, text)
	}
}

func TestCommands_Help(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, HelpText, f.run(t, "/help"))
	assert.Equal(t, HelpText, f.run(t, "/start"))
	assert.Equal(t, HelpText, f.run(t, "/help@feedq_bot"))
}

func TestCommands_Queue(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "Queue is empty", f.run(t, "/queue"))

	f.ingest(t, "A", "B")
	want := "A\nTitle A\n🕒 2025-03-01 13:00:00\n" +
		"\n" +
		"B\nTitle B\n🕒 2025-03-01 14:00:00\n"
	assert.Equal(t, want, f.run(t, "/queue"))
}

func TestCommands_QueueGet(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "A")

	assert.Equal(t, "Usage: /queue_get <guid>", f.run(t, "/queue_get"))
	assert.Equal(t, "Not found", f.run(t, "/queue_get nope"))

	reply := f.run(t, "/queue_get A")
	assert.True(t, strings.HasPrefix(reply, "GUID: A\n🕒 2025-03-01 13:00:00\n\n{"), reply)
	assert.Contains(t, reply, `"title":"Title A"`)
}

func TestCommands_QueueDel(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "A")

	assert.Equal(t, "Usage: /queue_del <guid>", f.run(t, "/queue_del"))
	assert.Equal(t, "Deleted", f.run(t, "/queue_del A"))
	assert.Equal(t, "Deleted", f.run(t, "/queue_del A"))
	assert.Zero(t, f.sched.Len())
	assert.Equal(t, "Not found", f.run(t, "/queue_get A"))
}

func TestCommands_QueueDelay(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "A")

	for _, bad := range []string{"/queue_delay", "/queue_delay A", "/queue_delay A -5", "/queue_delay A 5m", "/queue_delay A 5 6"} {
		assert.Equal(t, "Usage: /queue_delay <guid> <minutes>", f.run(t, bad), bad)
	}
	rec, err := f.store.GetQueueItem("A")
	require.NoError(t, err)
	assert.Equal(t, t0.Unix()+3600, rec.PublishAt, "malformed commands change nothing")

	assert.Equal(t, "Not found", f.run(t, "/queue_delay nope 5"))
	assert.Equal(t, "New publish time in 5 minutes", f.run(t, "/queue_delay A 5"))

	rec, err = f.store.GetQueueItem("A")
	require.NoError(t, err)
	assert.Equal(t, t0.Unix()+300, rec.PublishAt)
	assert.Equal(t, t0.Add(5*time.Minute), f.sched.Pending()[0].FireAt)
}

func TestCommands_Delay(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "Current delay: 60 minutes", f.run(t, "/delay"))
	assert.Equal(t, "Usage: /delay <minutes>", f.run(t, "/delay soon"))
	assert.Equal(t, "Usage: /delay <minutes>", f.run(t, "/delay -1"))
	assert.Equal(t, "Delay set: 5 minutes", f.run(t, "/delay 5"))
	assert.Equal(t, 5, f.svc.Delay())
}

func TestParseMinutes(t *testing.T) {
	tests := map[string]struct {
		n  int
		ok bool
	}{
		"0":   {0, true},
		"15":  {15, true},
		"007": {7, true},
		"":    {0, false},
		"-1":  {0, false},
		"+1":  {0, false},
		"1.5": {0, false},
		"1e3": {0, false},
	}
	for in, want := range tests {
		n, ok := parseMinutes(in)
		assert.Equal(t, want.ok, ok, in)
		assert.Equal(t, want.n, n, in)
	}

	_, ok := parseMinutes("9999999999999999999999")
	assert.False(t, ok, "overflow")

	n, ok := parseMinutes("153722867")
	assert.True(t, ok)
	assert.Equal(t, relay.MaxDelayMinutes, n)
	_, ok = parseMinutes("153722868")
	assert.False(t, ok, "past the largest schedulable delay")
}

func TestCommands_HugeMinutesChangeNothing(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "A")

	assert.Equal(t, "Usage: /queue_delay <guid> <minutes>", f.run(t, "/queue_delay A 200000000"))
	rec, err := f.store.GetQueueItem("A")
	require.NoError(t, err)
	assert.Equal(t, t0.Unix()+3600, rec.PublishAt)
	assert.Equal(t, t0.Add(time.Hour), f.sched.Pending()[0].FireAt)

	assert.Equal(t, "Usage: /delay <minutes>", f.run(t, "/delay 200000000"))
	assert.Equal(t, 60, f.svc.Delay())

	f.ingest(t, "B")
	b, err := f.store.GetQueueItem("B")
	require.NoError(t, err)
	assert.Equal(t, rec.PublishAt+3600, b.PublishAt)
}

func TestCommands_LargestDelayKeepsOrder(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "A")

	assert.Equal(t, "Delay set: 153722867 minutes", f.run(t, "/delay 153722867"))
	f.ingest(t, "B")

	a, err := f.store.GetQueueItem("A")
	require.NoError(t, err)
	b, err := f.store.GetQueueItem("B")
	require.NoError(t, err)
	assert.Greater(t, b.PublishAt, a.PublishAt)

	assert.Equal(t, "New publish time in 153722867 minutes", f.run(t, "/queue_delay A 153722867"))
	a, err = f.store.GetQueueItem("A")
	require.NoError(t, err)
	assert.Greater(t, a.PublishAt, t0.Unix())
}
