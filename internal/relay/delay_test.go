package relay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/feedq/internal/feed"
)

func TestDelayPolicy_SeedsDefault(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h *harness) {
		assert.Equal(t, 60, h.delay.Get())

		raw, err := h.store.GetSetting(DelaySettingKey)
		require.NoError(t, err)
		assert.Equal(t, "60", raw)
	})
}

func TestDelayPolicy_SetPersists(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h *harness) {
		require.NoError(t, h.delay.Set(5))
		assert.Equal(t, 5, h.delay.Get())

		// A later start with a different default keeps the stored value.
		reloaded, err := NewDelayPolicy(h.store, 90)
		require.NoError(t, err)
		assert.Equal(t, 5, reloaded.Get())
	})
}

func TestDelayPolicy_RejectsNegative(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h *harness) {
		assert.ErrorIs(t, h.delay.Set(-1), ErrInvalidDelay)
		assert.Equal(t, 60, h.delay.Get())

		_, err := NewDelayPolicy(h.store, -5)
		assert.ErrorIs(t, err, ErrInvalidDelay)
	})
}

func TestDelayPolicy_RejectsOverflow(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h *harness) {
		assert.ErrorIs(t, h.delay.Set(MaxDelayMinutes+1), ErrInvalidDelay)
		assert.Equal(t, 60, h.delay.Get())

		require.NoError(t, h.delay.Set(MaxDelayMinutes))
		assert.Positive(t, h.delay.Duration())

		require.NoError(t, h.store.SetSetting(DelaySettingKey, "200000000"))
		_, err := NewDelayPolicy(h.store, 60)
		assert.ErrorIs(t, err, ErrInvalidDelay)
	})
}

func TestDelayPolicy_ZeroAllowed(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h *harness) {
		require.NoError(t, h.delay.Set(0))
		assert.Equal(t, 0, h.delay.Get())
		assert.Zero(t, h.delay.Duration())
	})
}

func TestDelayPolicy_CorruptSetting(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h *harness) {
		require.NoError(t, h.store.SetSetting(DelaySettingKey, "soon"))
		_, err := NewDelayPolicy(h.store, 60)
		assert.ErrorIs(t, err, ErrInvalidDelay)
	})
}

func TestDelayPolicy_OnlyAffectsFutureRecords(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h *harness) {
		_, err := h.pipeline.Ingest(context.Background(), []feed.Item{item("a", "A")})
		require.NoError(t, err)

		require.NoError(t, h.delay.Set(1))

		rec, err := h.store.GetQueueItem("a")
		require.NoError(t, err)
		assert.Equal(t, t0.Unix()+3600, rec.PublishAt)
	})
}
