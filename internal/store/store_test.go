package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaistahir/spotswitch/internal/engine"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(filepath.Join(t.TempDir(), "spotswitch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestKeyValue(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.Set(ctx, "plan", "first"))
	require.NoError(t, st.Set(ctx, "plan", "second"))

	v, err := st.Get(ctx, "plan")
	require.NoError(t, err)
	assert.Equal(t, "second", v)
}

func TestPlans(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.LatestPlan(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	base := time.Date(2024, 12, 1, 15, 0, 0, 0, time.UTC)
	older := &Plan{
		ComputedAt: base,
		QueryStart: base.Add(16 * time.Hour),
		QueryEnd:   base.Add(28 * time.Hour),
		Window: engine.CheapestWindow{
			Start:     base.Add(19 * time.Hour),
			End:       base.Add(23 * time.Hour),
			TotalCost: 320,
			SlotCount: 4,
		},
		AveragePrice: 8,
		Scheduled:    true,
		Message:      "older",
	}
	newer := *older
	newer.ComputedAt = base.Add(24 * time.Hour)
	newer.Scheduled = false
	newer.Message = "above threshold"

	require.NoError(t, st.SavePlan(ctx, older))
	require.NoError(t, st.SavePlan(ctx, &newer))
	assert.NotZero(t, older.ID)
	assert.Greater(t, newer.ID, older.ID)

	got, err := st.LatestPlan(ctx)
	require.NoError(t, err)

	assert.Equal(t, newer.ID, got.ID)
	assert.True(t, newer.ComputedAt.Equal(got.ComputedAt))
	assert.True(t, older.Window.Start.Equal(got.Window.Start))
	assert.True(t, older.Window.End.Equal(got.Window.End))
	assert.Equal(t, 320.0, got.Window.TotalCost)
	assert.Equal(t, 4, got.Window.SlotCount)
	assert.False(t, got.Scheduled)
	assert.Equal(t, "above threshold", got.Message)
}
