package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/e1-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "e1.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func ptr[T any](v T) *T { return &v }

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, got.Status)
	assert.Nil(t, got.Report)
	assert.False(t, got.Terminal())

	require.NoError(t, st.FinishRun(ctx, run.ID, model.RunStatusComplete, map[string]int{"records": 3}, nil))
	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.JSONEq(t, `{"records":3}`, string(got.Report))
	assert.Empty(t, got.Error)
	assert.True(t, got.Terminal())
}

func TestSQLite_FinishRunFailed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, run.ID, model.RunStatusFailed, nil, errors.New("metrics: field E1_raw")))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "metrics: field E1_raw", got.Error)
	assert.Nil(t, got.Report)
}

func TestSQLite_RunNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "missing")
	assert.True(t, eris.Is(err, ErrNotFound))

	_, err = st.LatestRun(ctx)
	assert.True(t, eris.Is(err, ErrNotFound))

	err = st.FinishRun(ctx, "missing", model.RunStatusComplete, nil, nil)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_LatestRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CreateRun(ctx)
	require.NoError(t, err)
	second, err := st.CreateRun(ctx)
	require.NoError(t, err)

	got, err := st.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestSQLite_ZoneStats(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)

	stats := []model.ZoneStats{
		{Level: model.LevelAdmin, ZoneID: ptr("Putre"), Mean: ptr(0.5), Min: ptr(0.2), Max: ptr(0.8), HighCount: 1, Total: 2},
		{Level: model.LevelAdmin, ZoneID: ptr("Arica"), Total: 1},
		{Level: model.LevelAdmin, ZoneID: nil, Mean: ptr(0.1), Min: ptr(0.1), Max: ptr(0.1), Total: 1},
	}
	require.NoError(t, st.SaveZoneStats(ctx, run.ID, stats))

	got, err := st.ListZoneStats(ctx, run.ID, model.LevelAdmin)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Arica", *got[0].ZoneID)
	assert.Nil(t, got[0].Mean, "all-null zone keeps a null mean")
	assert.Equal(t, "Putre", *got[1].ZoneID)
	assert.Equal(t, stats[0], got[1])
	assert.Nil(t, got[2].ZoneID, "unassigned group sorts last")

	// Saving again replaces rather than duplicates.
	stats[0].HighCount = 2
	require.NoError(t, st.SaveZoneStats(ctx, run.ID, stats[:1]))
	got, err = st.ListZoneStats(ctx, run.ID, model.LevelAdmin)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 2, got[1].HighCount)

	other, err := st.ListZoneStats(ctx, run.ID, model.LevelHydro)
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, st.SaveZoneStats(ctx, run.ID, nil))
}
