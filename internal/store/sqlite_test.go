package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catchment-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// --- Runs ---

func TestSQLite_CreateAndGetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "plan.yaml", 2)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "plan.yaml", got.PlanPath)
	assert.Equal(t, 2, got.Datasets)
	assert.Nil(t, got.FinishedAt)
}

func TestSQLite_FinishRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "plan.yaml", 3)
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, run.ID, model.RunStatusPartial, 1))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPartial, got.Status)
	assert.Equal(t, 1, got.Failed)
	require.NotNil(t, got.FinishedAt)
}

func TestSQLite_FinishRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.FinishRun(context.Background(), "missing", model.RunStatusComplete, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListRuns_Filter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r1, err := st.CreateRun(ctx, "a.yaml", 1)
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, "b.yaml", 1)
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, r1.ID, model.RunStatusComplete, 0))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	done, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, r1.ID, done[0].ID)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// --- Thresholds ---

func TestSQLite_SaveThreshold(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "plan.yaml", 1)
	require.NoError(t, err)

	require.NoError(t, st.SaveThreshold(ctx, model.ThresholdSummary{
		RunID: run.ID, Dataset: "cq", Label: "e", Threshold: 5000,
		RetainedRows: 10, Origins: 4, Facilities: 2, UnmatchedOrigins: 1,
	}))
	require.NoError(t, st.SaveThreshold(ctx, model.ThresholdSummary{
		RunID: run.ID, Dataset: "cq", Label: "d", Threshold: 3000,
		Error: "catchment: threshold must be positive",
	}))

	got, err := st.ListThresholds(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d", got[0].Label)
	assert.NotEmpty(t, got[0].Error)
	assert.Equal(t, "e", got[1].Label)
	assert.Equal(t, 10, got[1].RetainedRows)
	assert.Empty(t, got[1].Error)
}

func TestSQLite_SaveThreshold_Replaces(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "plan.yaml", 1)
	require.NoError(t, err)

	s := model.ThresholdSummary{RunID: run.ID, Dataset: "cq", Label: "d", Threshold: 3000, RetainedRows: 1}
	require.NoError(t, st.SaveThreshold(ctx, s))
	s.RetainedRows = 7
	require.NoError(t, st.SaveThreshold(ctx, s))

	got, err := st.ListThresholds(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 7, got[0].RetainedRows)
}

// --- Scores ---

func TestSQLite_SaveAndListScores(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "plan.yaml", 2)
	require.NoError(t, err)

	x, y := 106.5, 29.5
	scores := []model.DatasetScore{
		{Dataset: "cq", CompositeScore: model.CompositeScore{OriginID: "1", Score: 0.1}, X: &x, Y: &y},
		{Dataset: "cq", CompositeScore: model.CompositeScore{OriginID: "2", Score: 0.2}},
		{Dataset: "sh", CompositeScore: model.CompositeScore{OriginID: "1", Score: 0.3}},
	}
	require.NoError(t, st.SaveScores(ctx, run.ID, scores))

	all, err := st.ListScores(ctx, run.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	cq, err := st.ListScores(ctx, run.ID, "cq")
	require.NoError(t, err)
	require.Len(t, cq, 2)
	assert.Equal(t, "1", cq[0].OriginID)
	require.NotNil(t, cq[0].X)
	assert.InDelta(t, 106.5, *cq[0].X, 1e-9)
	assert.Nil(t, cq[1].X)
}

func TestSQLite_ListScores_NumericOrder(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "plan.yaml", 2)
	require.NoError(t, err)

	var scores []model.DatasetScore
	for _, id := range []string{"10", "2", "F-1", "1"} {
		scores = append(scores, model.DatasetScore{Dataset: "cq", CompositeScore: model.CompositeScore{OriginID: id}})
	}
	scores = append(scores, model.DatasetScore{Dataset: "bj", CompositeScore: model.CompositeScore{OriginID: "3"}})
	require.NoError(t, st.SaveScores(ctx, run.ID, scores))

	got, err := st.ListScores(ctx, run.ID, "")
	require.NoError(t, err)
	var keys []string
	for _, s := range got {
		keys = append(keys, s.Dataset+"/"+s.OriginID)
	}
	assert.Equal(t, []string{"bj/3", "cq/1", "cq/2", "cq/10", "cq/F-1"}, keys)
}

func TestSQLite_SaveScores_ReplacesDataset(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "plan.yaml", 1)
	require.NoError(t, err)

	require.NoError(t, st.SaveScores(ctx, run.ID, []model.DatasetScore{
		{Dataset: "cq", CompositeScore: model.CompositeScore{OriginID: "1", Score: 0.1}},
		{Dataset: "cq", CompositeScore: model.CompositeScore{OriginID: "2", Score: 0.2}},
	}))
	require.NoError(t, st.SaveScores(ctx, run.ID, []model.DatasetScore{
		{Dataset: "cq", CompositeScore: model.CompositeScore{OriginID: "3", Score: 0.5}},
	}))

	got, err := st.ListScores(ctx, run.ID, "cq")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].OriginID)
}

func TestNop(t *testing.T) {
	var s Store = Nop{}
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "plan.yaml", 1)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	_, err = s.GetRun(ctx, "x")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.SaveScores(ctx, "x", nil))
}
