package sqlite

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tagging-eval/internal/config"
	"github.com/banshee-data/tagging-eval/internal/confusion"
	"github.com/banshee-data/tagging-eval/internal/db"
	"github.com/banshee-data/tagging-eval/internal/evaluation"
	"github.com/banshee-data/tagging-eval/internal/monitoring"
	"github.com/banshee-data/tagging-eval/internal/sweep"
	"github.com/banshee-data/tagging-eval/internal/taxonomy"
)

func setupTestStore(t *testing.T) *EvaluationStore {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })

	database, err := db.NewDB(filepath.Join(t.TempDir(), "eval.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewEvaluationStore(database.DB)
}

func fixtureCurves() []sweep.Curve {
	return []sweep.Curve{
		{
			CategoryID: 1,
			Mode:       taxonomy.ModeFine,
			Positives:  2,
			Rows: []sweep.Row{
				sweep.NewRow(0.75, confusion.Count{TP: 1, FN: 1}, 0.5),
				sweep.NewRow(0.25, confusion.Count{TP: 2, FP: 1}, 0.5),
			},
		},
		{
			CategoryID: 7,
			Mode:       taxonomy.ModeFine,
			Rows:       []sweep.Row{{Threshold: 0.01}},
			Degenerate: true,
		},
	}
}

func TestEvaluationStore_InsertGet(t *testing.T) {
	store := setupTestStore(t)

	run := &EvaluationRun{
		Mode:            taxonomy.ModeFine,
		Samples:         3,
		MicroAUPRC:      0.6,
		MacroAUPRC:      0.4,
		PredictionsPath: "pred.csv",
		ParamsJSON:      json.RawMessage(`{"min_threshold":0.01}`),
		Curves:          fixtureCurves(),
	}
	require.NoError(t, store.Insert(run))
	assert.NotEmpty(t, run.RunID)
	assert.NotZero(t, run.CreatedAt)

	got, err := store.Get(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.RunID, got.RunID)
	assert.Equal(t, taxonomy.ModeFine, got.Mode)
	assert.Equal(t, 3, got.Samples)
	assert.Equal(t, 0.6, got.MicroAUPRC)
	assert.Equal(t, 0.4, got.MacroAUPRC)
	assert.Equal(t, "pred.csv", got.PredictionsPath)
	assert.Equal(t, "", got.AnnotationsPath)
	assert.JSONEq(t, `{"min_threshold":0.01}`, string(got.ParamsJSON))
	assert.Equal(t, run.CreatedAt, got.CreatedAt)
	assert.Nil(t, got.Curves)
}

func TestEvaluationStore_Curves(t *testing.T) {
	store := setupTestStore(t)
	curves := fixtureCurves()
	run := &EvaluationRun{RunID: "run-1", Mode: taxonomy.ModeFine, Curves: curves}
	require.NoError(t, store.Insert(run))

	got, err := store.Curves("run-1")
	require.NoError(t, err)
	if diff := cmp.Diff(curves, got); diff != "" {
		t.Errorf("curves mismatch (-want +got):\n%s", diff)
	}

	_, err = store.Curves("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEvaluationStore_DuplicateID(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.Insert(&EvaluationRun{RunID: "dup", Mode: taxonomy.ModeCoarse}))
	assert.Error(t, store.Insert(&EvaluationRun{RunID: "dup", Mode: taxonomy.ModeCoarse}))
}

func TestEvaluationStore_ListByMode(t *testing.T) {
	store := setupTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixNano()

	for i, mode := range []taxonomy.Mode{taxonomy.ModeFine, taxonomy.ModeCoarse, taxonomy.ModeFine} {
		run := &EvaluationRun{Mode: mode, CreatedAt: base + int64(i)}
		require.NoError(t, store.Insert(run))
	}

	fine, err := store.ListByMode(taxonomy.ModeFine)
	require.NoError(t, err)
	require.Len(t, fine, 2)
	assert.Equal(t, base+2, fine[0].CreatedAt)
	assert.Equal(t, base, fine[1].CreatedAt)

	coarse, err := store.ListByMode(taxonomy.ModeCoarse)
	require.NoError(t, err)
	assert.Len(t, coarse, 1)

	none, err := store.ListByMode("other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEvaluationStore_Delete(t *testing.T) {
	store := setupTestStore(t)
	run := &EvaluationRun{Mode: taxonomy.ModeFine, Curves: fixtureCurves()}
	require.NoError(t, store.Insert(run))

	require.NoError(t, store.Delete(run.RunID))

	_, err := store.Get(run.RunID)
	assert.ErrorIs(t, err, ErrNotFound)

	var n int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM evaluation_curve_rows WHERE run_id = ?`, run.RunID).Scan(&n))
	assert.Equal(t, 0, n)

	err = store.Delete(run.RunID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNewEvaluationRun(t *testing.T) {
	curves := fixtureCurves()
	micro := curves[0]
	micro.CategoryID = 0
	res := &evaluation.Result{
		Mode:    taxonomy.ModeFine,
		Samples: 3,
		Categories: []evaluation.CategoryResult{
			{ID: 1, Name: "engine", Curve: curves[0]},
			{ID: 7, Name: "dog", Curve: curves[1]},
		},
		MicroAUPRC: 0.5,
		MacroAUPRC: 0.25,
		MicroCurve: micro,
	}
	paths := evaluation.Paths{Predictions: "p.csv", Annotations: "a.csv"}

	run, err := NewEvaluationRun(res, paths, config.DefaultEvalConfig())
	require.NoError(t, err)
	assert.Equal(t, "a.csv", run.AnnotationsPath)
	require.Len(t, run.Curves, 3)
	assert.Equal(t, 0, run.Curves[2].CategoryID)

	var params config.EvalConfig
	require.NoError(t, json.Unmarshal(run.ParamsJSON, &params))
	assert.Equal(t, config.DefaultMinThreshold, params.GetMinThreshold())

	store := setupTestStore(t)
	require.NoError(t, store.Insert(run))
	stored, err := store.Curves(run.RunID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, []int{0, 1, 7}, []int{stored[0].CategoryID, stored[1].CategoryID, stored[2].CategoryID})

	_, err = NewEvaluationRun(res, paths, func() {})
	assert.Error(t, err)
}
