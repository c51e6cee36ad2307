package labels_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tagging-eval/internal/labels"
	"github.com/banshee-data/tagging-eval/internal/monitoring"
	"github.com/banshee-data/tagging-eval/internal/taxonomy"
	"github.com/banshee-data/tagging-eval/internal/testutil"
)

func muteLogs(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}

func TestLoadPredictions_Fine(t *testing.T) {
	tax := testutil.Taxonomy(t)
	csvText := testutil.PredictionsCSV(t, tax, taxonomy.ModeFine, []testutil.Sample{
		{ID: "a.wav", Values: map[taxonomy.Tag]float64{taxonomy.FineTag(1, 1): 0.9, taxonomy.IncompleteTag(1): 0.3}},
		{ID: "b.wav", Values: map[taxonomy.Tag]float64{taxonomy.FineTag(7, 1): 0.6}},
	})

	table, warnings, err := labels.LoadPredictions(strings.NewReader(csvText), tax, taxonomy.ModeFine)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, []string{"a.wav", "b.wav"}, table.SampleIDs())
	assert.Equal(t, taxonomy.ModeFine, table.Mode())
	assert.Equal(t, 0.9, table.Value(0, taxonomy.FineTag(1, 1)))
	assert.Equal(t, 0.3, table.Value(0, taxonomy.IncompleteTag(1)))
	assert.Equal(t, 0.6, table.Value(1, taxonomy.FineTag(7, 1)))

	// Dog has no incomplete marker: the column exists and is all zero.
	col, ok := table.Column(taxonomy.IncompleteTag(7))
	require.True(t, ok)
	assert.Equal(t, []float64{0, 0}, col)

	// Coarse tags are not columns of a fine table.
	_, ok = table.Column(taxonomy.CoarseTag(1))
	assert.False(t, ok)
	assert.Equal(t, 0.0, table.Value(0, taxonomy.CoarseTag(1)))
}

func TestLoadPredictions_TabDelimited(t *testing.T) {
	tax := testutil.Taxonomy(t)
	csvText := "audio_filename\t1_engine\t2_machinery-impact\t7_dog\n" +
		"a.wav\t0.5\t0.25\t0\n" +
		"b.wav\t0.1\t0\t1\n"

	table, warnings, err := labels.LoadPredictions(strings.NewReader(csvText), tax, taxonomy.ModeCoarse)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 0.25, table.Value(0, taxonomy.CoarseTag(2)))
	assert.Equal(t, 1.0, table.Value(1, taxonomy.CoarseTag(7)))
}

func TestLoadPredictions_MissingColumn(t *testing.T) {
	muteLogs(t)
	tax := testutil.Taxonomy(t)
	csvText := "audio_filename,1_engine,7_dog\na.wav,0.5,0.2\n"

	table, warnings, err := labels.LoadPredictions(strings.NewReader(csvText), tax, taxonomy.ModeCoarse)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.ErrorIs(t, warnings[0].Err, labels.ErrMissingColumn)
	assert.Equal(t, taxonomy.CoarseTag(2), warnings[0].Tag)
	assert.Equal(t, "2_machinery-impact", warnings[0].Column)
	assert.Contains(t, warnings[0].String(), "2_machinery-impact")

	assert.Equal(t, 0.0, table.Value(0, taxonomy.CoarseTag(2)))
}

func TestLoadPredictions_Errors(t *testing.T) {
	tax := testutil.Taxonomy(t)
	testCases := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"no_sample_column", "1_engine,2_machinery-impact,7_dog\n0.1,0.2,0.3\n"},
		{"bad_number", "audio_filename,1_engine,2_machinery-impact,7_dog\na.wav,high,0,0\n"},
		{"duplicate_sample", "audio_filename,1_engine,2_machinery-impact,7_dog\na.wav,0,0,0\na.wav,1,0,0\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := labels.LoadPredictions(strings.NewReader(tc.text), tax, taxonomy.ModeCoarse)
			assert.Error(t, err)
		})
	}

	_, _, err := labels.LoadPredictions(strings.NewReader(
		"audio_filename,1_engine,2_machinery-impact,7_dog\na.wav,0,0,0\na.wav,1,0,0\n"), tax, taxonomy.ModeCoarse)
	assert.ErrorIs(t, err, labels.ErrShapeMismatch)
}

func TestLoadGroundTruth_FiltersAnnotator(t *testing.T) {
	tax := testutil.Taxonomy(t)
	csvText := testutil.AnnotationsCSV(t, tax, taxonomy.ModeFine, []testutil.Sample{
		{ID: "a.wav", Annotator: 0, Values: map[taxonomy.Tag]float64{taxonomy.FineTag(1, 2): 1}},
		{ID: "a.wav", Annotator: 12, Values: map[taxonomy.Tag]float64{taxonomy.FineTag(1, 1): 1}},
		{ID: "b.wav", Annotator: 0, Values: map[taxonomy.Tag]float64{taxonomy.IncompleteTag(2): 1}},
		{ID: "c.wav", Annotator: 5},
	})

	table, warnings, err := labels.LoadGroundTruth(strings.NewReader(csvText), tax, taxonomy.ModeFine, 0)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, []string{"a.wav", "b.wav"}, table.SampleIDs())
	assert.True(t, table.Bool(0, taxonomy.FineTag(1, 2)))
	assert.False(t, table.Bool(0, taxonomy.FineTag(1, 1)))
	assert.True(t, table.Bool(1, taxonomy.IncompleteTag(2)))

	r, ok := table.Row("b.wav")
	require.True(t, ok)
	assert.Equal(t, 1, r)
}

func TestLoadGroundTruth_Coarse(t *testing.T) {
	tax := testutil.Taxonomy(t)
	csvText := "annotator_id,audio_filename,high_engine_presence,high_machineryimpact_presence,high_dog_presence\n" +
		"0,a.wav,1,0,1\n" +
		"-1,a.wav,0,1,0\n"

	table, _, err := labels.LoadGroundTruth(strings.NewReader(csvText), tax, taxonomy.ModeCoarse, 0)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.True(t, table.Bool(0, taxonomy.CoarseTag(1)))
	assert.False(t, table.Bool(0, taxonomy.CoarseTag(2)))
	assert.True(t, table.Bool(0, taxonomy.CoarseTag(7)))
}

func TestLoadGroundTruth_Errors(t *testing.T) {
	tax := testutil.Taxonomy(t)

	_, _, err := labels.LoadGroundTruth(strings.NewReader("audio_filename,high_engine_presence\na.wav,1\n"), tax, taxonomy.ModeCoarse, 0)
	assert.ErrorIs(t, err, labels.ErrMissingColumn)

	_, _, err = labels.LoadGroundTruth(strings.NewReader("audio_filename,annotator_id\na.wav,zero\n"), tax, taxonomy.ModeCoarse, 0)
	assert.Error(t, err)
}

func TestNewTable_ShapeMismatch(t *testing.T) {
	tax := testutil.Taxonomy(t)

	_, err := labels.NewTable(tax, taxonomy.ModeCoarse, []string{"a"}, [][]float64{{1}})
	assert.ErrorIs(t, err, labels.ErrShapeMismatch)

	_, err = labels.NewTable(tax, taxonomy.ModeCoarse, []string{"a"}, [][]float64{{1}, {0, 1}, {0}})
	assert.ErrorIs(t, err, labels.ErrShapeMismatch)
}

func TestAlign(t *testing.T) {
	tax := testutil.Taxonomy(t)
	pred := testutil.Table(t, tax, taxonomy.ModeCoarse, []testutil.Sample{
		{ID: "b.wav", Values: map[taxonomy.Tag]float64{taxonomy.CoarseTag(1): 0.2}},
		{ID: "extra.wav", Values: map[taxonomy.Tag]float64{taxonomy.CoarseTag(1): 0.9}},
		{ID: "a.wav", Values: map[taxonomy.Tag]float64{taxonomy.CoarseTag(1): 0.7}},
	})
	truth := testutil.Table(t, tax, taxonomy.ModeCoarse, []testutil.Sample{
		{ID: "a.wav"},
		{ID: "b.wav"},
	})

	aligned, warnings, err := labels.Align(pred, truth)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.wav", "b.wav"}, aligned.SampleIDs())
	assert.Equal(t, 0.7, aligned.Value(0, taxonomy.CoarseTag(1)))
	assert.Equal(t, 0.2, aligned.Value(1, taxonomy.CoarseTag(1)))

	require.Len(t, warnings, 1)
	assert.ErrorIs(t, warnings[0].Err, labels.ErrUnmatchedSample)
	assert.Equal(t, "extra.wav", warnings[0].Sample)
}

func TestAlign_MissingPrediction(t *testing.T) {
	tax := testutil.Taxonomy(t)
	pred := testutil.Table(t, tax, taxonomy.ModeCoarse, []testutil.Sample{{ID: "a.wav"}})
	truth := testutil.Table(t, tax, taxonomy.ModeCoarse, []testutil.Sample{{ID: "a.wav"}, {ID: "b.wav"}})

	_, _, err := labels.Align(pred, truth)
	assert.ErrorIs(t, err, labels.ErrShapeMismatch)
}

func TestAlign_ModeMismatch(t *testing.T) {
	tax := testutil.Taxonomy(t)
	pred := testutil.Table(t, tax, taxonomy.ModeFine, []testutil.Sample{{ID: "a.wav"}})
	truth := testutil.Table(t, tax, taxonomy.ModeCoarse, []testutil.Sample{{ID: "a.wav"}})

	_, _, err := labels.Align(pred, truth)
	assert.ErrorIs(t, err, labels.ErrShapeMismatch)
}

func TestLoadFiles(t *testing.T) {
	tax := testutil.Taxonomy(t)
	samples := []testutil.Sample{{ID: "a.wav", Values: map[taxonomy.Tag]float64{taxonomy.CoarseTag(7): 1}}}
	predPath := testutil.WriteFile(t, "pred.csv", testutil.PredictionsCSV(t, tax, taxonomy.ModeCoarse, samples))
	annPath := testutil.WriteFile(t, "ann.csv", testutil.AnnotationsCSV(t, tax, taxonomy.ModeCoarse, samples))

	pred, _, err := labels.LoadPredictionsFile(predPath, tax, taxonomy.ModeCoarse)
	require.NoError(t, err)
	truth, _, err := labels.LoadGroundTruthFile(annPath, tax, taxonomy.ModeCoarse, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, pred.Value(0, taxonomy.CoarseTag(7)))
	assert.True(t, truth.Bool(0, taxonomy.CoarseTag(7)))

	_, _, err = labels.LoadPredictionsFile(predPath+".missing", tax, taxonomy.ModeCoarse)
	assert.Error(t, err)
}
