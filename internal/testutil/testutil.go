// Package testutil provides shared test fixtures for the evaluator: a small
// taxonomy and builders for prediction/annotation files and tables.
package testutil

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/banshee-data/tagging-eval/internal/labels"
	"github.com/banshee-data/tagging-eval/internal/taxonomy"
)

// TaxonomyYAML has two categories with incomplete markers and one (dog)
// with a single fine tag and no marker.
const TaxonomyYAML = `coarse:
  1: engine
  2: machinery-impact
  7: dog
fine:
  1:
    1: small-sounding-engine
    2: medium-sounding-engine
    X: engine-of-uncertain-size
  2:
    1: rock-drill
    X: other-unknown-impact-machinery
  7:
    1: dog-barking-whining
`

// Taxonomy parses TaxonomyYAML.
func Taxonomy(t testing.TB) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.Load(strings.NewReader(TaxonomyYAML))
	if err != nil {
		t.Fatalf("load fixture taxonomy: %v", err)
	}
	return tax
}

// Sample is one fixture row. Tags not in Values are 0. Annotator is only
// written to annotation files.
type Sample struct {
	ID        string
	Annotator int
	Values    map[taxonomy.Tag]float64
}

func writeCSV(t testing.TB, header []string, rows [][]string) string {
	t.Helper()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if err := w.WriteAll(rows); err != nil {
		t.Fatalf("write rows: %v", err)
	}
	return buf.String()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// PredictionsCSV renders samples as a predictions file for mode.
func PredictionsCSV(t testing.TB, tax *taxonomy.Taxonomy, mode taxonomy.Mode, samples []Sample) string {
	t.Helper()
	header := []string{taxonomy.SampleColumn}
	var tags []taxonomy.Tag
	for _, tag := range tax.Columns(mode).Tags() {
		if name, ok := tax.PredictionColumn(tag); ok {
			header = append(header, name)
			tags = append(tags, tag)
		}
	}
	rows := make([][]string, len(samples))
	for i, s := range samples {
		row := []string{s.ID}
		for _, tag := range tags {
			row = append(row, formatValue(s.Values[tag]))
		}
		rows[i] = row
	}
	return writeCSV(t, header, rows)
}

// AnnotationsCSV renders samples as an annotations file for mode,
// including the annotator_id column.
func AnnotationsCSV(t testing.TB, tax *taxonomy.Taxonomy, mode taxonomy.Mode, samples []Sample) string {
	t.Helper()
	header := []string{"split", taxonomy.SampleColumn, taxonomy.AnnotatorColumn}
	var tags []taxonomy.Tag
	for _, tag := range tax.Columns(mode).Tags() {
		if name, ok := tax.AnnotationColumn(tag); ok {
			header = append(header, name)
			tags = append(tags, tag)
		}
	}
	rows := make([][]string, len(samples))
	for i, s := range samples {
		row := []string{"validate", s.ID, strconv.Itoa(s.Annotator)}
		for _, tag := range tags {
			row = append(row, formatValue(s.Values[tag]))
		}
		rows[i] = row
	}
	return writeCSV(t, header, rows)
}

// Table builds a labels.Table directly from samples.
func Table(t testing.TB, tax *taxonomy.Taxonomy, mode taxonomy.Mode, samples []Sample) *labels.Table {
	t.Helper()
	tags := tax.Columns(mode).Tags()
	ids := make([]string, len(samples))
	values := make([][]float64, len(tags))
	for c := range values {
		values[c] = make([]float64, len(samples))
	}
	for r, s := range samples {
		ids[r] = s.ID
		for c, tag := range tags {
			values[c][r] = s.Values[tag]
		}
	}
	table, err := labels.NewTable(tax, mode, ids, values)
	if err != nil {
		t.Fatalf("build fixture table: %v", err)
	}
	return table
}

// WriteFile writes content to name inside a per-test temporary directory
// and returns the path.
func WriteFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
