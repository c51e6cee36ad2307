// Package labels is the table adapter of the tagging evaluator. It loads
// prediction and annotation files, renames their columns onto typed
// taxonomy tags, aligns samples between the two, and patches missing
// columns with zeros so that evaluation always completes.
package labels

import (
	"errors"
	"fmt"

	"github.com/banshee-data/tagging-eval/internal/confusion"
	"github.com/banshee-data/tagging-eval/internal/taxonomy"
)

var (
	// ErrShapeMismatch reports tables whose samples or columns cannot be
	// aligned. It is the same sentinel as confusion.ErrShapeMismatch.
	ErrShapeMismatch = confusion.ErrShapeMismatch

	// ErrMissingColumn marks a taxonomy tag absent from a file. It is
	// carried inside a Warning; only a missing sample id column is fatal.
	ErrMissingColumn = errors.New("labels: column not found")

	// ErrUnmatchedSample marks a prediction row with no ground truth.
	ErrUnmatchedSample = errors.New("labels: sample has no ground truth")
)

// Warning describes a condition that was patched with a default value.
type Warning struct {
	Err    error
	Tag    taxonomy.Tag
	Column string
	Sample string
}

func (w Warning) String() string {
	switch {
	case errors.Is(w.Err, ErrMissingColumn):
		return fmt.Sprintf("%v: %s (tag %s, substituted zeros)", w.Err, w.Column, w.Tag)
	case w.Sample != "":
		return fmt.Sprintf("%v: %s (dropped)", w.Err, w.Sample)
	case w.Tag != (taxonomy.Tag{}):
		return fmt.Sprintf("%v: %s", w.Err, w.Tag)
	}
	return fmt.Sprint(w.Err)
}

// Table holds one value per sample and per tag, stored column-major and
// addressed through the taxonomy's ColumnIndex. Tables are read-only after
// construction.
type Table struct {
	mode    taxonomy.Mode
	columns taxonomy.ColumnIndex
	samples []string
	rows    map[string]int
	values  [][]float64
}

// NewTable builds a table from column-major values: values[c][r] is the
// value of column c for sample r. Every column of the mode's layout must be
// present and sample ids must be unique.
func NewTable(tax *taxonomy.Taxonomy, mode taxonomy.Mode, samples []string, values [][]float64) (*Table, error) {
	columns := tax.Columns(mode)
	if len(values) != columns.Len() {
		return nil, fmt.Errorf("%w: %d columns, taxonomy has %d", ErrShapeMismatch, len(values), columns.Len())
	}
	for c, col := range values {
		if len(col) != len(samples) {
			return nil, fmt.Errorf("%w: column %s has %d rows, want %d",
				ErrShapeMismatch, columns.Tags()[c], len(col), len(samples))
		}
	}
	rows := make(map[string]int, len(samples))
	for i, id := range samples {
		if _, dup := rows[id]; dup {
			return nil, fmt.Errorf("%w: duplicate sample %q", ErrShapeMismatch, id)
		}
		rows[id] = i
	}
	return &Table{
		mode:    mode,
		columns: columns,
		samples: append([]string(nil), samples...),
		rows:    rows,
		values:  values,
	}, nil
}

// Len returns the number of samples.
func (t *Table) Len() int { return len(t.samples) }

// Mode returns the evaluation mode the table was laid out for.
func (t *Table) Mode() taxonomy.Mode { return t.mode }

// SampleIDs returns the sample ids in row order.
func (t *Table) SampleIDs() []string { return append([]string(nil), t.samples...) }

// Row returns the row of a sample id.
func (t *Table) Row(sample string) (int, bool) {
	r, ok := t.rows[sample]
	return r, ok
}

// Column returns the values of tag in row order. The returned slice is
// shared with the table and must not be modified.
func (t *Table) Column(tag taxonomy.Tag) ([]float64, bool) {
	c, ok := t.columns.Index(tag)
	if !ok {
		return nil, false
	}
	return t.values[c], true
}

// Value returns the value of tag in row r, or 0 when the tag is not a
// column of this table.
func (t *Table) Value(r int, tag taxonomy.Tag) float64 {
	col, ok := t.Column(tag)
	if !ok {
		return 0
	}
	return col[r]
}

// Bool reports whether tag is present in row r (value > 0).
func (t *Table) Bool(r int, tag taxonomy.Tag) bool {
	return t.Value(r, tag) > 0
}

// Align returns pred reordered to the sample order of truth. Samples in
// truth that pred lacks are fatal; extra prediction rows are dropped and
// reported as warnings.
func Align(pred, truth *Table) (*Table, []Warning, error) {
	if pred.mode != truth.mode || pred.columns.Len() != truth.columns.Len() {
		return nil, nil, fmt.Errorf("%w: prediction table is %s with %d columns, ground truth is %s with %d",
			ErrShapeMismatch, pred.mode, pred.columns.Len(), truth.mode, truth.columns.Len())
	}

	order := make([]int, len(truth.samples))
	var missing []string
	for i, id := range truth.samples {
		r, ok := pred.rows[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		order[i] = r
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: %d ground truth samples have no prediction (first: %q)",
			ErrShapeMismatch, len(missing), missing[0])
	}

	var warnings []Warning
	for _, id := range pred.samples {
		if _, ok := truth.rows[id]; !ok {
			warnings = append(warnings, Warning{Err: ErrUnmatchedSample, Sample: id})
		}
	}

	values := make([][]float64, len(pred.values))
	for c, col := range pred.values {
		aligned := make([]float64, len(order))
		for i, r := range order {
			aligned[i] = col[r]
		}
		values[c] = aligned
	}

	rows := make(map[string]int, len(truth.samples))
	for i, id := range truth.samples {
		rows[id] = i
	}
	return &Table{
		mode:    pred.mode,
		columns: pred.columns,
		samples: append([]string(nil), truth.samples...),
		rows:    rows,
		values:  values,
	}, warnings, nil
}
