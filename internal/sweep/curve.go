// Package sweep turns per-sample scores into precision/recall/F1 curves by
// sweeping a decision threshold over every distinct score of a category.
package sweep

import (
	"errors"
	"math"
	"sort"

	"github.com/banshee-data/tagging-eval/internal/confusion"
	"github.com/banshee-data/tagging-eval/internal/taxonomy"
)

// ErrDegenerateCurve marks a category with no score at or above the
// minimum threshold.
var ErrDegenerateCurve = errors.New("sweep: no candidate thresholds")

// ErrUnorderedAxis is returned by SweepAt for an axis that is not strictly
// decreasing.
var ErrUnorderedAxis = errors.New("sweep: threshold axis not strictly decreasing")

// Row is one point of a curve: the counts and metrics obtained by
// predicting every tag whose score is strictly greater than Threshold.
type Row struct {
	Threshold float64 `json:"threshold"`
	confusion.Count
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Curve is the sweep result of one coarse category. Rows are ordered by
// strictly decreasing threshold.
type Curve struct {
	CategoryID int           `json:"category_id"`
	Mode       taxonomy.Mode `json:"mode"`
	Rows       []Row         `json:"rows"`

	// Positives is TP + FN, the same at every threshold.
	Positives int `json:"positives"`

	// Degenerate is set when no score reached the minimum threshold. Rows
	// then holds a single all-zero row at the minimum threshold.
	Degenerate bool `json:"degenerate,omitempty"`
}

// BestF1 returns the row with the highest F1. Ties go to the higher
// threshold.
func (c Curve) BestF1() Row {
	var best Row
	for i, r := range c.Rows {
		if i == 0 || r.F1 > best.F1 {
			best = r
		}
	}
	return best
}

// Metrics computes precision, recall and F1 from a count. Both denominators
// are floored at floor so that empty predictions or empty ground truth give
// zero instead of NaN. F1 is 1/(1/P + 1/R), which is 0 whenever TP is 0.
func Metrics(c confusion.Count, floor float64) (precision, recall, f1 float64) {
	tp := float64(c.TP)
	precision = tp / math.Max(float64(c.TP+c.FP), floor)
	recall = tp / math.Max(float64(c.TP+c.FN), floor)
	f1 = 1 / (1/precision + 1/recall)
	return precision, recall, f1
}

// NewRow builds a row from a count at a threshold.
func NewRow(threshold float64, c confusion.Count, floor float64) Row {
	p, r, f1 := Metrics(c, floor)
	return Row{Threshold: threshold, Count: c, Precision: p, Recall: r, F1: f1}
}

// Axis returns the union of the thresholds of the non-degenerate curves in
// decreasing order. It is empty when every curve is degenerate.
func Axis(curves []Curve) []float64 {
	seen := make(map[float64]struct{})
	var axis []float64
	for _, c := range curves {
		if c.Degenerate {
			continue
		}
		for _, r := range c.Rows {
			if _, dup := seen[r.Threshold]; !dup {
				seen[r.Threshold] = struct{}{}
				axis = append(axis, r.Threshold)
			}
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(axis)))
	return axis
}
