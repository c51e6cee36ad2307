// Package auprc reduces per-category curves to areas under the
// precision-recall curve, either averaged over categories (macro) or over
// pooled counts (micro).
package auprc

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/tagging-eval/internal/config"
	"github.com/banshee-data/tagging-eval/internal/confusion"
	"github.com/banshee-data/tagging-eval/internal/sweep"
	"github.com/banshee-data/tagging-eval/internal/taxonomy"
)

// ErrNoCategories is returned when there are no curves to aggregate.
var ErrNoCategories = taxonomy.ErrNoCategories

// ErrAxisMismatch is returned by Micro for curves that were not swept on the
// same thresholds.
var ErrAxisMismatch = errors.New("auprc: curves do not share a threshold axis")

// Aggregator pools curves using PrecisionFloor for the pooled metrics.
type Aggregator struct {
	PrecisionFloor float64
}

// Default is the aggregator used by the package-level functions.
var Default = Aggregator{PrecisionFloor: config.DefaultPrecisionFloor}

// Area returns the area under the precision-recall curve of c. The curve is
// closed with (R=0, P=1) at the high-threshold end and (R=1, P=0) at the
// low-threshold end, ordered by recall and integrated with the trapezoid
// rule.
func Area(c sweep.Curve) float64 {
	type point struct{ r, p float64 }
	pts := make([]point, 0, len(c.Rows)+2)
	pts = append(pts, point{r: 0, p: 1})
	for _, row := range c.Rows {
		pts = append(pts, point{r: row.Recall, p: row.Precision})
	}
	pts = append(pts, point{r: 1, p: 0})

	// Fine-mode recall need not be monotone in the threshold.
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].r < pts[j].r })

	x := make([]float64, len(pts))
	f := make([]float64, len(pts))
	for i, pt := range pts {
		x[i], f[i] = pt.r, pt.p
	}
	return integrate.Trapezoidal(x, f)
}

// Macro returns the unweighted mean of the per-category areas.
func Macro(curves []sweep.Curve) (float64, error) {
	if len(curves) == 0 {
		return 0, ErrNoCategories
	}
	areas := make([]float64, len(curves))
	for i, c := range curves {
		areas[i] = Area(c)
	}
	return stat.Mean(areas, nil), nil
}

// Micro pools counts across categories with Default.
func Micro(curves []sweep.Curve) (float64, sweep.Curve, error) {
	return Default.Micro(curves)
}

// Micro pools TP, FP and FN across curves swept on one shared threshold
// axis (sweep.Axis, then Engine.SweepAllAt) and returns the pooled curve and
// its area. Row i of every curve must sit at the same threshold. Either all
// curves are degenerate, and so is the pooled curve, or none is. The pooled
// curve has CategoryID 0.
func (a Aggregator) Micro(curves []sweep.Curve) (float64, sweep.Curve, error) {
	if len(curves) == 0 {
		return 0, sweep.Curve{}, ErrNoCategories
	}
	first := curves[0]
	pooled := sweep.Curve{Mode: first.Mode, Degenerate: first.Degenerate}
	for _, c := range curves {
		if c.Mode != first.Mode {
			return 0, sweep.Curve{}, fmt.Errorf("curves mix %s and %s modes", first.Mode, c.Mode)
		}
		if c.Degenerate != first.Degenerate {
			return 0, sweep.Curve{}, fmt.Errorf("%w: category %d degenerate=%t, category %d degenerate=%t",
				ErrAxisMismatch, first.CategoryID, first.Degenerate, c.CategoryID, c.Degenerate)
		}
		if len(c.Rows) != len(first.Rows) {
			return 0, sweep.Curve{}, fmt.Errorf("%w: category %d has %d rows, category %d has %d",
				ErrAxisMismatch, first.CategoryID, len(first.Rows), c.CategoryID, len(c.Rows))
		}
		for i, r := range c.Rows {
			if r.Threshold != first.Rows[i].Threshold {
				return 0, sweep.Curve{}, fmt.Errorf("%w: row %d of category %d is at %g, category %d at %g",
					ErrAxisMismatch, i, c.CategoryID, r.Threshold, first.CategoryID, first.Rows[i].Threshold)
			}
		}
		pooled.Positives += c.Positives
	}

	pooled.Rows = make([]sweep.Row, len(first.Rows))
	for i := range pooled.Rows {
		var total confusion.Count
		for _, c := range curves {
			total = total.Add(c.Rows[i].Count)
		}
		pooled.Rows[i] = sweep.NewRow(first.Rows[i].Threshold, total, a.PrecisionFloor)
	}
	return Area(pooled), pooled, nil
}
