package sweep

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/tagging-eval/internal/config"
	"github.com/banshee-data/tagging-eval/internal/confusion"
	"github.com/banshee-data/tagging-eval/internal/labels"
	"github.com/banshee-data/tagging-eval/internal/monitoring"
	"github.com/banshee-data/tagging-eval/internal/taxonomy"
)

// Engine sweeps thresholds for one evaluation run. The zero value is not
// usable; build one with NewEngine.
type Engine struct {
	MinThreshold   float64
	PrecisionFloor float64
	Parallelism    int
}

// NewEngine builds an engine from cfg. A nil cfg uses the defaults.
func NewEngine(cfg *config.EvalConfig) *Engine {
	if cfg == nil {
		cfg = config.EmptyEvalConfig()
	}
	return &Engine{
		MinThreshold:   cfg.GetMinThreshold(),
		PrecisionFloor: cfg.GetPrecisionFloor(),
		Parallelism:    cfg.GetParallelism(),
	}
}

// Sweep computes the curve of one category. pred and truth must be aligned
// (same samples in the same order) and laid out for mode.
func (e *Engine) Sweep(cat taxonomy.Category, pred, truth *labels.Table, mode taxonomy.Mode) (Curve, error) {
	count, curve, err := e.prepare(cat, pred, truth, mode)
	if err != nil {
		return Curve{}, err
	}
	thresholds, err := e.thresholds(cat, pred, mode)
	if err != nil {
		return Curve{}, fmt.Errorf("category %d: %w", cat.ID, err)
	}
	if len(thresholds) == 0 {
		monitoring.Warnf("category %d: no scores at or above %g, curve is degenerate", cat.ID, e.MinThreshold)
	}
	return e.fill(cat, curve, count, thresholds)
}

// SweepAt computes the curve of one category at every threshold of axis by
// counting again at each of them, whether or not the category has a score
// there. axis must be strictly decreasing. An empty axis gives a degenerate
// curve.
func (e *Engine) SweepAt(cat taxonomy.Category, pred, truth *labels.Table, mode taxonomy.Mode, axis []float64) (Curve, error) {
	for i := 1; i < len(axis); i++ {
		if !(axis[i] < axis[i-1]) {
			return Curve{}, fmt.Errorf("category %d: %w: %g follows %g", cat.ID, ErrUnorderedAxis, axis[i], axis[i-1])
		}
	}
	count, curve, err := e.prepare(cat, pred, truth, mode)
	if err != nil {
		return Curve{}, err
	}
	return e.fill(cat, curve, count, axis)
}

// prepare checks the tables and returns the counter for cat along with an
// empty curve carrying the category's positives.
func (e *Engine) prepare(cat taxonomy.Category, pred, truth *labels.Table, mode taxonomy.Mode) (func(float64) (confusion.Count, error), Curve, error) {
	if pred.Len() != truth.Len() {
		return nil, Curve{}, fmt.Errorf("category %d: %w: %d predicted samples, %d ground truth",
			cat.ID, labels.ErrShapeMismatch, pred.Len(), truth.Len())
	}
	if pred.Mode() != mode || truth.Mode() != mode {
		return nil, Curve{}, fmt.Errorf("category %d: %w: tables are %s/%s, sweeping %s",
			cat.ID, labels.ErrShapeMismatch, pred.Mode(), truth.Mode(), mode)
	}

	var (
		count func(threshold float64) (confusion.Count, error)
		err   error
	)
	if mode == taxonomy.ModeCoarse {
		count, err = coarseCounter(cat, pred, truth)
	} else {
		count, err = fineCounter(cat, pred, truth)
	}
	if err != nil {
		return nil, Curve{}, fmt.Errorf("category %d: %w", cat.ID, err)
	}

	// Nothing is predicted above +Inf, so every positive is a miss.
	none, err := count(math.Inf(1))
	if err != nil {
		return nil, Curve{}, fmt.Errorf("category %d: %w", cat.ID, err)
	}
	return count, Curve{CategoryID: cat.ID, Mode: mode, Positives: none.Positives()}, nil
}

func (e *Engine) fill(cat taxonomy.Category, curve Curve, count func(float64) (confusion.Count, error), thresholds []float64) (Curve, error) {
	if len(thresholds) == 0 {
		curve.Degenerate = true
		curve.Rows = []Row{{Threshold: e.MinThreshold}}
		return curve, nil
	}
	curve.Rows = make([]Row, len(thresholds))
	for i, tau := range thresholds {
		c, err := count(tau)
		if err != nil {
			return Curve{}, fmt.Errorf("category %d at threshold %g: %w", cat.ID, tau, err)
		}
		curve.Rows[i] = NewRow(tau, c, e.PrecisionFloor)
	}
	return curve, nil
}

// SweepAll sweeps every category of tax, at most Parallelism at a time.
// Curves are returned in taxonomy order.
func (e *Engine) SweepAll(ctx context.Context, tax *taxonomy.Taxonomy, pred, truth *labels.Table, mode taxonomy.Mode) ([]Curve, error) {
	return e.each(ctx, tax, func(cat taxonomy.Category) (Curve, error) {
		return e.Sweep(cat, pred, truth, mode)
	})
}

// SweepAllAt is SweepAll on one shared threshold axis, as built by Axis.
// Row i of every returned curve is at axis[i].
func (e *Engine) SweepAllAt(ctx context.Context, tax *taxonomy.Taxonomy, pred, truth *labels.Table, mode taxonomy.Mode, axis []float64) ([]Curve, error) {
	return e.each(ctx, tax, func(cat taxonomy.Category) (Curve, error) {
		return e.SweepAt(cat, pred, truth, mode, axis)
	})
}

func (e *Engine) each(ctx context.Context, tax *taxonomy.Taxonomy, sweepOne func(taxonomy.Category) (Curve, error)) ([]Curve, error) {
	cats := tax.Categories()
	curves := make([]Curve, len(cats))

	g, ctx := errgroup.WithContext(ctx)
	if e.Parallelism > 0 {
		g.SetLimit(e.Parallelism)
	}
	for i, cat := range cats {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			curve, err := sweepOne(cat)
			if err != nil {
				return err
			}
			curves[i] = curve
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return curves, nil
}

// thresholds pools the category's scores, drops those below MinThreshold
// and returns the distinct values in decreasing order.
func (e *Engine) thresholds(cat taxonomy.Category, pred *labels.Table, mode taxonomy.Mode) ([]float64, error) {
	seen := make(map[float64]struct{})
	var out []float64
	for _, tag := range cat.SweepTags(mode) {
		col, ok := pred.Column(tag)
		if !ok {
			return nil, fmt.Errorf("%w: predictions have no column for %s", labels.ErrShapeMismatch, tag)
		}
		for _, v := range col {
			if v < e.MinThreshold || math.IsNaN(v) {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(out)))
	return out, nil
}

func columns(t *labels.Table, tags []taxonomy.Tag) ([][]float64, error) {
	cols := make([][]float64, len(tags))
	for i, tag := range tags {
		col, ok := t.Column(tag)
		if !ok {
			return nil, fmt.Errorf("%w: table has no column for %s", labels.ErrShapeMismatch, tag)
		}
		cols[i] = col
	}
	return cols, nil
}

func coarseCounter(cat taxonomy.Category, pred, truth *labels.Table) (func(float64) (confusion.Count, error), error) {
	tags := []taxonomy.Tag{cat.Tag()}
	pcols, err := columns(pred, tags)
	if err != nil {
		return nil, err
	}
	tcols, err := columns(truth, tags)
	if err != nil {
		return nil, err
	}
	yTrue := make([]bool, truth.Len())
	for n, v := range tcols[0] {
		yTrue[n] = v > 0
	}
	yPred := make([]bool, pred.Len())
	return func(tau float64) (confusion.Count, error) {
		for n, v := range pcols[0] {
			yPred[n] = v > tau
		}
		return confusion.CountCoarse(yTrue, yPred)
	}, nil
}

func fineCounter(cat taxonomy.Category, pred, truth *labels.Table) (func(float64) (confusion.Count, error), error) {
	tags := append(cat.FineTags(), cat.IncompleteTag())
	pcols, err := columns(pred, tags)
	if err != nil {
		return nil, err
	}
	tcols, err := columns(truth, tags)
	if err != nil {
		return nil, err
	}
	k := len(tags) - 1
	n := truth.Len()

	yTrue := make([][]bool, n)
	yPred := make([][]bool, n)
	trueIncomplete := make([]bool, n)
	predIncomplete := make([]bool, n)
	for r := 0; r < n; r++ {
		yTrue[r] = make([]bool, k)
		yPred[r] = make([]bool, k)
		for j := 0; j < k; j++ {
			yTrue[r][j] = tcols[j][r] > 0
		}
		trueIncomplete[r] = tcols[k][r] > 0
	}
	return func(tau float64) (confusion.Count, error) {
		for r := 0; r < n; r++ {
			for j := 0; j < k; j++ {
				yPred[r][j] = pcols[j][r] > tau
			}
			predIncomplete[r] = pcols[k][r] > tau
		}
		return confusion.CountFine(yTrue, yPred, trueIncomplete, predIncomplete)
	}, nil
}
