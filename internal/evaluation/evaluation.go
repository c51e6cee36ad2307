// Package evaluation runs one complete evaluation: it aligns predictions
// with ground truth, sweeps every category and reduces the curves to
// micro- and macro-averaged AUPRC.
package evaluation

import (
	"context"
	"fmt"

	"github.com/banshee-data/tagging-eval/internal/auprc"
	"github.com/banshee-data/tagging-eval/internal/config"
	"github.com/banshee-data/tagging-eval/internal/labels"
	"github.com/banshee-data/tagging-eval/internal/monitoring"
	"github.com/banshee-data/tagging-eval/internal/sweep"
	"github.com/banshee-data/tagging-eval/internal/taxonomy"
)

// ErrNoCategories is returned for a nil or empty taxonomy.
var ErrNoCategories = taxonomy.ErrNoCategories

// Input is everything one run needs. Mode defaults to Config's mode and a
// nil Config uses the defaults. Warnings raised while loading the tables
// are carried into the Result.
type Input struct {
	Taxonomy    *taxonomy.Taxonomy
	Predictions *labels.Table
	GroundTruth *labels.Table
	Mode        taxonomy.Mode
	Config      *config.EvalConfig
	Warnings    []labels.Warning
}

// CategoryResult is the outcome for one coarse category.
type CategoryResult struct {
	ID    int
	Name  string
	AUPRC float64
	Curve sweep.Curve
}

// Result is the outcome of one run. Categories are in taxonomy order.
type Result struct {
	Mode       taxonomy.Mode
	Samples    int
	Categories []CategoryResult
	MicroAUPRC float64
	MacroAUPRC float64
	MicroCurve sweep.Curve
	Warnings   []labels.Warning
}

// Curves returns the per-category curves in taxonomy order.
func (r *Result) Curves() []sweep.Curve {
	curves := make([]sweep.Curve, len(r.Categories))
	for i, c := range r.Categories {
		curves[i] = c.Curve
	}
	return curves
}

// Run evaluates in.Predictions against in.GroundTruth.
func Run(ctx context.Context, in Input) (*Result, error) {
	if in.Taxonomy == nil || in.Taxonomy.Len() == 0 {
		return nil, ErrNoCategories
	}
	if in.Predictions == nil || in.GroundTruth == nil {
		return nil, fmt.Errorf("%w: predictions and ground truth are both required", labels.ErrShapeMismatch)
	}
	cfg := in.Config
	if cfg == nil {
		cfg = config.EmptyEvalConfig()
	}
	mode := in.Mode
	if mode == "" {
		m, err := taxonomy.ParseMode(cfg.GetMode())
		if err != nil {
			return nil, err
		}
		mode = m
	}

	pred, warnings, err := labels.Align(in.Predictions, in.GroundTruth)
	if err != nil {
		return nil, fmt.Errorf("align: %w", err)
	}
	for _, w := range warnings {
		monitoring.Warnf("%s", w)
	}
	warnings = append(append([]labels.Warning(nil), in.Warnings...), warnings...)

	engine := sweep.NewEngine(cfg)
	curves, err := engine.SweepAll(ctx, in.Taxonomy, pred, in.GroundTruth, mode)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}
	// Micro pooling counts every category again at every pooled threshold.
	pooledAxis, err := engine.SweepAllAt(ctx, in.Taxonomy, pred, in.GroundTruth, mode, sweep.Axis(curves))
	if err != nil {
		return nil, fmt.Errorf("sweep pooled axis: %w", err)
	}

	agg := auprc.Aggregator{PrecisionFloor: cfg.GetPrecisionFloor()}
	micro, microCurve, err := agg.Micro(pooledAxis)
	if err != nil {
		return nil, fmt.Errorf("micro auprc: %w", err)
	}
	macro, err := auprc.Macro(curves)
	if err != nil {
		return nil, fmt.Errorf("macro auprc: %w", err)
	}

	res := &Result{
		Mode:       mode,
		Samples:    in.GroundTruth.Len(),
		Categories: make([]CategoryResult, len(curves)),
		MicroAUPRC: micro,
		MacroAUPRC: macro,
		MicroCurve: microCurve,
	}
	for i, cat := range in.Taxonomy.Categories() {
		c := curves[i]
		res.Categories[i] = CategoryResult{ID: cat.ID, Name: cat.Name, AUPRC: auprc.Area(c), Curve: c}
		if c.Degenerate {
			warnings = append(warnings, labels.Warning{Err: sweep.ErrDegenerateCurve, Tag: cat.Tag()})
		}
	}
	res.Warnings = warnings

	monitoring.Logf("evaluated %d samples over %d categories (%s): micro AUPRC %.4f, macro AUPRC %.4f",
		res.Samples, len(res.Categories), mode, micro, macro)
	return res, nil
}

// Paths names the three input files of RunFiles.
type Paths struct {
	Taxonomy    string
	Predictions string
	Annotations string
}

// RunFiles loads the taxonomy and both tables from disk and calls Run. The
// annotator filter and, when mode is empty, the mode come from cfg.
func RunFiles(ctx context.Context, paths Paths, mode taxonomy.Mode, cfg *config.EvalConfig) (*Result, error) {
	if cfg == nil {
		cfg = config.EmptyEvalConfig()
	}
	if mode == "" {
		m, err := taxonomy.ParseMode(cfg.GetMode())
		if err != nil {
			return nil, err
		}
		mode = m
	}

	tax, err := taxonomy.LoadFile(paths.Taxonomy)
	if err != nil {
		return nil, err
	}
	pred, predWarnings, err := labels.LoadPredictionsFile(paths.Predictions, tax, mode)
	if err != nil {
		return nil, err
	}
	truth, truthWarnings, err := labels.LoadGroundTruthFile(paths.Annotations, tax, mode, cfg.GetAnnotatorID())
	if err != nil {
		return nil, err
	}

	return Run(ctx, Input{
		Taxonomy:    tax,
		Predictions: pred,
		GroundTruth: truth,
		Mode:        mode,
		Config:      cfg,
		Warnings:    append(predWarnings, truthWarnings...),
	})
}
