// Package report writes evaluation results as a flat curve CSV and a JSON
// summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/banshee-data/tagging-eval/internal/evaluation"
	"github.com/banshee-data/tagging-eval/internal/sweep"
)

// curveRecord is one CSV line: a curve row tagged with its category.
// Category 0 is the pooled micro-averaged curve.
type curveRecord struct {
	Category   int     `csv:"category"`
	Mode       string  `csv:"mode"`
	Threshold  float64 `csv:"threshold"`
	TP         int     `csv:"tp"`
	FP         int     `csv:"fp"`
	FN         int     `csv:"fn"`
	Precision  float64 `csv:"precision"`
	Recall     float64 `csv:"recall"`
	F1         float64 `csv:"f1"`
	Degenerate bool    `csv:"degenerate"`
}

func records(curves []sweep.Curve) []*curveRecord {
	var out []*curveRecord
	for _, c := range curves {
		for _, r := range c.Rows {
			out = append(out, &curveRecord{
				Category:   c.CategoryID,
				Mode:       string(c.Mode),
				Threshold:  r.Threshold,
				TP:         r.TP,
				FP:         r.FP,
				FN:         r.FN,
				Precision:  r.Precision,
				Recall:     r.Recall,
				F1:         r.F1,
				Degenerate: c.Degenerate,
			})
		}
	}
	return out
}

// WriteCurvesCSV writes every row of every curve, in curve order.
func WriteCurvesCSV(w io.Writer, curves []sweep.Curve) error {
	recs := records(curves)
	if len(recs) == 0 {
		return fmt.Errorf("no curve rows to write")
	}
	if err := gocsv.Marshal(recs, w); err != nil {
		return fmt.Errorf("write curves csv: %w", err)
	}
	return nil
}

// CategorySummary is the per-category part of a Summary.
type CategorySummary struct {
	ID         int       `json:"id"`
	Name       string    `json:"name"`
	AUPRC      float64   `json:"auprc"`
	Positives  int       `json:"positives"`
	Degenerate bool      `json:"degenerate,omitempty"`
	BestF1     sweep.Row `json:"best_f1"`
}

// Summary is the JSON document written by WriteSummaryJSON.
type Summary struct {
	Mode        string            `json:"mode"`
	Samples     int               `json:"samples"`
	MicroAUPRC  float64           `json:"micro_auprc"`
	MacroAUPRC  float64           `json:"macro_auprc"`
	MicroBestF1 sweep.Row         `json:"micro_best_f1"`
	Categories  []CategorySummary `json:"categories"`
	Warnings    []string          `json:"warnings,omitempty"`
}

// NewSummary condenses a result into its scalar metrics and best-F1
// operating points.
func NewSummary(res *evaluation.Result) Summary {
	s := Summary{
		Mode:        string(res.Mode),
		Samples:     res.Samples,
		MicroAUPRC:  res.MicroAUPRC,
		MacroAUPRC:  res.MacroAUPRC,
		MicroBestF1: res.MicroCurve.BestF1(),
		Categories:  make([]CategorySummary, len(res.Categories)),
	}
	for i, c := range res.Categories {
		s.Categories[i] = CategorySummary{
			ID:         c.ID,
			Name:       c.Name,
			AUPRC:      c.AUPRC,
			Positives:  c.Curve.Positives,
			Degenerate: c.Curve.Degenerate,
			BestF1:     c.Curve.BestF1(),
		}
	}
	for _, w := range res.Warnings {
		s.Warnings = append(s.Warnings, w.String())
	}
	return s
}

// WriteSummaryJSON writes NewSummary(res) as indented JSON.
func WriteSummaryJSON(w io.Writer, res *evaluation.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewSummary(res)); err != nil {
		return fmt.Errorf("write summary json: %w", err)
	}
	return nil
}
