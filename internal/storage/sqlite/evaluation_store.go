package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/tagging-eval/internal/confusion"
	"github.com/banshee-data/tagging-eval/internal/evaluation"
	"github.com/banshee-data/tagging-eval/internal/sweep"
	"github.com/banshee-data/tagging-eval/internal/taxonomy"
)

// ErrNotFound is returned when no run has the requested ID.
var ErrNotFound = errors.New("sqlite: evaluation run not found")

// EvaluationRun is a persisted evaluation result.
type EvaluationRun struct {
	RunID           string          `json:"run_id"`
	Mode            taxonomy.Mode   `json:"mode"`
	Samples         int             `json:"samples"`
	MicroAUPRC      float64         `json:"micro_auprc"`
	MacroAUPRC      float64         `json:"macro_auprc"`
	PredictionsPath string          `json:"predictions_path,omitempty"`
	AnnotationsPath string          `json:"annotations_path,omitempty"`
	ParamsJSON      json.RawMessage `json:"params_json,omitempty"`
	CreatedAt       int64           `json:"created_at"`

	// Curves is written by Insert and filled only by Curves; Get and
	// ListByMode leave it nil.
	Curves []sweep.Curve `json:"curves,omitempty"`
}

// NewEvaluationRun builds a run from a result. params, if non-nil, is
// stored as JSON (typically the config.EvalConfig used). The pooled
// micro curve is included as category 0.
func NewEvaluationRun(res *evaluation.Result, paths evaluation.Paths, params interface{}) (*EvaluationRun, error) {
	run := &EvaluationRun{
		Mode:            res.Mode,
		Samples:         res.Samples,
		MicroAUPRC:      res.MicroAUPRC,
		MacroAUPRC:      res.MacroAUPRC,
		PredictionsPath: paths.Predictions,
		AnnotationsPath: paths.Annotations,
		Curves:          append(res.Curves(), res.MicroCurve),
	}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		run.ParamsJSON = b
	}
	return run, nil
}

// EvaluationStore provides persistence for evaluation runs.
type EvaluationStore struct {
	db *sql.DB
}

// NewEvaluationStore creates a new EvaluationStore.
func NewEvaluationStore(db *sql.DB) *EvaluationStore {
	return &EvaluationStore{db: db}
}

// Insert persists a run and all its curve rows in one transaction. If RunID
// is empty, a UUID is generated; a zero CreatedAt is set to now.
func (s *EvaluationStore) Insert(run *EvaluationRun) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}

	var paramsStr interface{}
	if len(run.ParamsJSON) > 0 {
		paramsStr = string(run.ParamsJSON)
	}

	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		_, err = tx.Exec(`
			INSERT INTO evaluation_runs (
				run_id, mode, samples, micro_auprc, macro_auprc,
				predictions_path, annotations_path, params_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, string(run.Mode), run.Samples, run.MicroAUPRC, run.MacroAUPRC,
			run.PredictionsPath, run.AnnotationsPath, paramsStr, run.CreatedAt,
		)
		if err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO evaluation_curve_rows (
				run_id, category_id, row_index, threshold, tp, fp, fn,
				precision, recall, f1, positives, degenerate
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range run.Curves {
			for i, r := range c.Rows {
				_, err := stmt.Exec(run.RunID, c.CategoryID, i, r.Threshold, r.TP, r.FP, r.FN,
					r.Precision, r.Recall, r.F1, c.Positives, c.Degenerate)
				if err != nil {
					return fmt.Errorf("insert curve row %d of category %d: %w", i, c.CategoryID, err)
				}
			}
		}
		return tx.Commit()
	})
}

const runColumns = `run_id, mode, samples, micro_auprc, macro_auprc,
		       predictions_path, annotations_path, params_json, created_at`

// Get returns a single run by ID, without its curves.
func (s *EvaluationStore) Get(runID string) (*EvaluationRun, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM evaluation_runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, fmt.Errorf("scan evaluation run: %w", err)
	}
	return run, nil
}

// ListByMode returns all runs of a mode, newest first.
func (s *EvaluationStore) ListByMode(mode taxonomy.Mode) ([]*EvaluationRun, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM evaluation_runs
		WHERE mode = ?
		ORDER BY created_at DESC`, string(mode))
	if err != nil {
		return nil, fmt.Errorf("query evaluation runs: %w", err)
	}
	defer rows.Close()

	var runs []*EvaluationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evaluation run row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Curves returns the stored curves of a run in category order; category 0,
// the pooled curve, comes first. Mode is taken from the run.
func (s *EvaluationStore) Curves(runID string) ([]sweep.Curve, error) {
	run, err := s.Get(runID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT category_id, threshold, tp, fp, fn, precision, recall, f1, positives, degenerate
		FROM evaluation_curve_rows
		WHERE run_id = ?
		ORDER BY category_id, row_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query curve rows: %w", err)
	}
	defer rows.Close()

	var curves []sweep.Curve
	for rows.Next() {
		var (
			categoryID, positives int
			degenerate            bool
			r                     sweep.Row
			c                     confusion.Count
		)
		if err := rows.Scan(&categoryID, &r.Threshold, &c.TP, &c.FP, &c.FN,
			&r.Precision, &r.Recall, &r.F1, &positives, &degenerate); err != nil {
			return nil, fmt.Errorf("scan curve row: %w", err)
		}
		r.Count = c
		if n := len(curves); n == 0 || curves[n-1].CategoryID != categoryID {
			curves = append(curves, sweep.Curve{
				CategoryID: categoryID,
				Mode:       run.Mode,
				Positives:  positives,
				Degenerate: degenerate,
			})
		}
		last := &curves[len(curves)-1]
		last.Rows = append(last.Rows, r)
	}
	return curves, rows.Err()
}

// Delete removes a run and its curve rows.
func (s *EvaluationStore) Delete(runID string) error {
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`DELETE FROM evaluation_curve_rows WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("delete curve rows: %w", err)
		}
		result, err := tx.Exec(`DELETE FROM evaluation_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete evaluation run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return tx.Commit()
	})
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (*EvaluationRun, error) {
	var (
		run               EvaluationRun
		mode              string
		predPath, annPath sql.NullString
		paramsStr         sql.NullString
	)
	err := sc.Scan(&run.RunID, &mode, &run.Samples, &run.MicroAUPRC, &run.MacroAUPRC,
		&predPath, &annPath, &paramsStr, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	run.Mode = taxonomy.Mode(mode)
	run.PredictionsPath = predPath.String
	run.AnnotationsPath = annPath.String
	if paramsStr.Valid {
		run.ParamsJSON = json.RawMessage(paramsStr.String)
	}
	return &run, nil
}
