// Package confusion counts true positives, false positives and false
// negatives for one coarse category at one threshold.
//
// Fine mode accounts for ground truth that may be incomplete: a sample can
// be known to belong to a coarse category without its fine tag being known.
// Such samples are scored against a "coarsened" prediction (any fine tag or
// the incomplete marker predicted). Samples with complete ground truth are
// scored tag by tag. The two regimes are summed, so a sample with complete
// ground truth can yield both per-tag false positives and a false positive
// on the incomplete marker.
package confusion

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when truth and prediction inputs do not have
// the same number of samples or tags.
var ErrShapeMismatch = errors.New("confusion: shape mismatch")

// Count is an immutable (TP, FP, FN) triple.
type Count struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	FN int `json:"fn"`
}

// Add returns the element-wise sum of c and o.
func (c Count) Add(o Count) Count {
	return Count{TP: c.TP + o.TP, FP: c.FP + o.FP, FN: c.FN + o.FN}
}

// Positives returns TP + FN, the number of positives in the ground truth.
func (c Count) Positives() int { return c.TP + c.FN }

// CountCoarse applies single-label boolean accounting to one tag.
func CountCoarse(yTrue, yPred []bool) (Count, error) {
	if len(yTrue) != len(yPred) {
		return Count{}, fmt.Errorf("%w: %d truth samples, %d predicted", ErrShapeMismatch, len(yTrue), len(yPred))
	}
	var c Count
	for n := range yTrue {
		tally(&c, yTrue[n], yPred[n])
	}
	return c, nil
}

// CountFine counts TP/FP/FN over the K complete fine tags of one coarse
// category plus its incomplete marker. yTrue and yPred are N×K;
// trueIncomplete and predIncomplete have length N.
func CountFine(yTrue, yPred [][]bool, trueIncomplete, predIncomplete []bool) (Count, error) {
	n := len(yTrue)
	if len(yPred) != n || len(trueIncomplete) != n || len(predIncomplete) != n {
		return Count{}, fmt.Errorf("%w: sample counts truth=%d pred=%d true_incomplete=%d pred_incomplete=%d",
			ErrShapeMismatch, n, len(yPred), len(trueIncomplete), len(predIncomplete))
	}

	var c Count
	k := -1
	for i := 0; i < n; i++ {
		if k < 0 {
			k = len(yTrue[i])
		}
		if len(yTrue[i]) != k || len(yPred[i]) != k {
			return Count{}, fmt.Errorf("%w: sample %d has %d truth and %d predicted tags, want %d",
				ErrShapeMismatch, i, len(yTrue[i]), len(yPred[i]), k)
		}

		// Complete ground truth: every fine tag is scored independently.
		if !trueIncomplete[i] {
			for j := 0; j < k; j++ {
				tally(&c, yTrue[i][j], yPred[i][j])
			}
		}

		// Incomplete marker: applies to every sample.
		coarsened := predIncomplete[i]
		for j := 0; j < k && !coarsened; j++ {
			coarsened = yPred[i][j]
		}
		switch {
		case trueIncomplete[i] && coarsened:
			c.TP++
		case trueIncomplete[i]:
			c.FN++
		case predIncomplete[i]:
			c.FP++
		}
	}
	return c, nil
}

func tally(c *Count, truth, pred bool) {
	switch {
	case truth && pred:
		c.TP++
	case pred:
		c.FP++
	case truth:
		c.FN++
	}
}
