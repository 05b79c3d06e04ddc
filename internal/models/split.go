package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Split holds chronologically separated train and test partitions.
// Shuffling is never applied; test rows always follow train rows.
type Split struct {
	TrainX *mat.Dense
	TrainY []float64
	TestX  *mat.Dense
	TestY  []float64
}

// ChronologicalSplit partitions samples in time order. trainRatio is the
// fraction assigned to the training partition.
func ChronologicalSplit(x *mat.Dense, y []float64, trainRatio float64) (*Split, error) {
	n, _ := x.Dims()
	if n != len(y) {
		return nil, fmt.Errorf("row mismatch: %d rows, %d targets", n, len(y))
	}
	if trainRatio <= 0 || trainRatio >= 1 {
		return nil, fmt.Errorf("train ratio must be in (0, 1), got %f", trainRatio)
	}

	cut := int(float64(n) * trainRatio)
	if cut < 1 || cut >= n {
		return nil, fmt.Errorf("split leaves an empty partition: %d samples, ratio %f", n, trainRatio)
	}

	return &Split{
		TrainX: denseRows(x, 0, cut),
		TrainY: append([]float64(nil), y[:cut]...),
		TestX:  denseRows(x, cut, n),
		TestY:  append([]float64(nil), y[cut:]...),
	}, nil
}

// WalkForwardFolds produces expanding-window folds: each fold trains on
// everything before its test block and tests on the next contiguous
// block. The first block is reserved for training only.
func WalkForwardFolds(x *mat.Dense, y []float64, folds int) ([]Split, error) {
	n, _ := x.Dims()
	if n != len(y) {
		return nil, fmt.Errorf("row mismatch: %d rows, %d targets", n, len(y))
	}
	if folds < 1 {
		return nil, fmt.Errorf("folds must be >= 1, got %d", folds)
	}
	blocks := folds + 1
	if n < blocks*2 {
		return nil, fmt.Errorf("insufficient data: %d samples for %d folds", n, folds)
	}

	blockSize := n / blocks
	out := make([]Split, 0, folds)

	for f := 0; f < folds; f++ {
		trainEnd := (f + 1) * blockSize
		testEnd := trainEnd + blockSize
		if f == folds-1 {
			testEnd = n // last fold absorbs the remainder
		}

		out = append(out, Split{
			TrainX: denseRows(x, 0, trainEnd),
			TrainY: append([]float64(nil), y[:trainEnd]...),
			TestX:  denseRows(x, trainEnd, testEnd),
			TestY:  append([]float64(nil), y[trainEnd:testEnd]...),
		})
	}

	return out, nil
}

// WalkForwardRegression runs walk-forward validation with a fresh model
// per fold and returns per-fold metrics.
func WalkForwardRegression(newModel func() Regressor, x *mat.Dense, y []float64, folds int) ([]RegressionMetrics, error) {
	splits, err := WalkForwardFolds(x, y, folds)
	if err != nil {
		return nil, err
	}

	out := make([]RegressionMetrics, 0, len(splits))
	for i, s := range splits {
		model := newModel()
		if err := model.Fit(s.TrainX, s.TrainY); err != nil {
			return nil, fmt.Errorf("fold %d fit: %w", i, err)
		}
		preds, err := model.Predict(s.TestX)
		if err != nil {
			return nil, fmt.Errorf("fold %d predict: %w", i, err)
		}
		m, err := EvaluateRegression(preds, s.TestY)
		if err != nil {
			return nil, fmt.Errorf("fold %d evaluate: %w", i, err)
		}
		out = append(out, *m)
	}
	return out, nil
}

// denseRows copies rows [from, to) into a new matrix.
func denseRows(x *mat.Dense, from, to int) *mat.Dense {
	_, d := x.Dims()
	out := mat.NewDense(to-from, d, nil)
	for i := from; i < to; i++ {
		for j := 0; j < d; j++ {
			out.Set(i-from, j, x.At(i, j))
		}
	}
	return out
}
