package models

import (
	"fmt"
	"math"
)

// RegressionMetrics summarizes regression quality on a holdout set.
type RegressionMetrics struct {
	MSE                 float64 `json:"mse"`
	RMSE                float64 `json:"rmse"`
	R2                  float64 `json:"r2"`
	DirectionalAccuracy float64 `json:"directional_accuracy"`
}

// ClassificationMetrics summarizes binary classification quality.
type ClassificationMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// EvaluateRegression compares predictions against actual targets.
// Directional accuracy counts matching signs, with zero treated as
// non-positive.
func EvaluateRegression(predicted, actual []float64) (*RegressionMetrics, error) {
	if len(predicted) == 0 {
		return nil, fmt.Errorf("no predictions")
	}
	if len(predicted) != len(actual) {
		return nil, fmt.Errorf("length mismatch: %d predictions, %d actuals", len(predicted), len(actual))
	}

	n := float64(len(actual))

	mean := 0.0
	for _, a := range actual {
		mean += a
	}
	mean /= n

	var sse, sst float64
	correct := 0
	for i := range actual {
		d := predicted[i] - actual[i]
		sse += d * d
		dm := actual[i] - mean
		sst += dm * dm
		if (predicted[i] > 0) == (actual[i] > 0) {
			correct++
		}
	}

	mse := sse / n
	r2 := 0.0
	if sst > 0 {
		r2 = 1 - sse/sst
	}

	return &RegressionMetrics{
		MSE:                 mse,
		RMSE:                math.Sqrt(mse),
		R2:                  r2,
		DirectionalAccuracy: float64(correct) / n,
	}, nil
}

// EvaluateClassification compares predicted classes against actual 0/1
// labels. Precision and recall are 0 when undefined.
func EvaluateClassification(predicted, actual []float64) (*ClassificationMetrics, error) {
	if len(predicted) == 0 {
		return nil, fmt.Errorf("no predictions")
	}
	if len(predicted) != len(actual) {
		return nil, fmt.Errorf("length mismatch: %d predictions, %d actuals", len(predicted), len(actual))
	}

	var tp, fp, tn, fn float64
	for i := range actual {
		switch {
		case predicted[i] == 1 && actual[i] == 1:
			tp++
		case predicted[i] == 1 && actual[i] == 0:
			fp++
		case predicted[i] == 0 && actual[i] == 0:
			tn++
		default:
			fn++
		}
	}

	m := &ClassificationMetrics{
		Accuracy: (tp + tn) / float64(len(actual)),
	}
	if tp+fp > 0 {
		m.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		m.Recall = tp / (tp + fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m, nil
}
