package models

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// syntheticSeparable labels points by the sign of x0 + x1 with a margin.
func syntheticSeparable(n int, seed int64) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewSource(seed))
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x0 := rng.NormFloat64()
		x1 := rng.NormFloat64()
		x.Set(i, 0, x0)
		x.Set(i, 1, x1)
		if x0+x1 > 0 {
			y[i] = 1
		}
	}
	return x, y
}

func TestLogisticSeparableData(t *testing.T) {
	x, y := syntheticSeparable(300, 1)

	model := NewLogisticClassifier(0.5, 500)
	require.NoError(t, model.Fit(x, y))

	preds, err := model.Predict(x)
	require.NoError(t, err)

	m, err := EvaluateClassification(preds, y)
	require.NoError(t, err)
	assert.Greater(t, m.Accuracy, 0.95, "accuracy on separable data")
}

func TestLogisticProbabilitiesInRange(t *testing.T) {
	x, y := syntheticSeparable(200, 2)

	model := NewLogisticClassifier(0.1, 200)
	require.NoError(t, model.Fit(x, y))

	probs, err := model.PredictProba(x)
	require.NoError(t, err)
	for i, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0, "prob %d", i)
		assert.LessOrEqual(t, p, 1.0, "prob %d", i)
	}
}

func TestLogisticErrors(t *testing.T) {
	x, y := syntheticSeparable(50, 3)

	t.Run("predict before fit", func(t *testing.T) {
		model := NewLogisticClassifier(0.1, 10)
		_, err := model.Predict(x)
		assert.Error(t, err)
	})

	t.Run("non-binary target", func(t *testing.T) {
		bad := append([]float64(nil), y...)
		bad[0] = 0.5
		model := NewLogisticClassifier(0.1, 10)
		assert.Error(t, model.Fit(x, bad))
	})

	t.Run("zero learn rate", func(t *testing.T) {
		model := NewLogisticClassifier(0, 10)
		assert.Error(t, model.Fit(x, y))
	})

	t.Run("zero epochs", func(t *testing.T) {
		model := NewLogisticClassifier(0.1, 0)
		assert.Error(t, model.Fit(x, y))
	})
}
