package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateRegression(t *testing.T) {
	t.Run("perfect predictions", func(t *testing.T) {
		actual := []float64{0.01, -0.02, 0.03, -0.01}
		m, err := EvaluateRegression(actual, actual)
		require.NoError(t, err)
		assert.Equal(t, 0.0, m.MSE)
		assert.Equal(t, 0.0, m.RMSE)
		assert.Equal(t, 1.0, m.R2)
		assert.Equal(t, 1.0, m.DirectionalAccuracy)
	})

	t.Run("known errors", func(t *testing.T) {
		predicted := []float64{1, 2, 3}
		actual := []float64{2, 2, 2}
		m, err := EvaluateRegression(predicted, actual)
		require.NoError(t, err)
		// SSE = 1 + 0 + 1 = 2, MSE = 2/3
		assert.InDelta(t, 2.0/3.0, m.MSE, 1e-12)
		// SST = 0, so R2 falls back to 0
		assert.Equal(t, 0.0, m.R2)
	})

	t.Run("directional accuracy counts sign matches", func(t *testing.T) {
		predicted := []float64{0.5, -0.5, 0.5, -0.5}
		actual := []float64{1, 1, -1, -1}
		m, err := EvaluateRegression(predicted, actual)
		require.NoError(t, err)
		assert.Equal(t, 0.5, m.DirectionalAccuracy)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := EvaluateRegression([]float64{1}, []float64{1, 2})
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := EvaluateRegression(nil, nil)
		assert.Error(t, err)
	})
}

func TestEvaluateClassification(t *testing.T) {
	t.Run("mixed outcomes", func(t *testing.T) {
		predicted := []float64{1, 1, 0, 0, 1}
		actual := []float64{1, 0, 0, 1, 1}
		m, err := EvaluateClassification(predicted, actual)
		require.NoError(t, err)
		// tp=2 fp=1 tn=1 fn=1
		assert.InDelta(t, 3.0/5.0, m.Accuracy, 1e-12)
		assert.InDelta(t, 2.0/3.0, m.Precision, 1e-12)
		assert.InDelta(t, 2.0/3.0, m.Recall, 1e-12)
		assert.InDelta(t, 2.0/3.0, m.F1, 1e-12)
	})

	t.Run("no positive predictions", func(t *testing.T) {
		predicted := []float64{0, 0, 0}
		actual := []float64{1, 0, 1}
		m, err := EvaluateClassification(predicted, actual)
		require.NoError(t, err)
		assert.Equal(t, 0.0, m.Precision)
		assert.Equal(t, 0.0, m.Recall)
		assert.Equal(t, 0.0, m.F1)
	})
}
