package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCovarianceMatrix(t *testing.T) {
	returns := map[string][]float64{
		"BTC/USD": {0.01, -0.02, 0.03, 0.00, -0.01},
		"ETH/USD": {0.02, -0.03, 0.04, 0.01, -0.02},
	}
	symbols := []string{"BTC/USD", "ETH/USD"}

	cov, err := CovarianceMatrix(returns, symbols, 0)
	require.NoError(t, err)
	require.Equal(t, 2, cov.SymmetricDim())

	// Diagonal entries are variances
	assert.Greater(t, cov.At(0, 0), 0.0)
	assert.Greater(t, cov.At(1, 1), 0.0)

	// The two series move together
	assert.Greater(t, cov.At(0, 1), 0.0)
	assert.Equal(t, cov.At(0, 1), cov.At(1, 0))
}

func TestCovarianceShrinkage(t *testing.T) {
	returns := map[string][]float64{
		"A": {0.01, -0.02, 0.03, 0.00, -0.01},
		"B": {0.02, -0.03, 0.04, 0.01, -0.02},
	}
	symbols := []string{"A", "B"}

	raw, err := CovarianceMatrix(returns, symbols, 0)
	require.NoError(t, err)
	half, err := CovarianceMatrix(returns, symbols, 0.5)
	require.NoError(t, err)
	full, err := CovarianceMatrix(returns, symbols, 1)
	require.NoError(t, err)

	// Shrinkage scales off-diagonals and leaves variances alone
	assert.InDelta(t, raw.At(0, 0), half.At(0, 0), 1e-15)
	assert.InDelta(t, 0.5*raw.At(0, 1), half.At(0, 1), 1e-15)
	assert.InDelta(t, 0.0, full.At(0, 1), 1e-15)
}

func TestCovarianceValidation(t *testing.T) {
	returns := map[string][]float64{
		"A": {0.01, 0.02},
		"B": {0.01},
	}

	_, err := CovarianceMatrix(returns, nil, 0)
	assert.Error(t, err)

	_, err = CovarianceMatrix(returns, []string{"A", "B"}, 0)
	assert.Error(t, err, "misaligned series")

	_, err = CovarianceMatrix(returns, []string{"A", "C"}, 0)
	assert.Error(t, err, "missing symbol")

	_, err = CovarianceMatrix(returns, []string{"A"}, -0.1)
	assert.Error(t, err, "bad shrinkage")

	_, err = CovarianceMatrix(map[string][]float64{"A": {0.01}}, []string{"A"}, 0)
	assert.Error(t, err, "too few observations")
}
