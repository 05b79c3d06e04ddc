package portfolio

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// CovarianceMatrix estimates the sample covariance of aligned return
// series and shrinks it toward its diagonal. Shrinkage 0 is the raw
// sample estimate, 1 is fully diagonal.
func CovarianceMatrix(returns map[string][]float64, symbols []string, shrinkage float64) (*mat.SymDense, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols given")
	}
	if shrinkage < 0 || shrinkage > 1 {
		return nil, fmt.Errorf("shrinkage must be in [0, 1], got %f", shrinkage)
	}

	n := -1
	for _, sym := range symbols {
		series, ok := returns[sym]
		if !ok {
			return nil, fmt.Errorf("missing returns for %s", sym)
		}
		if n == -1 {
			n = len(series)
		} else if len(series) != n {
			return nil, fmt.Errorf("return series are not aligned: %s has %d, expected %d", sym, len(series), n)
		}
	}
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 observations, got %d", n)
	}

	k := len(symbols)
	x := mat.NewDense(n, k, nil)
	for j, sym := range symbols {
		for i, v := range returns[sym] {
			x.Set(i, j, v)
		}
	}

	cov := mat.NewSymDense(k, nil)
	stat.CovarianceMatrix(cov, x, nil)

	if shrinkage > 0 {
		for i := 0; i < k; i++ {
			for j := i + 1; j < k; j++ {
				cov.SetSym(i, j, (1-shrinkage)*cov.At(i, j))
			}
		}
	}

	return cov, nil
}
