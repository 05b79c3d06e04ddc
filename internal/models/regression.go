package models

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// Regressor is a supervised model predicting a continuous target.
type Regressor interface {
	Fit(x *mat.Dense, y []float64) error
	Predict(x *mat.Dense) ([]float64, error)
}

// RidgeRegressor is a linear regressor with L2 regularization solved in
// closed form from the normal equations. Lambda 0 reduces to OLS.
type RidgeRegressor struct {
	Lambda float64

	weights   []float64 // includes intercept at index 0
	nFeatures int
	fitted    bool
}

// NewRidgeRegressor creates a ridge regressor with the given penalty.
func NewRidgeRegressor(lambda float64) *RidgeRegressor {
	return &RidgeRegressor{Lambda: lambda}
}

// Weights returns the fitted coefficients, intercept first.
func (r *RidgeRegressor) Weights() []float64 {
	out := make([]float64, len(r.weights))
	copy(out, r.weights)
	return out
}

// Fit solves (XᵀX + λI)w = Xᵀy on the intercept-augmented design matrix.
// The intercept is not penalized.
func (r *RidgeRegressor) Fit(x *mat.Dense, y []float64) error {
	n, d := x.Dims()
	if n == 0 || d == 0 {
		return fmt.Errorf("empty design matrix")
	}
	if n != len(y) {
		return fmt.Errorf("row mismatch: %d rows, %d targets", n, len(y))
	}
	if r.Lambda < 0 {
		return fmt.Errorf("lambda must be >= 0, got %f", r.Lambda)
	}

	xa := augment(x)

	var xtx mat.Dense
	xtx.Mul(xa.T(), xa)
	for j := 1; j <= d; j++ {
		xtx.Set(j, j, xtx.At(j, j)+r.Lambda)
	}

	yVec := mat.NewVecDense(n, y)
	var xty mat.VecDense
	xty.MulVec(xa.T(), yVec)

	var w mat.VecDense
	if err := w.SolveVec(&xtx, &xty); err != nil {
		return fmt.Errorf("normal equations are singular: %w", err)
	}

	r.weights = make([]float64, d+1)
	for j := 0; j <= d; j++ {
		r.weights[j] = w.AtVec(j)
	}
	r.nFeatures = d
	r.fitted = true

	log.Debug().
		Int("samples", n).
		Int("features", d).
		Float64("lambda", r.Lambda).
		Msg("Ridge regressor fitted")

	return nil
}

// Predict applies the fitted coefficients row by row.
func (r *RidgeRegressor) Predict(x *mat.Dense) ([]float64, error) {
	if !r.fitted {
		return nil, fmt.Errorf("model not fitted")
	}
	n, d := x.Dims()
	if d != r.nFeatures {
		return nil, fmt.Errorf("feature mismatch: model has %d, input has %d", r.nFeatures, d)
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := r.weights[0]
		for j := 0; j < d; j++ {
			v += r.weights[j+1] * x.At(i, j)
		}
		out[i] = v
	}
	return out, nil
}

// augment prepends a ones column for the intercept term.
func augment(x *mat.Dense) *mat.Dense {
	n, d := x.Dims()
	xa := mat.NewDense(n, d+1, nil)
	for i := 0; i < n; i++ {
		xa.Set(i, 0, 1)
		for j := 0; j < d; j++ {
			xa.Set(i, j+1, x.At(i, j))
		}
	}
	return xa
}
