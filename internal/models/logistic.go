package models

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// Classifier is a supervised model predicting a binary class.
type Classifier interface {
	Fit(x *mat.Dense, y []float64) error
	PredictProba(x *mat.Dense) ([]float64, error)
	Predict(x *mat.Dense) ([]float64, error)
}

// LogisticClassifier is a binary logistic regression trained with batch
// gradient descent. Targets must be 0 or 1.
type LogisticClassifier struct {
	LearnRate float64
	Epochs    int
	L2        float64

	weights   []float64 // includes intercept at index 0
	nFeatures int
	fitted    bool
}

// NewLogisticClassifier creates a classifier with the given training
// hyperparameters.
func NewLogisticClassifier(learnRate float64, epochs int) *LogisticClassifier {
	return &LogisticClassifier{LearnRate: learnRate, Epochs: epochs}
}

// Weights returns the fitted coefficients, intercept first.
func (c *LogisticClassifier) Weights() []float64 {
	out := make([]float64, len(c.weights))
	copy(out, c.weights)
	return out
}

// Fit runs batch gradient descent on the log loss.
func (c *LogisticClassifier) Fit(x *mat.Dense, y []float64) error {
	n, d := x.Dims()
	if n == 0 || d == 0 {
		return fmt.Errorf("empty design matrix")
	}
	if n != len(y) {
		return fmt.Errorf("row mismatch: %d rows, %d targets", n, len(y))
	}
	if c.LearnRate <= 0 {
		return fmt.Errorf("learn rate must be > 0, got %f", c.LearnRate)
	}
	if c.Epochs < 1 {
		return fmt.Errorf("epochs must be >= 1, got %d", c.Epochs)
	}
	for i, v := range y {
		if v != 0 && v != 1 {
			return fmt.Errorf("target %d is %f, want 0 or 1", i, v)
		}
	}

	w := make([]float64, d+1)
	grad := make([]float64, d+1)

	for epoch := 0; epoch < c.Epochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}

		for i := 0; i < n; i++ {
			z := w[0]
			for j := 0; j < d; j++ {
				z += w[j+1] * x.At(i, j)
			}
			err := sigmoid(z) - y[i]

			grad[0] += err
			for j := 0; j < d; j++ {
				grad[j+1] += err * x.At(i, j)
			}
		}

		inv := 1.0 / float64(n)
		w[0] -= c.LearnRate * grad[0] * inv
		for j := 1; j <= d; j++ {
			g := grad[j]*inv + c.L2*w[j]
			w[j] -= c.LearnRate * g
		}
	}

	c.weights = w
	c.nFeatures = d
	c.fitted = true

	log.Debug().
		Int("samples", n).
		Int("features", d).
		Int("epochs", c.Epochs).
		Float64("learn_rate", c.LearnRate).
		Msg("Logistic classifier fitted")

	return nil
}

// PredictProba returns P(class=1) per row.
func (c *LogisticClassifier) PredictProba(x *mat.Dense) ([]float64, error) {
	if !c.fitted {
		return nil, fmt.Errorf("model not fitted")
	}
	n, d := x.Dims()
	if d != c.nFeatures {
		return nil, fmt.Errorf("feature mismatch: model has %d, input has %d", c.nFeatures, d)
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		z := c.weights[0]
		for j := 0; j < d; j++ {
			z += c.weights[j+1] * x.At(i, j)
		}
		out[i] = sigmoid(z)
	}
	return out, nil
}

// Predict thresholds the probabilities at 0.5.
func (c *LogisticClassifier) Predict(x *mat.Dense) ([]float64, error) {
	probs, err := c.PredictProba(x)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(probs))
	for i, p := range probs {
		if p >= 0.5 {
			out[i] = 1
		}
	}
	return out, nil
}

func sigmoid(z float64) float64 {
	// Clamp to keep exp from overflowing
	if z > 35 {
		return 1
	}
	if z < -35 {
		return 0
	}
	return 1 / (1 + math.Exp(-z))
}
