package portfolio

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// Allocation is an optimized portfolio with its diagnostics. Weights
// sum to 1 and align with Symbols.
type Allocation struct {
	Symbols           []string  `json:"symbols"`
	Weights           []float64 `json:"weights"`
	ExpectedReturn    float64   `json:"expected_return"`
	Volatility        float64   `json:"volatility"`
	Sharpe            float64   `json:"sharpe"`
	RiskContributions []float64 `json:"risk_contributions"`
	Method            string    `json:"method"`
}

// Constraints bound the optimized weights. A zero value applies no
// constraint beyond full investment.
type Constraints struct {
	LongOnly  bool
	MaxWeight float64 // 0 disables the cap
}

// Validate checks the constraint set against the universe size.
func (c Constraints) Validate(k int) error {
	if c.MaxWeight < 0 || c.MaxWeight > 1 {
		return fmt.Errorf("max weight must be in [0, 1], got %f", c.MaxWeight)
	}
	if c.MaxWeight > 0 && c.MaxWeight*float64(k) < 1 {
		return fmt.Errorf("max weight %f infeasible for %d assets", c.MaxWeight, k)
	}
	return nil
}

// MinVariance computes the fully invested minimum-variance portfolio,
// w = Σ⁻¹1 / (1ᵀΣ⁻¹1), then applies constraints.
func MinVariance(symbols []string, cov *mat.SymDense, mu []float64, riskFree float64, cons Constraints) (*Allocation, error) {
	k := cov.SymmetricDim()
	if err := checkInputs(symbols, cov, mu); err != nil {
		return nil, err
	}
	if err := cons.Validate(k); err != nil {
		return nil, err
	}

	ones := make([]float64, k)
	for i := range ones {
		ones[i] = 1
	}
	w, err := solveSym(cov, ones)
	if err != nil {
		return nil, err
	}
	normalize(w)

	applyConstraints(w, cons)
	return buildAllocation(symbols, w, cov, mu, riskFree, "min_variance"), nil
}

// MaxSharpe computes the tangency portfolio, w ∝ Σ⁻¹(μ - rf), then
// applies constraints.
func MaxSharpe(symbols []string, cov *mat.SymDense, mu []float64, riskFree float64, cons Constraints) (*Allocation, error) {
	k := cov.SymmetricDim()
	if err := checkInputs(symbols, cov, mu); err != nil {
		return nil, err
	}
	if err := cons.Validate(k); err != nil {
		return nil, err
	}

	excess := make([]float64, k)
	allNonPositive := true
	for i := range excess {
		excess[i] = mu[i] - riskFree
		if excess[i] > 0 {
			allNonPositive = false
		}
	}
	if allNonPositive {
		return nil, fmt.Errorf("no asset has positive excess return")
	}

	w, err := solveSym(cov, excess)
	if err != nil {
		return nil, err
	}
	normalize(w)

	applyConstraints(w, cons)
	return buildAllocation(symbols, w, cov, mu, riskFree, "max_sharpe"), nil
}

// RiskParity equalizes risk contributions with cyclical coordinate
// descent on 0.5·wᵀΣw - Σᵢ bᵢ·log(wᵢ). Weights are inherently long
// only.
func RiskParity(symbols []string, cov *mat.SymDense, mu []float64, riskFree float64, cons Constraints) (*Allocation, error) {
	k := cov.SymmetricDim()
	if err := checkInputs(symbols, cov, mu); err != nil {
		return nil, err
	}
	if err := cons.Validate(k); err != nil {
		return nil, err
	}
	for i := 0; i < k; i++ {
		if cov.At(i, i) <= 0 {
			return nil, fmt.Errorf("asset %d has non-positive variance", i)
		}
	}

	const (
		maxIter = 1000
		tol     = 1e-10
	)
	budget := 1.0 / float64(k)

	// Inverse-volatility start
	w := make([]float64, k)
	for i := 0; i < k; i++ {
		w[i] = 1 / math.Sqrt(cov.At(i, i))
	}
	normalize(w)

	for iter := 0; iter < maxIter; iter++ {
		maxDelta := 0.0
		for i := 0; i < k; i++ {
			// b = Σᵢⱼ wⱼ over j≠i
			b := 0.0
			for j := 0; j < k; j++ {
				if j != i {
					b += cov.At(i, j) * w[j]
				}
			}
			a := cov.At(i, i)
			// Root of a·wᵢ² + b·wᵢ - budget = 0
			next := (-b + math.Sqrt(b*b+4*a*budget)) / (2 * a)
			if d := math.Abs(next - w[i]); d > maxDelta {
				maxDelta = d
			}
			w[i] = next
		}
		if maxDelta < tol {
			break
		}
	}
	normalize(w)

	applyConstraints(w, cons)
	return buildAllocation(symbols, w, cov, mu, riskFree, "risk_parity"), nil
}

// EqualWeight is the 1/N baseline.
func EqualWeight(symbols []string, cov *mat.SymDense, mu []float64, riskFree float64) (*Allocation, error) {
	if err := checkInputs(symbols, cov, mu); err != nil {
		return nil, err
	}
	k := len(symbols)
	w := make([]float64, k)
	for i := range w {
		w[i] = 1.0 / float64(k)
	}
	return buildAllocation(symbols, w, cov, mu, riskFree, "equal_weight"), nil
}

func checkInputs(symbols []string, cov *mat.SymDense, mu []float64) error {
	k := cov.SymmetricDim()
	if k == 0 {
		return fmt.Errorf("empty covariance matrix")
	}
	if len(symbols) != k {
		return fmt.Errorf("dimension mismatch: %d symbols, %dx%d covariance", len(symbols), k, k)
	}
	if len(mu) != k {
		return fmt.Errorf("dimension mismatch: %d expected returns, %d assets", len(mu), k)
	}
	return nil
}

// solveSym solves Σx = b via Cholesky.
func solveSym(cov *mat.SymDense, b []float64) ([]float64, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nil, fmt.Errorf("covariance matrix is not positive definite")
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, mat.NewVecDense(len(b), b)); err != nil {
		return nil, fmt.Errorf("solve failed: %w", err)
	}
	out := make([]float64, len(b))
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out, nil
}

// normalize scales weights to sum to 1, preserving sign structure.
func normalize(w []float64) {
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	if sum == 0 {
		return
	}
	for i := range w {
		w[i] /= sum
	}
}

// applyConstraints projects onto the constraint set: negatives clipped
// when long-only, then an iterative cap-and-redistribute for the max
// weight bound.
func applyConstraints(w []float64, cons Constraints) {
	if cons.LongOnly {
		for i := range w {
			if w[i] < 0 {
				w[i] = 0
			}
		}
		normalize(w)
	}

	if cons.MaxWeight <= 0 {
		return
	}

	for iter := 0; iter < len(w); iter++ {
		excess := 0.0
		free := 0.0
		for _, v := range w {
			if v > cons.MaxWeight {
				excess += v - cons.MaxWeight
			} else {
				free += v
			}
		}
		if excess < 1e-12 {
			return
		}
		for i := range w {
			if w[i] > cons.MaxWeight {
				w[i] = cons.MaxWeight
			} else if free > 0 {
				w[i] += excess * w[i] / free
			}
		}
	}
}

func buildAllocation(symbols []string, w []float64, cov *mat.SymDense, mu []float64, riskFree float64, method string) *Allocation {
	k := len(w)

	expRet := 0.0
	for i := 0; i < k; i++ {
		expRet += w[i] * mu[i]
	}

	// Portfolio variance and marginal contributions
	sigmaW := make([]float64, k)
	variance := 0.0
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			sigmaW[i] += cov.At(i, j) * w[j]
		}
		variance += w[i] * sigmaW[i]
	}
	vol := math.Sqrt(variance)

	contribs := make([]float64, k)
	if variance > 0 {
		for i := 0; i < k; i++ {
			contribs[i] = w[i] * sigmaW[i] / variance
		}
	}

	sharpe := 0.0
	if vol > 0 {
		sharpe = (expRet - riskFree) / vol
	}

	alloc := &Allocation{
		Symbols:           append([]string(nil), symbols...),
		Weights:           append([]float64(nil), w...),
		ExpectedReturn:    expRet,
		Volatility:        vol,
		Sharpe:            sharpe,
		RiskContributions: contribs,
		Method:            method,
	}

	log.Debug().
		Str("method", method).
		Float64("expected_return", expRet).
		Float64("volatility", vol).
		Float64("sharpe", sharpe).
		Msg("Portfolio optimized")

	return alloc
}
