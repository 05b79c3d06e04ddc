package factors

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ICSummary aggregates a series of per-period information coefficients.
// IR is the information ratio, mean over standard deviation.
type ICSummary struct {
	Mean    float64   `json:"mean"`
	Std     float64   `json:"std"`
	IR      float64   `json:"ir"`
	HitRate float64   `json:"hit_rate"` // fraction of periods with positive IC
	Series  []float64 `json:"series"`
}

// SpearmanIC computes the Spearman rank correlation between factor
// values and forward returns for one cross-section or one window.
func SpearmanIC(factor, forward []float64) (float64, error) {
	if len(factor) < 3 {
		return 0, fmt.Errorf("need at least 3 observations, got %d", len(factor))
	}
	if len(factor) != len(forward) {
		return 0, fmt.Errorf("length mismatch: %d factor values, %d returns", len(factor), len(forward))
	}

	rf := ranks(factor)
	rr := ranks(forward)

	ic := stat.Correlation(rf, rr, nil)
	if math.IsNaN(ic) {
		return 0, fmt.Errorf("correlation undefined: constant input")
	}
	return ic, nil
}

// RollingIC computes Spearman ICs over sliding windows of the aligned
// factor and forward-return series.
func RollingIC(factor, forward []float64, window int) ([]float64, error) {
	if window < 3 {
		return nil, fmt.Errorf("window must be >= 3, got %d", window)
	}
	if len(factor) != len(forward) {
		return nil, fmt.Errorf("length mismatch: %d factor values, %d returns", len(factor), len(forward))
	}
	if len(factor) < window {
		return nil, fmt.Errorf("insufficient data: %d observations for window %d", len(factor), window)
	}

	out := make([]float64, 0, len(factor)-window+1)
	for i := window; i <= len(factor); i++ {
		ic, err := SpearmanIC(factor[i-window:i], forward[i-window:i])
		if err != nil {
			// Constant windows do happen on flat stretches; score them 0
			ic = 0
		}
		out = append(out, ic)
	}
	return out, nil
}

// Summarize reduces an IC series to mean, dispersion, information ratio
// and hit rate.
func Summarize(ics []float64) (*ICSummary, error) {
	if len(ics) == 0 {
		return nil, fmt.Errorf("empty IC series")
	}

	mean, std := stat.MeanStdDev(ics, nil)
	if math.IsNaN(std) {
		std = 0
	}

	ir := 0.0
	if std > 0 {
		ir = mean / std
	}

	positive := 0
	for _, ic := range ics {
		if ic > 0 {
			positive++
		}
	}

	return &ICSummary{
		Mean:    mean,
		Std:     std,
		IR:      ir,
		HitRate: float64(positive) / float64(len(ics)),
		Series:  ics,
	}, nil
}

// ranks assigns average ranks, ties share the mean of their positions.
func ranks(values []float64) []float64 {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	out := make([]float64, n)
	i := 0
	for i < n {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		// Average rank for the tie group, 1-based
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}
