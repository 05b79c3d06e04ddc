package features

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"github.com/quantdesk/quantdesk/internal/market"
)

// Config controls which features are derived from a candle series.
type Config struct {
	MomentumPeriods []int // lookbacks for momentum features
	VolWindow       int   // rolling window for realized volatility
	ZScoreWindow    int   // rolling window for the price z-score
	Lags            int   // number of lagged returns appended
	ForwardHorizon  int   // bars ahead for the prediction target
}

// DefaultConfig mirrors the defaults used by the quant agents.
func DefaultConfig() Config {
	return Config{
		MomentumPeriods: []int{5, 10, 20},
		VolWindow:       10,
		ZScoreWindow:    20,
		Lags:            3,
		ForwardHorizon:  1,
	}
}

// Set is an aligned feature matrix with its targets. Rows correspond to
// bars that have every feature and target defined.
type Set struct {
	Names     []string
	X         *mat.Dense
	Forward   []float64 // forward simple return over ForwardHorizon bars
	Direction []float64 // 1 if forward return > 0, else 0
	Index     []int     // original bar index of each row
}

// Rows returns the number of samples in the set.
func (s *Set) Rows() int {
	if s.X == nil {
		return 0
	}
	r, _ := s.X.Dims()
	return r
}

// Cols returns the number of features in the set.
func (s *Set) Cols() int {
	if s.X == nil {
		return 0
	}
	_, c := s.X.Dims()
	return c
}

// Build derives the feature matrix and targets from a candle series.
// The warmup region (bars without a full lookback) and the tail (bars
// without a forward target) are dropped so X and the targets align.
func Build(series *market.Series, cfg Config) (*Set, error) {
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("invalid series: %w", err)
	}
	if cfg.VolWindow < 2 {
		return nil, fmt.Errorf("vol window must be >= 2, got %d", cfg.VolWindow)
	}
	if cfg.ZScoreWindow < 2 {
		return nil, fmt.Errorf("zscore window must be >= 2, got %d", cfg.ZScoreWindow)
	}
	if cfg.Lags < 0 {
		return nil, fmt.Errorf("lags must be >= 0, got %d", cfg.Lags)
	}
	if cfg.ForwardHorizon < 1 {
		return nil, fmt.Errorf("forward horizon must be >= 1, got %d", cfg.ForwardHorizon)
	}
	for _, p := range cfg.MomentumPeriods {
		if p < 1 {
			return nil, fmt.Errorf("momentum period must be >= 1, got %d", p)
		}
	}

	closes := series.Closes()
	highs := series.Highs()
	lows := series.Lows()
	volumes := series.Volumes()
	n := len(closes)

	warmup := cfg.ZScoreWindow
	if cfg.VolWindow+1 > warmup {
		warmup = cfg.VolWindow + 1
	}
	if cfg.Lags+1 > warmup {
		warmup = cfg.Lags + 1
	}
	for _, p := range cfg.MomentumPeriods {
		if p > warmup {
			warmup = p
		}
	}

	first := warmup
	last := n - cfg.ForwardHorizon // exclusive
	if first >= last {
		return nil, fmt.Errorf("insufficient data: %d bars, need more than %d", n, warmup+cfg.ForwardHorizon)
	}

	names := []string{"return_1", "log_return_1", "hl_range", "volume_change", "rolling_vol", "zscore"}
	for _, p := range cfg.MomentumPeriods {
		names = append(names, fmt.Sprintf("momentum_%d", p))
	}
	for l := 1; l <= cfg.Lags; l++ {
		names = append(names, fmt.Sprintf("return_lag_%d", l))
	}

	rows := last - first
	x := mat.NewDense(rows, len(names), nil)
	forward := make([]float64, rows)
	direction := make([]float64, rows)
	index := make([]int, rows)

	for r := 0; r < rows; r++ {
		i := first + r
		col := 0

		// One-bar simple and log returns
		x.Set(r, col, closes[i]/closes[i-1]-1)
		col++
		x.Set(r, col, math.Log(closes[i]/closes[i-1]))
		col++

		// High-low range relative to close
		x.Set(r, col, (highs[i]-lows[i])/closes[i])
		col++

		// Volume change, zero when the previous bar had no volume
		vc := 0.0
		if volumes[i-1] > 0 {
			vc = volumes[i]/volumes[i-1] - 1
		}
		x.Set(r, col, vc)
		col++

		// Realized volatility of one-bar returns over the window
		x.Set(r, col, rollingVol(closes, i, cfg.VolWindow))
		col++

		// Price z-score against the rolling window
		x.Set(r, col, zscore(closes, i, cfg.ZScoreWindow))
		col++

		for _, p := range cfg.MomentumPeriods {
			x.Set(r, col, closes[i]/closes[i-p]-1)
			col++
		}

		for l := 1; l <= cfg.Lags; l++ {
			x.Set(r, col, closes[i-l]/closes[i-l-1]-1)
			col++
		}

		fr := closes[i+cfg.ForwardHorizon]/closes[i] - 1
		forward[r] = fr
		if fr > 0 {
			direction[r] = 1
		}
		index[r] = i
	}

	log.Debug().
		Str("symbol", series.Symbol).
		Int("rows", rows).
		Int("features", len(names)).
		Int("warmup", warmup).
		Msg("Feature matrix built")

	return &Set{
		Names:     names,
		X:         x,
		Forward:   forward,
		Direction: direction,
		Index:     index,
	}, nil
}

// rollingVol is the sample standard deviation of one-bar returns over
// the window ending at bar i.
func rollingVol(closes []float64, i, window int) float64 {
	rets := make([]float64, 0, window)
	for j := i - window + 1; j <= i; j++ {
		rets = append(rets, closes[j]/closes[j-1]-1)
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	ss := 0.0
	for _, r := range rets {
		d := r - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(rets)-1))
}

// zscore standardizes the close at bar i against the trailing window.
func zscore(closes []float64, i, window int) float64 {
	mean := 0.0
	for j := i - window + 1; j <= i; j++ {
		mean += closes[j]
	}
	mean /= float64(window)
	ss := 0.0
	for j := i - window + 1; j <= i; j++ {
		d := closes[j] - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(window-1))
	if std == 0 {
		return 0
	}
	return (closes[i] - mean) / std
}
