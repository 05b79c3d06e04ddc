package factors

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/quantdesk/quantdesk/internal/market"
)

// Factor computes one value per bar from a candle series. Values align
// with the series tail: the first Warmup() bars have no value.
type Factor interface {
	Name() string
	Warmup() int
	Compute(series *market.Series) ([]float64, error)
}

// Momentum is the trailing return over the lookback period.
type Momentum struct {
	Period int
}

func (f Momentum) Name() string { return fmt.Sprintf("momentum_%d", f.Period) }
func (f Momentum) Warmup() int  { return f.Period }

func (f Momentum) Compute(series *market.Series) ([]float64, error) {
	closes := series.Closes()
	if f.Period < 1 || len(closes) <= f.Period {
		return nil, fmt.Errorf("momentum: need more than %d bars, got %d", f.Period, len(closes))
	}
	out := make([]float64, 0, len(closes)-f.Period)
	for i := f.Period; i < len(closes); i++ {
		out = append(out, closes[i]/closes[i-f.Period]-1)
	}
	return out, nil
}

// Reversal is the negated short-term return, betting on mean reversion.
type Reversal struct {
	Period int
}

func (f Reversal) Name() string { return fmt.Sprintf("reversal_%d", f.Period) }
func (f Reversal) Warmup() int  { return f.Period }

func (f Reversal) Compute(series *market.Series) ([]float64, error) {
	mom, err := Momentum{Period: f.Period}.Compute(series)
	if err != nil {
		return nil, fmt.Errorf("reversal: %w", err)
	}
	for i := range mom {
		mom[i] = -mom[i]
	}
	return mom, nil
}

// LowVolatility is the negated realized volatility over the window,
// ranking calm names above turbulent ones.
type LowVolatility struct {
	Window int
}

func (f LowVolatility) Name() string { return fmt.Sprintf("low_vol_%d", f.Window) }
func (f LowVolatility) Warmup() int  { return f.Window }

func (f LowVolatility) Compute(series *market.Series) ([]float64, error) {
	closes := series.Closes()
	if f.Window < 2 || len(closes) <= f.Window {
		return nil, fmt.Errorf("low_vol: need more than %d bars, got %d", f.Window, len(closes))
	}
	out := make([]float64, 0, len(closes)-f.Window)
	for i := f.Window; i < len(closes); i++ {
		mean := 0.0
		rets := make([]float64, 0, f.Window)
		for j := i - f.Window + 1; j <= i; j++ {
			r := closes[j]/closes[j-1] - 1
			rets = append(rets, r)
			mean += r
		}
		mean /= float64(len(rets))
		ss := 0.0
		for _, r := range rets {
			d := r - mean
			ss += d * d
		}
		out = append(out, -math.Sqrt(ss/float64(len(rets)-1)))
	}
	return out, nil
}

// VolumeSurge is the volume of the bar relative to its trailing average.
type VolumeSurge struct {
	Window int
}

func (f VolumeSurge) Name() string { return fmt.Sprintf("volume_surge_%d", f.Window) }
func (f VolumeSurge) Warmup() int  { return f.Window }

func (f VolumeSurge) Compute(series *market.Series) ([]float64, error) {
	volumes := series.Volumes()
	if f.Window < 1 || len(volumes) <= f.Window {
		return nil, fmt.Errorf("volume_surge: need more than %d bars, got %d", f.Window, len(volumes))
	}
	out := make([]float64, 0, len(volumes)-f.Window)
	for i := f.Window; i < len(volumes); i++ {
		avg := 0.0
		for j := i - f.Window; j < i; j++ {
			avg += volumes[j]
		}
		avg /= float64(f.Window)
		if avg == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, volumes[i]/avg-1)
	}
	return out, nil
}

// DefaultLibrary is the factor set evaluated by the quant agent.
func DefaultLibrary() []Factor {
	return []Factor{
		Momentum{Period: 10},
		Momentum{Period: 20},
		Reversal{Period: 3},
		LowVolatility{Window: 20},
		VolumeSurge{Window: 10},
	}
}

// Report holds the IC evaluation of one factor on one series.
type Report struct {
	Factor  string     `json:"factor"`
	Symbol  string     `json:"symbol"`
	Summary *ICSummary `json:"summary"`
}

// Evaluate scores every factor in the library against forward returns
// of the series, using rolling Spearman ICs. Results are sorted by
// information ratio, best first.
func Evaluate(series *market.Series, library []Factor, horizon, window int) ([]Report, error) {
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("invalid series: %w", err)
	}
	if horizon < 1 {
		return nil, fmt.Errorf("horizon must be >= 1, got %d", horizon)
	}

	closes := series.Closes()
	reports := make([]Report, 0, len(library))

	for _, f := range library {
		values, err := f.Compute(series)
		if err != nil {
			return nil, fmt.Errorf("factor %s: %w", f.Name(), err)
		}

		// Align factor value at bar i with the return from i to i+horizon
		warmup := f.Warmup()
		var factorVals, forward []float64
		for k, v := range values {
			i := warmup + k
			if i+horizon >= len(closes) {
				break
			}
			factorVals = append(factorVals, v)
			forward = append(forward, closes[i+horizon]/closes[i]-1)
		}

		ics, err := RollingIC(factorVals, forward, window)
		if err != nil {
			return nil, fmt.Errorf("factor %s: %w", f.Name(), err)
		}
		summary, err := Summarize(ics)
		if err != nil {
			return nil, fmt.Errorf("factor %s: %w", f.Name(), err)
		}

		reports = append(reports, Report{
			Factor:  f.Name(),
			Symbol:  series.Symbol,
			Summary: summary,
		})

		log.Debug().
			Str("factor", f.Name()).
			Str("symbol", series.Symbol).
			Float64("ic_mean", summary.Mean).
			Float64("ir", summary.IR).
			Msg("Factor evaluated")
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Summary.IR > reports[j].Summary.IR
	})
	return reports, nil
}
