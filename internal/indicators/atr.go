package indicators

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
)

// ATRResult represents the ATR calculation result
type ATRResult struct {
	Value      float64 `json:"value"`
	Percentage float64 `json:"percentage"` // ATR as percentage of last close
	Volatility string  `json:"volatility"` // "low", "moderate", "high"
}

// CalculateATR calculates the Average True Range using Wilder's smoothing
func (s *Service) CalculateATR(args map[string]interface{}) (interface{}, error) {
	high, low, closePrices, err := extractOHLC(args)
	if err != nil {
		return nil, err
	}

	// Extract period (default: 14)
	period := extractPeriod(args, "period", 14)
	if period < 1 {
		return nil, fmt.Errorf("invalid period: %d (must be >= 1)", period)
	}
	if len(closePrices) < period+1 {
		return nil, fmt.Errorf("insufficient data: need at least %d prices, got %d", period+1, len(closePrices))
	}

	log.Debug().
		Int("prices_count", len(closePrices)).
		Int("period", period).
		Msg("Calculating ATR")

	atr := calculateATRManual(high, low, closePrices, period)
	if atr == 0 {
		return nil, fmt.Errorf("ATR calculation failed")
	}

	lastClose := closePrices[len(closePrices)-1]
	pct := 0.0
	if lastClose > 0 {
		pct = atr / lastClose * 100
	}

	// Bucket volatility by ATR as percentage of price
	// < 1%: low, 1-3%: moderate, > 3%: high
	volatility := "low"
	if pct >= 1 && pct < 3 {
		volatility = "moderate"
	} else if pct >= 3 {
		volatility = "high"
	}

	result := &ATRResult{
		Value:      atr,
		Percentage: pct,
		Volatility: volatility,
	}

	log.Info().
		Float64("atr", atr).
		Float64("percentage", pct).
		Str("volatility", volatility).
		Msg("ATR calculated")

	return result, nil
}

// calculateATRManual implements ATR with Wilder's smoothing
func calculateATRManual(high, low, close []float64, period int) float64 {
	n := len(close)
	if n < period+1 {
		return 0
	}

	// True Range series (first entry has no previous close)
	tr := make([]float64, n)
	tr[0] = high[0] - low[0]
	for i := 1; i < n; i++ {
		tr[i] = trueRange(high[i], low[i], close[i-1])
	}

	smoothed := wilderSmooth(tr, period)
	return smoothed[n-1]
}

// trueRange is the greatest of the candle range and the gaps from the
// previous close
func trueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low,
		math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

// wilderSmooth seeds with a simple average over the first period and
// applies Wilder's recursive smoothing afterwards
func wilderSmooth(values []float64, period int) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n < period {
		return out
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[period-1] = sum / float64(period)

	for i := period; i < n; i++ {
		out[i] = (out[i-1]*float64(period-1) + values[i]) / float64(period)
	}
	return out
}
