package indicators

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
)

// ADXResult represents the ADX calculation result
type ADXResult struct {
	Value    float64 `json:"value"`
	Strength string  `json:"strength"` // "weak", "strong", "very_strong"
}

// CalculateADX calculates the Average Directional Index.
// Wilder's smoothing needs two full periods of OHLC data; cinar/indicator
// v2 does not ship ADX, so the directional system is computed here.
func (s *Service) CalculateADX(args map[string]interface{}) (interface{}, error) {
	high, low, closePrices, err := extractOHLC(args)
	if err != nil {
		return nil, err
	}

	// Extract period (default: 14)
	period := extractPeriod(args, "period", 14)
	if period < 1 {
		return nil, fmt.Errorf("invalid period: %d (must be >= 1)", period)
	}
	if len(closePrices) < period*2 {
		return nil, fmt.Errorf("insufficient data: need at least %d prices, got %d", period*2, len(closePrices))
	}

	log.Debug().
		Int("prices_count", len(closePrices)).
		Int("period", period).
		Msg("Calculating ADX")

	adx := computeADX(high, low, closePrices, period)
	if adx == 0 {
		return nil, fmt.Errorf("ADX calculation failed")
	}

	result := &ADXResult{
		Value:    adx,
		Strength: adxStrength(adx),
	}

	log.Info().
		Float64("adx", adx).
		Str("strength", result.Strength).
		Msg("ADX calculated")

	return result, nil
}

// adxStrength buckets the ADX reading into trend-strength labels.
// Below 25 the trend is weak or absent, above 50 it is very strong.
func adxStrength(adx float64) string {
	switch {
	case adx >= 50:
		return "very_strong"
	case adx >= 25:
		return "strong"
	default:
		return "weak"
	}
}

// computeADX derives the latest ADX value from OHLC arrays
func computeADX(high, low, closePrices []float64, period int) float64 {
	n := len(closePrices)
	if n < period*2 {
		return 0
	}

	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		tr[i] = trueRange(high[i], low[i], closePrices[i-1])

		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	smoothTR := wilderSmooth(tr, period)
	smoothPlus := wilderSmooth(plusDM, period)
	smoothMinus := wilderSmooth(minusDM, period)

	// DX measures the spread between the directional indices
	dx := make([]float64, n)
	for i := period; i < n; i++ {
		if smoothTR[i] == 0 {
			continue
		}
		plusDI := 100 * smoothPlus[i] / smoothTR[i]
		minusDI := 100 * smoothMinus[i] / smoothTR[i]
		if sum := plusDI + minusDI; sum != 0 {
			dx[i] = 100 * math.Abs(plusDI-minusDI) / sum
		}
	}

	adx := wilderSmooth(dx, period)
	return adx[n-1]
}
