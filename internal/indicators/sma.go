package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/trend"
	"github.com/rs/zerolog/log"
)

// SMAResult represents the SMA calculation result
type SMAResult struct {
	Value float64 `json:"value"`
	Trend string  `json:"trend"` // "bullish", "bearish", "neutral"
}

// CalculateSMA calculates the Simple Moving Average
func (s *Service) CalculateSMA(args map[string]interface{}) (interface{}, error) {
	// Extract prices
	prices, err := extractPrices(args, "prices")
	if err != nil {
		return nil, err
	}

	// Extract period (required for SMA)
	period := extractPeriod(args, "period", 0)
	if period == 0 {
		return nil, fmt.Errorf("period is required for SMA calculation")
	}

	// Validate period
	if period < 1 || period > len(prices) {
		return nil, fmt.Errorf("invalid period: %d (must be between 1 and %d)", period, len(prices))
	}

	log.Debug().
		Int("prices_count", len(prices)).
		Int("period", period).
		Msg("Calculating SMA")

	// Calculate SMA using cinar/indicator
	smaIndicator := trend.NewSmaWithPeriod[float64](period)
	smaValues := collectChan(smaIndicator.Compute(sliceToChan(prices)))

	if len(smaValues) == 0 {
		return nil, fmt.Errorf("no SMA values calculated")
	}

	// Get the most recent SMA value
	currentSMA := smaValues[len(smaValues)-1]
	currentPrice := prices[len(prices)-1]

	// Determine trend based on price vs SMA
	trendSignal := "neutral"
	if currentPrice > currentSMA {
		trendSignal = "bullish" // Price above SMA
	} else if currentPrice < currentSMA {
		trendSignal = "bearish" // Price below SMA
	}

	result := &SMAResult{
		Value: currentSMA,
		Trend: trendSignal,
	}

	log.Info().
		Float64("sma", currentSMA).
		Float64("current_price", currentPrice).
		Str("trend", trendSignal).
		Msg("SMA calculated")

	return result, nil
}
