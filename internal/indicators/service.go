// Package indicators provides technical indicator calculations
package indicators

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Service provides technical indicator calculations
type Service struct {
	// Can add configuration, caching, etc. here in the future
}

// NewService creates a new indicator service
func NewService() *Service {
	log.Info().Msg("Indicator service initialized")
	return &Service{}
}

// extractPrices extracts price array from arguments
func extractPrices(args map[string]interface{}, key string) ([]float64, error) {
	pricesInterface, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("missing required parameter: %s", key)
	}

	// Allow both []interface{} (decoded JSON) and []float64 (direct calls)
	switch arr := pricesInterface.(type) {
	case []float64:
		if len(arr) == 0 {
			return nil, fmt.Errorf("%s array is empty", key)
		}
		return arr, nil
	case []interface{}:
		prices := make([]float64, len(arr))
		for i, p := range arr {
			switch v := p.(type) {
			case float64:
				prices[i] = v
			case int:
				prices[i] = float64(v)
			default:
				return nil, fmt.Errorf("invalid price at index %d: expected number", i)
			}
		}
		if len(prices) == 0 {
			return nil, fmt.Errorf("%s array is empty", key)
		}
		return prices, nil
	default:
		return nil, fmt.Errorf("invalid %s format: expected array", key)
	}
}

// extractPeriod extracts period from arguments with default value
func extractPeriod(args map[string]interface{}, key string, defaultValue int) int {
	periodInterface, ok := args[key]
	if !ok {
		return defaultValue
	}

	switch v := periodInterface.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		log.Warn().
			Str("key", key).
			Interface("value", periodInterface).
			Msg("Invalid period type, using default")
		return defaultValue
	}
}

// extractFloat extracts float value from arguments with default
func extractFloat(args map[string]interface{}, key string, defaultValue float64) float64 {
	valueInterface, ok := args[key]
	if !ok {
		return defaultValue
	}

	switch v := valueInterface.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		log.Warn().
			Str("key", key).
			Interface("value", valueInterface).
			Msg("Invalid float type, using default")
		return defaultValue
	}
}

// extractOHLC pulls aligned high/low/close arrays from arguments
func extractOHLC(args map[string]interface{}) (high, low, closePrices []float64, err error) {
	if high, err = extractPrices(args, "high"); err != nil {
		return nil, nil, nil, fmt.Errorf("high prices: %w", err)
	}
	if low, err = extractPrices(args, "low"); err != nil {
		return nil, nil, nil, fmt.Errorf("low prices: %w", err)
	}
	if closePrices, err = extractPrices(args, "close"); err != nil {
		return nil, nil, nil, fmt.Errorf("close prices: %w", err)
	}
	if len(high) != len(low) || len(high) != len(closePrices) {
		return nil, nil, nil, fmt.Errorf("high, low, and close arrays must have the same length")
	}
	return high, low, closePrices, nil
}

// sliceToChan converts a price slice to the channel form cinar/indicator consumes
func sliceToChan(prices []float64) chan float64 {
	ch := make(chan float64, len(prices))
	for _, p := range prices {
		ch <- p
	}
	close(ch)
	return ch
}

// collectChan drains an indicator output channel into a slice
func collectChan(ch <-chan float64) []float64 {
	var out []float64
	for v := range ch {
		out = append(out, v)
	}
	return out
}
