// Package market provides market data types, a synthetic data generator,
// and a Redis-backed candle cache.
package market

import (
	"fmt"
	"math"
	"time"
)

// Candle represents OHLCV data for a single time period
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Series is an ordered sequence of candles for one symbol
type Series struct {
	Symbol   string   `json:"symbol"`
	Interval string   `json:"interval"`
	Candles  []Candle `json:"candles"`
}

// Len returns the number of candles in the series
func (s *Series) Len() int {
	return len(s.Candles)
}

// Closes returns the close prices
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// Highs returns the high prices
func (s *Series) Highs() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.High
	}
	return out
}

// Lows returns the low prices
func (s *Series) Lows() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Low
	}
	return out
}

// Volumes returns the traded volumes
func (s *Series) Volumes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Volume
	}
	return out
}

// Returns computes simple period-over-period returns from close prices.
// The result has len(candles)-1 entries; zero-price periods are skipped.
func (s *Series) Returns() []float64 {
	closes := s.Closes()
	return SimpleReturns(closes)
}

// LogReturns computes log returns from close prices
func (s *Series) LogReturns() []float64 {
	closes := s.Closes()
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] > 0 && closes[i] > 0 {
			out = append(out, math.Log(closes[i]/closes[i-1]))
		}
	}
	return out
}

// Validate checks the series for structural problems
func (s *Series) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("series has no symbol")
	}
	for i, c := range s.Candles {
		if c.High < c.Low {
			return fmt.Errorf("candle %d: high %.4f below low %.4f", i, c.High, c.Low)
		}
		if c.Close <= 0 || c.Open <= 0 {
			return fmt.Errorf("candle %d: non-positive price", i)
		}
		if i > 0 && !s.Candles[i-1].Timestamp.Before(c.Timestamp) {
			return fmt.Errorf("candle %d: timestamps not strictly increasing", i)
		}
	}
	return nil
}

// SimpleReturns computes period-over-period returns for a price slice
func SimpleReturns(prices []float64) []float64 {
	out := make([]float64, 0, len(prices))
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 {
			out = append(out, (prices[i]-prices[i-1])/prices[i-1])
		}
	}
	return out
}
