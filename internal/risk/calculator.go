package risk

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PoolInterface defines the interface for database pool operations
type PoolInterface interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Calculator provides database-backed risk calculations.
// Database queries run through the circuit breaker manager so a failing
// database degrades risk loads instead of hanging them.
type Calculator struct {
	pool     PoolInterface
	breakers *CircuitBreakerManager
}

// NewCalculator creates a new risk calculator with database connection
func NewCalculator(pool PoolInterface) *Calculator {
	return &Calculator{
		pool:     pool,
		breakers: NewCircuitBreakerManager(),
	}
}

// NewCalculatorWithPool creates a new risk calculator with pgxpool.Pool
func NewCalculatorWithPool(pool *pgxpool.Pool) *Calculator {
	return &Calculator{
		pool:     pool,
		breakers: NewCircuitBreakerManager(),
	}
}

// Breakers exposes the calculator's circuit breaker manager
func (c *Calculator) Breakers() *CircuitBreakerManager {
	return c.breakers
}

// HistoricalData holds historical market data for risk calculations
type HistoricalData struct {
	Prices  []float64
	Returns []float64
	Times   []time.Time
}

// priceHistory carries raw query results through the circuit breaker
type priceHistory struct {
	prices []float64
	times  []time.Time
}

// MarketRegimeData holds market regime information
type MarketRegimeData struct {
	Regime        string // "bullish", "bearish", "sideways", "volatile_sideways"
	Volatility    float64
	ShortMA       float64
	LongMA        float64
	TrendStrength float64
}

// VaRResult holds a Value at Risk estimate with its expected shortfall
type VaRResult struct {
	VaR        float64 `json:"var"`
	CVaR       float64 `json:"cvar"`
	Confidence float64 `json:"confidence"`
	Samples    int     `json:"samples"`
}

// LoadHistoricalPrices loads historical prices from the candles table
func (c *Calculator) LoadHistoricalPrices(ctx context.Context, symbol string, interval string, days int) (*HistoricalData, error) {
	if c.pool == nil {
		return nil, fmt.Errorf("no database pool available")
	}

	query := `
		SELECT close, ts
		FROM candles
		WHERE symbol = $1
			AND interval = $2
			AND ts >= NOW() - INTERVAL '1 day' * $3
		ORDER BY ts ASC
	`

	loaded, err := c.breakers.Database().Execute(func() (interface{}, error) {
		rows, err := c.pool.Query(ctx, query, symbol, interval, days)
		if err != nil {
			return nil, fmt.Errorf("failed to query historical prices: %w", err)
		}
		defer rows.Close()

		var out priceHistory
		for rows.Next() {
			var price float64
			var ts time.Time
			if err := rows.Scan(&price, &ts); err != nil {
				return nil, fmt.Errorf("failed to scan price row: %w", err)
			}
			out.prices = append(out.prices, price)
			out.times = append(out.times, ts)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating price rows: %w", err)
		}
		return &out, nil
	})
	c.breakers.Metrics().RecordRequest("database", err == nil)
	if err != nil {
		return nil, err
	}

	history := loaded.(*priceHistory)
	prices, times := history.prices, history.times

	if len(prices) == 0 {
		return nil, fmt.Errorf("no historical prices found for %s", symbol)
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 {
			returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
		}
	}

	log.Debug().
		Str("symbol", symbol).
		Int("data_points", len(prices)).
		Int("returns", len(returns)).
		Msg("Historical prices loaded from database")

	return &HistoricalData{
		Prices:  prices,
		Returns: returns,
		Times:   times,
	}, nil
}

// GetCurrentPrice gets the most recent price for a symbol
func (c *Calculator) GetCurrentPrice(ctx context.Context, symbol string, interval string) (float64, error) {
	if c.pool == nil {
		return 0, fmt.Errorf("no database pool available")
	}

	query := `
		SELECT close
		FROM candles
		WHERE symbol = $1
			AND interval = $2
		ORDER BY ts DESC
		LIMIT 1
	`

	fetched, err := c.breakers.Database().Execute(func() (interface{}, error) {
		var price float64
		err := c.pool.QueryRow(ctx, query, symbol, interval).Scan(&price)
		if err == pgx.ErrNoRows {
			// An empty table is not a database failure
			return 0.0, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get current price: %w", err)
		}
		return price, nil
	})
	c.breakers.Metrics().RecordRequest("database", err == nil)
	if err != nil {
		return 0, err
	}

	price := fetched.(float64)
	if price == 0 {
		return 0, fmt.Errorf("no price data found for symbol %s with interval %s", symbol, interval)
	}
	return price, nil
}

// CalculateVaR calculates Value at Risk from historical returns using
// the historical simulation method. VaR and CVaR are reported as
// positive loss fractions.
func (c *Calculator) CalculateVaR(returns []float64, confidenceLevel float64) (*VaRResult, error) {
	if len(returns) == 0 {
		return nil, fmt.Errorf("returns array is empty")
	}

	if confidenceLevel <= 0 || confidenceLevel >= 1 {
		return nil, fmt.Errorf("confidence level must be between 0 and 1")
	}

	sortedReturns := make([]float64, len(returns))
	copy(sortedReturns, returns)
	slices.Sort(sortedReturns)

	// For 95% confidence we look at the 5th percentile (worst 5% of returns)
	percentile := 1 - confidenceLevel
	index := int(float64(len(sortedReturns)) * percentile)
	if index >= len(sortedReturns) {
		index = len(sortedReturns) - 1
	}

	varValue := -sortedReturns[index]

	// CVaR (expected shortfall) is the average of losses worse than VaR
	var cvarSum float64
	cvarCount := 0
	for i := 0; i <= index; i++ {
		cvarSum += sortedReturns[i]
		cvarCount++
	}
	cvarValue := 0.0
	if cvarCount > 0 {
		cvarValue = -cvarSum / float64(cvarCount)
	}

	log.Debug().
		Int("returns_count", len(returns)).
		Float64("confidence_level", confidenceLevel).
		Float64("var", varValue).
		Float64("cvar", cvarValue).
		Msg("VaR calculated from historical returns")

	return &VaRResult{
		VaR:        varValue,
		CVaR:       cvarValue,
		Confidence: confidenceLevel,
		Samples:    len(returns),
	}, nil
}

// CalculateVaRFromPrices calculates VaR from historical price returns
func (c *Calculator) CalculateVaRFromPrices(ctx context.Context, symbol string, interval string, days int, confidenceLevel float64) (*VaRResult, error) {
	histData, err := c.LoadHistoricalPrices(ctx, symbol, interval, days)
	if err != nil {
		return nil, fmt.Errorf("failed to load historical prices: %w", err)
	}

	if len(histData.Returns) == 0 {
		return nil, fmt.Errorf("no returns available")
	}

	return c.CalculateVaR(histData.Returns, confidenceLevel)
}

// CalculateSharpeRatio calculates the annualized Sharpe ratio from
// per-bar returns, assuming daily bars.
func (c *Calculator) CalculateSharpeRatio(returns []float64, riskFreeRate float64) (float64, error) {
	if len(returns) == 0 {
		return 0, fmt.Errorf("returns array is empty")
	}

	sum := 0.0
	for _, r := range returns {
		sum += r
	}
	meanReturn := sum / float64(len(returns))

	// Sample variance with Bessel's correction
	variance := 0.0
	for _, r := range returns {
		diff := r - meanReturn
		variance += diff * diff
	}
	if len(returns) > 1 {
		variance /= float64(len(returns) - 1)
	} else {
		variance /= float64(len(returns))
	}
	stdDev := math.Sqrt(variance)

	if stdDev == 0 {
		return 0, fmt.Errorf("standard deviation is zero")
	}

	annualizedReturn := meanReturn * 252.0
	annualizedStdDev := stdDev * math.Sqrt(252.0)

	sharpe := (annualizedReturn - riskFreeRate) / annualizedStdDev

	log.Debug().
		Float64("mean_return", meanReturn).
		Float64("std_dev", stdDev).
		Float64("sharpe_ratio", sharpe).
		Msg("Sharpe ratio calculated")

	return sharpe, nil
}

// CalculateDrawdown calculates current and maximum drawdown from an
// equity curve
func (c *Calculator) CalculateDrawdown(equityCurve []float64) (currentDD float64, maxDD float64, peakEquity float64) {
	if len(equityCurve) == 0 {
		return 0, 0, 0
	}

	peak := equityCurve[0]
	currentEquity := equityCurve[len(equityCurve)-1]

	for _, equity := range equityCurve {
		if equity > peak {
			peak = equity
		}

		if peak > 0 {
			dd := (peak - equity) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}

	if currentEquity < peak && peak > 0 {
		currentDD = (peak - currentEquity) / peak
	}

	return currentDD, maxDD, peak
}

// DetectMarketRegime classifies the market using moving averages and
// rolling volatility over the lookback window.
func (c *Calculator) DetectMarketRegime(ctx context.Context, symbol string, days int) (*MarketRegimeData, error) {
	histData, err := c.LoadHistoricalPrices(ctx, symbol, "1d", days)
	if err != nil {
		return nil, fmt.Errorf("failed to load historical data: %w", err)
	}

	return c.DetectRegimeFromPrices(histData.Prices, histData.Returns)
}

// DetectRegimeFromPrices runs regime classification on in-memory data
func (c *Calculator) DetectRegimeFromPrices(prices, returns []float64) (*MarketRegimeData, error) {
	if len(prices) < 20 {
		return nil, fmt.Errorf("insufficient data for regime detection (need 20+ bars, got %d)", len(prices))
	}

	volatility := calculateStdDev(returns)

	shortMA := calculateMovingAverage(prices, 10)
	longMA := calculateMovingAverage(prices, 20)

	currentPrice := prices[len(prices)-1]
	startPrice := prices[0]

	priceTrend := 0.0
	if startPrice > 0 {
		priceTrend = (currentPrice - startPrice) / startPrice
	}

	maTrend := 0.0
	if longMA > 0 {
		maTrend = (shortMA - longMA) / longMA
	}

	trendStrength := (priceTrend + maTrend) / 2.0

	var regime string
	if maTrend > 0.02 && priceTrend > 0 {
		regime = "bullish"
	} else if maTrend < -0.02 && priceTrend < 0 {
		regime = "bearish"
	} else {
		regime = "sideways"
	}

	// 5% daily volatility is very high
	if volatility > 0.05 && regime == "sideways" {
		regime = "volatile_sideways"
	}

	log.Info().
		Str("regime", regime).
		Float64("volatility", volatility).
		Float64("short_ma", shortMA).
		Float64("long_ma", longMA).
		Float64("trend_strength", trendStrength).
		Msg("Market regime detected")

	return &MarketRegimeData{
		Regime:        regime,
		Volatility:    volatility,
		ShortMA:       shortMA,
		LongMA:        longMA,
		TrendStrength: trendStrength,
	}, nil
}

// calculateStdDev calculates sample standard deviation of a slice
func calculateStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	if len(values) > 1 {
		variance /= float64(len(values) - 1)
	} else {
		variance /= float64(len(values))
	}

	return math.Sqrt(variance)
}

// calculateMovingAverage calculates simple moving average over the most
// recent period values
func calculateMovingAverage(values []float64, period int) float64 {
	if len(values) < period || period <= 0 {
		return 0
	}

	sum := 0.0
	start := len(values) - period
	for i := start; i < len(values); i++ {
		sum += values[i]
	}

	return sum / float64(period)
}
