package market

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// Trading days per year used for annualization
const tradingDaysPerYear = 252.0

// GeneratorConfig holds parameters for the synthetic candle generator
type GeneratorConfig struct {
	Symbol       string
	Interval     string
	StartPrice   float64
	Drift        float64 // annualized drift
	Volatility   float64 // annualized volatility
	Seed         int64
	Start        time.Time
	CandlePeriod time.Duration // e.g. 24h for "1d"
}

// Generator produces synthetic OHLCV series from a geometric Brownian
// motion price process. The platform runs against simulated data; a fixed
// seed makes every run reproducible.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// NewGenerator creates a generator with the given configuration
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.StartPrice <= 0 {
		return nil, fmt.Errorf("start price must be > 0, got %f", cfg.StartPrice)
	}
	if cfg.Volatility <= 0 {
		return nil, fmt.Errorf("volatility must be > 0, got %f", cfg.Volatility)
	}
	if cfg.CandlePeriod <= 0 {
		cfg.CandlePeriod = 24 * time.Hour
	}
	if cfg.Interval == "" {
		cfg.Interval = "1d"
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now().UTC().Truncate(24 * time.Hour)
	}

	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Generate produces n candles following a GBM close-price path. Highs and
// lows are drawn as bounded excursions around open/close, volume follows a
// lognormal draw.
func (g *Generator) Generate(n int) (*Series, error) {
	if n <= 0 {
		return nil, fmt.Errorf("candle count must be > 0, got %d", n)
	}

	dt := 1.0 / tradingDaysPerYear
	mu := g.cfg.Drift
	sigma := g.cfg.Volatility

	candles := make([]Candle, 0, n)
	prev := g.cfg.StartPrice
	ts := g.cfg.Start

	for i := 0; i < n; i++ {
		z := g.rng.NormFloat64()
		next := prev * math.Exp((mu-0.5*sigma*sigma)*dt+sigma*math.Sqrt(dt)*z)

		open := prev
		closePrice := next

		// Intraperiod excursion proportional to realized move
		span := math.Abs(closePrice-open) + open*sigma*math.Sqrt(dt)*0.5
		high := math.Max(open, closePrice) + g.rng.Float64()*span*0.5
		low := math.Min(open, closePrice) - g.rng.Float64()*span*0.5
		if low <= 0 {
			low = math.Min(open, closePrice) * 0.99
		}

		volume := math.Exp(g.rng.NormFloat64()*0.25) * 1000.0

		candles = append(candles, Candle{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})

		prev = next
		ts = ts.Add(g.cfg.CandlePeriod)
	}

	series := &Series{
		Symbol:   g.cfg.Symbol,
		Interval: g.cfg.Interval,
		Candles:  candles,
	}

	log.Debug().
		Str("symbol", g.cfg.Symbol).
		Int("candles", n).
		Float64("first_close", candles[0].Close).
		Float64("last_close", candles[n-1].Close).
		Msg("Synthetic series generated")

	return series, nil
}

// GenerateReturnsMatrix produces aligned return series for several symbols,
// one column per symbol. Each symbol gets an independent path from a seed
// derived from the base seed, so the matrix is reproducible as a whole.
func GenerateReturnsMatrix(symbols []string, n int, cfg GeneratorConfig) (map[string][]float64, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols given")
	}

	out := make(map[string][]float64, len(symbols))
	for i, sym := range symbols {
		symCfg := cfg
		symCfg.Symbol = sym
		symCfg.Seed = cfg.Seed + int64(i)

		gen, err := NewGenerator(symCfg)
		if err != nil {
			return nil, fmt.Errorf("generator for %s: %w", sym, err)
		}
		// n+1 candles produce n returns
		series, err := gen.Generate(n + 1)
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", sym, err)
		}
		out[sym] = series.Returns()
	}

	return out, nil
}
