package risk

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/rs/zerolog/log"
)

// Scenario is a named instantaneous shock applied to portfolio holdings.
// Shocks are per-symbol return fractions; DefaultShock applies to any
// symbol without an explicit entry.
type Scenario struct {
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	Shocks       map[string]float64 `json:"shocks"`
	DefaultShock float64            `json:"default_shock"`
}

// ScenarioResult is the portfolio impact of one scenario.
type ScenarioResult struct {
	Scenario     string             `json:"scenario"`
	PortfolioPnL float64            `json:"portfolio_pnl"` // fractional change
	PositionPnL  map[string]float64 `json:"position_pnl"`
	WorstSymbol  string             `json:"worst_symbol"`
}

// DefaultScenarios is the stress scenario library applied by the risk
// agent.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{
			Name:         "crypto_winter",
			Description:  "Broad crypto selloff, majors down 40-50%",
			Shocks:       map[string]float64{"BTC/USD": -0.40, "ETH/USD": -0.50},
			DefaultShock: -0.60,
		},
		{
			Name:         "flash_crash",
			Description:  "Liquidity cascade, uniform 20% drop",
			DefaultShock: -0.20,
		},
		{
			Name:         "alt_rotation",
			Description:  "Capital rotates from majors into alts",
			Shocks:       map[string]float64{"BTC/USD": -0.10, "ETH/USD": -0.05},
			DefaultShock: 0.15,
		},
		{
			Name:         "melt_up",
			Description:  "Risk-on rally across the board",
			DefaultShock: 0.25,
		},
	}
}

// RunScenario applies a scenario's shocks to portfolio weights.
// Weights must sum to approximately 1.
func RunScenario(weights map[string]float64, scenario Scenario) (*ScenarioResult, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("empty portfolio")
	}

	positionPnL := make(map[string]float64, len(weights))
	total := 0.0
	worst := ""
	worstPnL := math.Inf(1)

	for symbol, weight := range weights {
		shock, ok := scenario.Shocks[symbol]
		if !ok {
			shock = scenario.DefaultShock
		}
		pnl := weight * shock
		positionPnL[symbol] = pnl
		total += pnl
		if pnl < worstPnL {
			worstPnL = pnl
			worst = symbol
		}
	}

	log.Debug().
		Str("scenario", scenario.Name).
		Float64("portfolio_pnl", total).
		Str("worst_symbol", worst).
		Msg("Stress scenario applied")

	return &ScenarioResult{
		Scenario:     scenario.Name,
		PortfolioPnL: total,
		PositionPnL:  positionPnL,
		WorstSymbol:  worst,
	}, nil
}

// RunScenarios applies every scenario and sorts results worst first.
func RunScenarios(weights map[string]float64, scenarios []Scenario) ([]ScenarioResult, error) {
	out := make([]ScenarioResult, 0, len(scenarios))
	for _, s := range scenarios {
		r, err := RunScenario(weights, s)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PortfolioPnL < out[j].PortfolioPnL })
	return out, nil
}

// MonteCarloConfig parameterizes the simulated shock distribution.
type MonteCarloConfig struct {
	Trials     int
	Horizon    int     // bars per trial
	Drift      float64 // annualized
	Volatility float64 // annualized
	Confidence float64
	Seed       int64
}

// MonteCarloResult summarizes simulated portfolio return paths.
type MonteCarloResult struct {
	VaR        float64 `json:"var"`
	CVaR       float64 `json:"cvar"`
	MeanReturn float64 `json:"mean_return"`
	WorstCase  float64 `json:"worst_case"`
	BestCase   float64 `json:"best_case"`
	Trials     int     `json:"trials"`
}

// MonteCarloVaR estimates portfolio VaR by simulating GBM return paths.
// The portfolio is treated as a single asset with the given drift and
// volatility; a fixed seed makes the estimate reproducible.
func MonteCarloVaR(cfg MonteCarloConfig) (*MonteCarloResult, error) {
	if cfg.Trials < 100 {
		return nil, fmt.Errorf("trials must be >= 100, got %d", cfg.Trials)
	}
	if cfg.Horizon < 1 {
		return nil, fmt.Errorf("horizon must be >= 1, got %d", cfg.Horizon)
	}
	if cfg.Volatility <= 0 {
		return nil, fmt.Errorf("volatility must be > 0, got %f", cfg.Volatility)
	}
	if cfg.Confidence <= 0 || cfg.Confidence >= 1 {
		return nil, fmt.Errorf("confidence must be in (0, 1), got %f", cfg.Confidence)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	dt := 1.0 / 252.0

	results := make([]float64, cfg.Trials)
	mean := 0.0
	for t := 0; t < cfg.Trials; t++ {
		value := 1.0
		for h := 0; h < cfg.Horizon; h++ {
			z := rng.NormFloat64()
			value *= math.Exp((cfg.Drift-0.5*cfg.Volatility*cfg.Volatility)*dt + cfg.Volatility*math.Sqrt(dt)*z)
		}
		results[t] = value - 1
		mean += results[t]
	}
	mean /= float64(cfg.Trials)

	sort.Float64s(results)

	index := int(float64(len(results)) * (1 - cfg.Confidence))
	if index >= len(results) {
		index = len(results) - 1
	}

	varValue := -results[index]
	cvarSum := 0.0
	for i := 0; i <= index; i++ {
		cvarSum += results[i]
	}
	cvarValue := -cvarSum / float64(index+1)

	log.Debug().
		Int("trials", cfg.Trials).
		Int("horizon", cfg.Horizon).
		Float64("var", varValue).
		Float64("cvar", cvarValue).
		Msg("Monte Carlo VaR estimated")

	return &MonteCarloResult{
		VaR:        varValue,
		CVaR:       cvarValue,
		MeanReturn: mean,
		WorstCase:  results[0],
		BestCase:   results[len(results)-1],
		Trials:     cfg.Trials,
	}, nil
}
