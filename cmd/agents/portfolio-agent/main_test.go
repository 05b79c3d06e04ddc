package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantdesk/quantdesk/internal/config"
	"github.com/quantdesk/quantdesk/internal/portfolio"
)

func testPortfolioConfig() *config.Config {
	return &config.Config{
		Market: config.MarketConfig{
			Symbols:        []string{"BTC/USD", "ETH/USD", "SOL/USD"},
			LookbackDays:   250,
			SyntheticSeed:  42,
			SyntheticDrift: 0.1,
			SyntheticVol:   0.5,
		},
		Portfolio: config.PortfolioConfig{
			MaxWeight:    0.6,
			Shrinkage:    0.1,
			RiskFreeRate: 0.03,
			LongOnly:     true,
		},
	}
}

func TestComputeTargets(t *testing.T) {
	agent := NewPortfolioAgent(testPortfolioConfig(), zerolog.Nop(), 0)

	update, err := agent.computeTargets()
	require.NoError(t, err)
	require.NotNil(t, update.Allocation)

	alloc := update.Allocation
	require.Len(t, alloc.Weights, 3)

	sum := 0.0
	for _, w := range alloc.Weights {
		assert.GreaterOrEqual(t, w, 0.0)
		assert.LessOrEqual(t, w, 0.6+1e-9)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.False(t, update.Timestamp.IsZero())
}

func TestComputeTargetsDeterministic(t *testing.T) {
	agent := NewPortfolioAgent(testPortfolioConfig(), zerolog.Nop(), 0)

	first, err := agent.computeTargets()
	require.NoError(t, err)
	second, err := agent.computeTargets()
	require.NoError(t, err)

	assert.Equal(t, first.Allocation.Weights, second.Allocation.Weights)
	assert.Equal(t, first.Allocation.Method, second.Allocation.Method)
}

func TestExpectedReturns(t *testing.T) {
	returns := map[string][]float64{
		"A": {0.01, 0.02, 0.03},
		"B": {-0.01, 0.01, 0.0},
	}
	mu := expectedReturns([]string{"A", "B"}, returns)
	require.Len(t, mu, 2)
	assert.InDelta(t, 0.02, mu[0], 1e-12)
	assert.InDelta(t, 0.0, mu[1], 1e-12)
}

func TestRiskContributionSpread(t *testing.T) {
	alloc := &portfolio.Allocation{RiskContributions: []float64{0.2, 0.5, 0.3}}
	assert.InDelta(t, 0.3, riskContributionSpread(alloc), 1e-12)
	assert.Equal(t, 0.0, riskContributionSpread(&portfolio.Allocation{}))
}
