// Portfolio optimization agent.
// Rebalances target weights from simulated return histories and
// publishes them on the bus.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"github.com/quantdesk/quantdesk/internal/agents"
	"github.com/quantdesk/quantdesk/internal/config"
	"github.com/quantdesk/quantdesk/internal/market"
	"github.com/quantdesk/quantdesk/internal/metrics"
	"github.com/quantdesk/quantdesk/internal/portfolio"
)

const (
	defaultStepInterval = 5 * time.Minute
	targetsTopic        = "portfolio.targets"
)

// TargetUpdate is the rebalance message published on NATS
type TargetUpdate struct {
	Timestamp  time.Time             `json:"timestamp"`
	Allocation *portfolio.Allocation `json:"allocation"`
	Fallback   bool                  `json:"fallback"` // true when max_sharpe was infeasible
}

// PortfolioAgent runs the optimizer over the configured universe
type PortfolioAgent struct {
	*agents.BaseAgent

	cfg       *config.Config
	heartbeat *agents.HeartbeatPublisher
}

// NewPortfolioAgent creates the agent from loaded configuration
func NewPortfolioAgent(cfg *config.Config, logger zerolog.Logger, metricsPort int) *PortfolioAgent {
	agentConfig := &agents.AgentConfig{
		Name:         "portfolio-agent",
		Type:         "portfolio",
		Version:      config.Version,
		Symbols:      cfg.Market.Symbols,
		StepInterval: defaultStepInterval,
		Enabled:      true,
	}

	agent := &PortfolioAgent{
		BaseAgent: agents.NewBaseAgent(agentConfig, logger, metricsPort),
		cfg:       cfg,
	}
	agent.SetStep(agent.rebalance)
	return agent
}

// Connect establishes NATS control and heartbeat publishing
func (a *PortfolioAgent) Connect() error {
	if err := a.SetupControlSubscription(a.cfg.NATS.URL, a.cfg.NATS.ControlTopic); err != nil {
		return err
	}

	a.heartbeat = agents.NewHeartbeatPublisher(
		a.NATSConn(), a.GetName(), a.GetType(), a.GetVersion(),
		agents.DefaultHeartbeatConfig(),
		func() string {
			if a.IsPaused() {
				return "paused"
			}
			return "running"
		},
		log.Logger,
	)
	return a.heartbeat.Start()
}

// rebalance runs one optimization pass and publishes target weights
func (a *PortfolioAgent) rebalance(ctx context.Context) error {
	update, err := a.computeTargets()
	if err != nil {
		return fmt.Errorf("compute targets: %w", err)
	}

	metrics.GetPlatform().PortfolioVol.Set(update.Allocation.Volatility)

	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal target update: %w", err)
	}
	if err := a.NATSConn().Publish(targetsTopic, data); err != nil {
		return fmt.Errorf("publish target update: %w", err)
	}

	log.Info().
		Str("method", update.Allocation.Method).
		Float64("volatility", update.Allocation.Volatility).
		Float64("sharpe", update.Allocation.Sharpe).
		Float64("rc_spread", riskContributionSpread(update.Allocation)).
		Bool("fallback", update.Fallback).
		Msg("Target weights published")
	return nil
}

// computeTargets optimizes over simulated return histories. The
// tangency portfolio is preferred; when no asset clears the risk-free
// rate the agent falls back to minimum variance.
func (a *PortfolioAgent) computeTargets() (*TargetUpdate, error) {
	symbols := a.GetConfig().Symbols

	returns, err := market.GenerateReturnsMatrix(symbols, a.cfg.Market.LookbackDays, market.GeneratorConfig{
		StartPrice: 100,
		Drift:      a.cfg.Market.SyntheticDrift,
		Volatility: a.cfg.Market.SyntheticVol,
		Seed:       a.cfg.Market.SyntheticSeed,
	})
	if err != nil {
		return nil, err
	}

	cov, err := portfolio.CovarianceMatrix(returns, symbols, a.cfg.Portfolio.Shrinkage)
	if err != nil {
		return nil, err
	}

	mu := expectedReturns(symbols, returns)
	// Per-bar risk-free rate to match the per-bar return scale
	rf := a.cfg.Portfolio.RiskFreeRate / 252

	cons := portfolio.Constraints{
		LongOnly:  a.cfg.Portfolio.LongOnly,
		MaxWeight: a.cfg.Portfolio.MaxWeight,
	}

	alloc, err := portfolio.MaxSharpe(symbols, cov, mu, rf, cons)
	if err == nil {
		return &TargetUpdate{Timestamp: time.Now().UTC(), Allocation: alloc}, nil
	}

	log.Warn().Err(err).Msg("Tangency portfolio infeasible, falling back to minimum variance")

	alloc, err = portfolio.MinVariance(symbols, cov, mu, rf, cons)
	if err != nil {
		return nil, err
	}
	return &TargetUpdate{Timestamp: time.Now().UTC(), Allocation: alloc, Fallback: true}, nil
}

// expectedReturns estimates per-asset expected returns as sample means
func expectedReturns(symbols []string, returns map[string][]float64) []float64 {
	mu := make([]float64, len(symbols))
	for i, symbol := range symbols {
		mu[i] = stat.Mean(returns[symbol], nil)
	}
	return mu
}

// riskContributionSpread measures how uneven risk contributions are,
// used for logging optimizer diagnostics
func riskContributionSpread(alloc *portfolio.Allocation) float64 {
	if len(alloc.RiskContributions) == 0 {
		return 0
	}
	min, max := alloc.RiskContributions[0], alloc.RiskContributions[0]
	for _, rc := range alloc.RiskContributions[1:] {
		if rc < min {
			min = rc
		}
		if rc > max {
			max = rc
		}
	}
	return max - min
}

func main() {
	cfg, err := config.Load(os.Getenv("QUANTDESK_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.InitLogger(cfg.App.LogLevel, "console")

	agent := NewPortfolioAgent(cfg, log.Logger, cfg.Monitoring.PrometheusPort)

	ctx := context.Background()
	if err := agent.Initialize(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize agent")
	}
	if err := agent.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- agent.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-errChan:
		if err != nil {
			log.Error().Err(err).Msg("Agent run error")
		}
	}

	agent.heartbeat.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := agent.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
		os.Exit(1)
	}

	log.Info().Msg("Portfolio agent shutdown complete")
}
