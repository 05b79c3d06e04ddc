// Risk analysis agent.
// Monitors portfolio VaR, stress scenarios and market regime, and
// publishes risk reports on the bus.
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

	"github.com/quantdesk/quantdesk/internal/agents"
	"github.com/quantdesk/quantdesk/internal/config"
	"github.com/quantdesk/quantdesk/internal/market"
	"github.com/quantdesk/quantdesk/internal/metrics"
	"github.com/quantdesk/quantdesk/internal/risk"
)

const (
	defaultStepInterval = 60 * time.Second
	reportTopic         = "risk.reports"
)

// RiskReport is the agent's per-cycle assessment published on NATS
type RiskReport struct {
	Timestamp    time.Time              `json:"timestamp"`
	VaR          *risk.VaRResult        `json:"var"`
	Sharpe       float64                `json:"sharpe"`
	MaxDrawdown  float64                `json:"max_drawdown"`
	Regime       string                 `json:"regime"`
	Stress       []risk.ScenarioResult  `json:"stress"`
	MonteCarlo   *risk.MonteCarloResult `json:"monte_carlo"`
	Breached     bool                   `json:"breached"`
	BreachReason string                 `json:"breach_reason,omitempty"`
}

// RiskAgent computes portfolio risk over simulated holdings
type RiskAgent struct {
	*agents.BaseAgent

	cfg       *config.Config
	calc      *risk.Calculator
	heartbeat *agents.HeartbeatPublisher

	// Equal weights across the configured universe
	weights map[string]float64
}

// NewRiskAgent creates the agent from loaded configuration
func NewRiskAgent(cfg *config.Config, logger zerolog.Logger, metricsPort int) *RiskAgent {
	agentConfig := &agents.AgentConfig{
		Name:         "risk-agent",
		Type:         "risk",
		Version:      config.Version,
		Symbols:      cfg.Market.Symbols,
		StepInterval: defaultStepInterval,
		Enabled:      true,
	}

	weights := make(map[string]float64, len(cfg.Market.Symbols))
	for _, s := range cfg.Market.Symbols {
		weights[s] = 1.0 / float64(len(cfg.Market.Symbols))
	}

	agent := &RiskAgent{
		BaseAgent: agents.NewBaseAgent(agentConfig, logger, metricsPort),
		cfg:       cfg,
		calc:      risk.NewCalculator(nil),
		weights:   weights,
	}
	agent.SetStep(agent.assess)
	return agent
}

// Connect establishes NATS control and heartbeat publishing
func (a *RiskAgent) Connect() error {
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

// assess runs one full risk pass and publishes the report
func (a *RiskAgent) assess(ctx context.Context) error {
	returns, equity, prices, err := a.portfolioHistory()
	if err != nil {
		return fmt.Errorf("build portfolio history: %w", err)
	}

	report, err := a.buildReport(returns, equity, prices)
	if err != nil {
		return fmt.Errorf("build risk report: %w", err)
	}

	metrics.GetPlatform().PortfolioVaR.Set(report.VaR.VaR)

	if report.Breached {
		log.Warn().
			Str("reason", report.BreachReason).
			Float64("var", report.VaR.VaR).
			Float64("max_drawdown", report.MaxDrawdown).
			Msg("Risk limit breached")
	}

	return a.publishReport(report)
}

// portfolioHistory builds the equal-weighted portfolio return series,
// equity curve and price path from per-symbol simulated histories.
func (a *RiskAgent) portfolioHistory() (returns, equity, prices []float64, err error) {
	symbols := a.GetConfig().Symbols
	n := a.cfg.Market.LookbackDays

	perSymbol, err := market.GenerateReturnsMatrix(symbols, n, market.GeneratorConfig{
		StartPrice: 100,
		Drift:      a.cfg.Market.SyntheticDrift,
		Volatility: a.cfg.Market.SyntheticVol,
		Seed:       a.cfg.Market.SyntheticSeed,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	length := 0
	for _, r := range perSymbol {
		if length == 0 || len(r) < length {
			length = len(r)
		}
	}

	returns = make([]float64, length)
	for _, symbol := range symbols {
		w := a.weights[symbol]
		for i := 0; i < length; i++ {
			returns[i] += w * perSymbol[symbol][i]
		}
	}

	equity = make([]float64, length+1)
	equity[0] = 1
	for i, r := range returns {
		equity[i+1] = equity[i] * (1 + r)
	}
	// Portfolio "price" path for regime detection
	prices = equity
	return returns, equity, prices, nil
}

// buildReport computes every risk measure over the given history
func (a *RiskAgent) buildReport(returns, equity, prices []float64) (*RiskReport, error) {
	varResult, err := a.calc.CalculateVaR(returns, a.cfg.Risk.VaRConfidence)
	if err != nil {
		return nil, fmt.Errorf("var: %w", err)
	}

	sharpe, err := a.calc.CalculateSharpeRatio(returns, a.cfg.Risk.RiskFreeRate)
	if err != nil {
		return nil, fmt.Errorf("sharpe: %w", err)
	}

	_, maxDD, _ := a.calc.CalculateDrawdown(equity)

	regime, err := a.calc.DetectRegimeFromPrices(prices, returns)
	if err != nil {
		return nil, fmt.Errorf("regime: %w", err)
	}

	stress, err := risk.RunScenarios(a.weights, risk.DefaultScenarios())
	if err != nil {
		return nil, fmt.Errorf("stress: %w", err)
	}

	mc, err := risk.MonteCarloVaR(risk.MonteCarloConfig{
		Trials:     a.cfg.Risk.StressPaths,
		Horizon:    a.cfg.Risk.StressHorizon,
		Drift:      a.cfg.Market.SyntheticDrift,
		Volatility: a.cfg.Market.SyntheticVol,
		Confidence: a.cfg.Risk.VaRConfidence,
		Seed:       a.cfg.Risk.StressSeed,
	})
	if err != nil {
		return nil, fmt.Errorf("monte carlo: %w", err)
	}

	report := &RiskReport{
		Timestamp:   time.Now().UTC(),
		VaR:         varResult,
		Sharpe:      sharpe,
		MaxDrawdown: maxDD,
		Regime:      regime.Regime,
		Stress:      stress,
		MonteCarlo:  mc,
	}

	if maxDD > a.cfg.Risk.MaxDrawdown {
		report.Breached = true
		report.BreachReason = fmt.Sprintf("max drawdown %.2f%% exceeds limit %.2f%%",
			maxDD*100, a.cfg.Risk.MaxDrawdown*100)
	}

	return report, nil
}

func (a *RiskAgent) publishReport(report *RiskReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal risk report: %w", err)
	}
	if err := a.NATSConn().Publish(reportTopic, data); err != nil {
		return fmt.Errorf("publish risk report: %w", err)
	}

	log.Info().
		Float64("var", report.VaR.VaR).
		Float64("sharpe", report.Sharpe).
		Str("regime", report.Regime).
		Bool("breached", report.Breached).
		Msg("Risk report published")
	return nil
}

func main() {
	cfg, err := config.Load(os.Getenv("QUANTDESK_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.InitLogger(cfg.App.LogLevel, "console")

	agent := NewRiskAgent(cfg, log.Logger, cfg.Monitoring.PrometheusPort)

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

	log.Info().Msg("Risk agent shutdown complete")
}
