// Quant research agent.
// Trains forecasting models on engineered features, evaluates factor
// ICs and publishes model-driven signals.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantdesk/quantdesk/internal/agents"
	"github.com/quantdesk/quantdesk/internal/config"
	"github.com/quantdesk/quantdesk/internal/factors"
	"github.com/quantdesk/quantdesk/internal/features"
	"github.com/quantdesk/quantdesk/internal/market"
	"github.com/quantdesk/quantdesk/internal/metrics"
	"github.com/quantdesk/quantdesk/internal/models"
)

const defaultStepInterval = 5 * time.Minute

// Forecast is one symbol's model output for a step
type Forecast struct {
	Symbol      string
	Prediction  float64 // forward return estimate
	Metrics     *models.RegressionMetrics
	TopFactor   string
	TopFactorIR float64
}

// QuantAgent owns the training loop and the model registry
type QuantAgent struct {
	*agents.BaseAgent

	cfg       *config.Config
	registry  *models.Registry
	publisher *agents.SignalPublisher
	heartbeat *agents.HeartbeatPublisher

	run int // registration counter, bumps the patch version
}

// NewQuantAgent creates the agent from loaded configuration
func NewQuantAgent(cfg *config.Config, logger zerolog.Logger, metricsPort int) *QuantAgent {
	agentConfig := &agents.AgentConfig{
		Name:         "quant-agent",
		Type:         "quant",
		Version:      config.Version,
		Symbols:      cfg.Market.Symbols,
		StepInterval: defaultStepInterval,
		Enabled:      true,
	}

	agent := &QuantAgent{
		BaseAgent: agents.NewBaseAgent(agentConfig, logger, metricsPort),
		cfg:       cfg,
		registry:  models.NewRegistry(),
	}
	agent.SetStep(agent.research)
	return agent
}

// Connect establishes NATS control, heartbeat and signal publishing
func (a *QuantAgent) Connect() error {
	if err := a.SetupControlSubscription(a.cfg.NATS.URL, a.cfg.NATS.ControlTopic); err != nil {
		return err
	}

	a.publisher = agents.NewSignalPublisher(a.NATSConn(), a.GetName(), a.GetType(), log.Logger)

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

// research retrains per-symbol models and publishes forecasts
func (a *QuantAgent) research(ctx context.Context) error {
	a.run++

	for i, symbol := range a.GetConfig().Symbols {
		series, err := a.loadSeries(symbol, int64(i))
		if err != nil {
			return fmt.Errorf("load series for %s: %w", symbol, err)
		}

		forecast, err := a.trainSymbol(symbol, series)
		if err != nil {
			metrics.GetPlatform().ModelTrainingRuns.WithLabelValues("ridge", "error").Inc()
			log.Warn().Err(err).Str("symbol", symbol).Msg("Model training failed")
			continue
		}
		metrics.GetPlatform().ModelTrainingRuns.WithLabelValues("ridge", "success").Inc()

		if err := a.publisher.Publish(forecastSignal(forecast)); err != nil {
			return fmt.Errorf("publish forecast for %s: %w", symbol, err)
		}
	}
	return nil
}

func (a *QuantAgent) loadSeries(symbol string, offset int64) (*market.Series, error) {
	gen, err := market.NewGenerator(market.GeneratorConfig{
		Symbol:     symbol,
		Interval:   a.cfg.Market.Interval,
		StartPrice: 50000,
		Drift:      a.cfg.Market.SyntheticDrift,
		Volatility: a.cfg.Market.SyntheticVol,
		Seed:       a.cfg.Market.SyntheticSeed + offset,
	})
	if err != nil {
		return nil, err
	}
	return gen.Generate(a.cfg.Market.LookbackDays)
}

// trainSymbol fits a ridge model on the symbol's features, registers
// the run and produces the next-period forecast.
func (a *QuantAgent) trainSymbol(symbol string, series *market.Series) (*Forecast, error) {
	featureCfg := features.DefaultConfig()
	featureCfg.ForwardHorizon = a.cfg.Models.ForwardHorizon

	set, err := features.Build(series, featureCfg)
	if err != nil {
		return nil, fmt.Errorf("build features: %w", err)
	}

	split, err := models.ChronologicalSplit(set.X, set.Forward, a.cfg.Models.TrainRatio)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}

	model := models.NewRidgeRegressor(a.cfg.Models.RidgeLambda)
	if err := model.Fit(split.TrainX, split.TrainY); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	predicted, err := model.Predict(split.TestX)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	testMetrics, err := models.EvaluateRegression(predicted, split.TestY)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	// Refit on the full sample before forecasting
	full := models.NewRidgeRegressor(a.cfg.Models.RidgeLambda)
	if err := full.Fit(set.X, set.Forward); err != nil {
		return nil, fmt.Errorf("refit: %w", err)
	}

	record := &models.Record{
		Name:         modelName(symbol),
		Version:      fmt.Sprintf("1.0.%d", a.run),
		Kind:         "ridge",
		Symbol:       symbol,
		FeatureNames: set.Names,
		Weights:      full.Weights(),
		Metrics: map[string]float64{
			"mse":                  testMetrics.MSE,
			"r2":                   testMetrics.R2,
			"directional_accuracy": testMetrics.DirectionalAccuracy,
		},
	}
	if err := a.registry.Register(record); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	lastRow := make([]float64, set.Cols())
	for j := 0; j < set.Cols(); j++ {
		lastRow[j] = set.X.At(set.Rows()-1, j)
	}
	prediction, err := record.PredictWith(lastRow)
	if err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}

	topFactor, topIR := a.topFactor(series)

	return &Forecast{
		Symbol:      symbol,
		Prediction:  prediction,
		Metrics:     testMetrics,
		TopFactor:   topFactor,
		TopFactorIR: topIR,
	}, nil
}

// modelName derives a registry name from a symbol, "BTC/USD" becomes
// "btc-usd-ridge"
func modelName(symbol string) string {
	normalized := make([]byte, 0, len(symbol))
	for i := 0; i < len(symbol); i++ {
		c := symbol[i]
		switch {
		case c >= 'A' && c <= 'Z':
			c += 'a' - 'A'
		case c == '/' || c == '.' || c == ' ':
			c = '-'
		}
		normalized = append(normalized, c)
	}
	return string(normalized) + "-ridge"
}

// topFactor runs the factor library and returns the best IR entry
func (a *QuantAgent) topFactor(series *market.Series) (string, float64) {
	reports, err := factors.Evaluate(series, factors.DefaultLibrary(), a.cfg.Models.ForwardHorizon, 20)
	if err != nil || len(reports) == 0 {
		return "", 0
	}
	return reports[0].Factor, reports[0].Summary.IR
}

// forecastSignal converts a model forecast into a bus signal. Strength
// scales with the predicted move, saturating at a 2% forward return.
func forecastSignal(f *Forecast) *agents.Signal {
	direction := agents.DirectionFlat
	if f.Prediction > 0.0005 {
		direction = agents.DirectionLong
	} else if f.Prediction < -0.0005 {
		direction = agents.DirectionShort
	}

	strength := math.Min(math.Abs(f.Prediction)/0.02, 1.0)

	confidence := f.Metrics.DirectionalAccuracy
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	rationale := fmt.Sprintf("ridge forecast %.4f, dir acc %.2f", f.Prediction, f.Metrics.DirectionalAccuracy)
	if f.TopFactor != "" {
		rationale += fmt.Sprintf(", top factor %s (IR %.2f)", f.TopFactor, f.TopFactorIR)
	}

	return &agents.Signal{
		Symbol:     f.Symbol,
		Direction:  direction,
		Strength:   strength,
		Confidence: confidence,
		Rationale:  rationale,
	}
}

// Registry exposes the agent's model registry
func (a *QuantAgent) Registry() *models.Registry {
	return a.registry
}

func main() {
	cfg, err := config.Load(os.Getenv("QUANTDESK_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.InitLogger(cfg.App.LogLevel, "console")

	agent := NewQuantAgent(cfg, log.Logger, cfg.Monitoring.PrometheusPort)

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

	log.Info().Msg("Quant agent shutdown complete")
}
