// Technical analysis agent.
// Computes indicators over candle series and publishes trading signals.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantdesk/quantdesk/internal/agents"
	"github.com/quantdesk/quantdesk/internal/config"
	"github.com/quantdesk/quantdesk/internal/indicators"
	"github.com/quantdesk/quantdesk/internal/market"
	"github.com/quantdesk/quantdesk/internal/risk"
)

const (
	defaultStepInterval = 30 * time.Second
	mcpServerName       = "technical_indicators"
)

// TechnicalAgent generates signals from indicator readings
type TechnicalAgent struct {
	*agents.BaseAgent

	cfg       *config.Config
	service   *indicators.Service
	publisher *agents.SignalPublisher
	heartbeat *agents.HeartbeatPublisher
	cache     *market.RedisCandleCache

	// Candle series are regenerated each step from per-symbol seeds so
	// consecutive runs stay reproducible.
	seedBase int64
	bars     int
}

// IndicatorVote is a single indicator's contribution to the decision
type IndicatorVote struct {
	Name   string
	Vote   int // +1 bullish, -1 bearish, 0 neutral
	Weight float64
}

// NewTechnicalAgent creates the agent from loaded configuration
func NewTechnicalAgent(cfg *config.Config, logger zerolog.Logger, metricsPort int) *TechnicalAgent {
	agentConfig := &agents.AgentConfig{
		Name:         "technical-agent",
		Type:         "technical",
		Version:      config.Version,
		Symbols:      cfg.Market.Symbols,
		StepInterval: defaultStepInterval,
		Enabled:      true,
	}

	// The indicators MCP server is attached when its binary is present;
	// the agent computes locally either way.
	mcpCfg := cfg.MCP.Internal.TechnicalIndicators
	if mcpCfg.Enabled && mcpCfg.Command != "" {
		if _, err := os.Stat(mcpCfg.Command); err == nil {
			agentConfig.MCPServers = append(agentConfig.MCPServers, agents.MCPServerConfig{
				Name:    mcpServerName,
				Type:    "internal",
				Command: mcpCfg.Command,
				Args:    mcpCfg.Args,
				Env:     mcpCfg.Env,
			})
		} else {
			logger.Warn().Str("command", mcpCfg.Command).Msg("MCP server binary not found, computing indicators in-process")
		}
	}

	agent := &TechnicalAgent{
		BaseAgent: agents.NewBaseAgent(agentConfig, logger, metricsPort),
		cfg:       cfg,
		service:   indicators.NewService(),
		seedBase:  cfg.Market.SyntheticSeed,
		bars:      cfg.Market.LookbackDays,
	}

	// The series cache degrades per call through its breaker, so a down
	// Redis never blocks an analysis step.
	if cfg.Redis.Host != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		breakers := risk.NewCircuitBreakerManager()
		agent.cache = market.NewRedisCandleCacheWithBreaker(
			client,
			time.Duration(cfg.Redis.CacheTTL)*time.Second,
			breakers.MarketData(),
		)
	}

	agent.SetStep(agent.analyze)
	return agent
}

// Connect establishes NATS control, heartbeat and signal publishing
func (a *TechnicalAgent) Connect() error {
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

// analyze runs one indicator pass over every configured symbol
func (a *TechnicalAgent) analyze(ctx context.Context) error {
	for i, symbol := range a.GetConfig().Symbols {
		series, err := a.loadSeries(ctx, symbol, int64(i))
		if err != nil {
			return fmt.Errorf("load series for %s: %w", symbol, err)
		}

		signal, err := a.evaluateSymbol(ctx, symbol, series)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Indicator evaluation failed")
			continue
		}

		if err := a.publisher.Publish(signal); err != nil {
			return fmt.Errorf("publish signal for %s: %w", symbol, err)
		}
	}
	return nil
}

// loadSeries produces the symbol's candle history, serving from the
// Redis cache when a fresh copy is there. The platform runs on
// simulated data; each symbol gets a deterministic seed offset.
func (a *TechnicalAgent) loadSeries(ctx context.Context, symbol string, offset int64) (*market.Series, error) {
	if cached, ok := a.cache.Get(ctx, symbol, a.cfg.Market.Interval); ok {
		return cached, nil
	}

	gen, err := market.NewGenerator(market.GeneratorConfig{
		Symbol:     symbol,
		Interval:   a.cfg.Market.Interval,
		StartPrice: 50000,
		Drift:      a.cfg.Market.SyntheticDrift,
		Volatility: a.cfg.Market.SyntheticVol,
		Seed:       a.seedBase + offset,
	})
	if err != nil {
		return nil, err
	}

	series, err := gen.Generate(a.bars)
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		if err := a.cache.Set(ctx, series); err != nil {
			log.Debug().Err(err).Str("symbol", symbol).Msg("Series cache write failed")
		}
	}
	return series, nil
}

// evaluateSymbol combines RSI, MACD and Bollinger readings into one
// signal
func (a *TechnicalAgent) evaluateSymbol(ctx context.Context, symbol string, series *market.Series) (*agents.Signal, error) {
	closes := series.Closes()
	args := map[string]interface{}{"prices": toArgs(closes)}

	rsi, macd, bb, err := a.readings(ctx, args)
	if err != nil {
		return nil, err
	}

	votes := []IndicatorVote{
		{Name: "rsi", Vote: voteFromSignal(rsi.Signal), Weight: 0.35},
		{Name: "macd", Vote: voteFromSignal(macd.Crossover), Weight: 0.40},
		{Name: "bollinger", Vote: voteFromSignal(bb.Signal), Weight: 0.25},
	}

	direction, strength, rationale := combineVotes(votes)

	return &agents.Signal{
		Symbol:     symbol,
		Direction:  direction,
		Strength:   strength,
		Confidence: confidenceFromVotes(votes),
		Rationale:  rationale,
	}, nil
}

// readings fetches the three indicator results, through the MCP tool
// session when one is attached and in-process otherwise
func (a *TechnicalAgent) readings(ctx context.Context, args map[string]interface{}) (*indicators.RSIResult, *indicators.MACDResult, *indicators.BollingerBandsResult, error) {
	if a.BaseAgent != nil && a.HasMCPSession(mcpServerName) {
		rsi, macd, bb, err := a.mcpReadings(ctx, args)
		if err == nil {
			return rsi, macd, bb, nil
		}
		log.Warn().Err(err).Msg("MCP indicator calls failed, computing in-process")
	}
	return a.localReadings(args)
}

// mcpReadings calls the indicator tools on the attached MCP server
func (a *TechnicalAgent) mcpReadings(ctx context.Context, args map[string]interface{}) (*indicators.RSIResult, *indicators.MACDResult, *indicators.BollingerBandsResult, error) {
	var rsi indicators.RSIResult
	if err := a.callIndicatorTool(ctx, "calculate_rsi", args, &rsi); err != nil {
		return nil, nil, nil, fmt.Errorf("rsi: %w", err)
	}

	var macd indicators.MACDResult
	if err := a.callIndicatorTool(ctx, "calculate_macd", args, &macd); err != nil {
		return nil, nil, nil, fmt.Errorf("macd: %w", err)
	}

	var bb indicators.BollingerBandsResult
	if err := a.callIndicatorTool(ctx, "calculate_bollinger_bands", args, &bb); err != nil {
		return nil, nil, nil, fmt.Errorf("bollinger: %w", err)
	}

	return &rsi, &macd, &bb, nil
}

// callIndicatorTool invokes one MCP tool and decodes its text payload
func (a *TechnicalAgent) callIndicatorTool(ctx context.Context, tool string, args map[string]interface{}, out interface{}) error {
	result, err := a.CallMCPTool(ctx, mcpServerName, tool, args)
	if err != nil {
		return err
	}
	return decodeToolResult(result, out)
}

// decodeToolResult unmarshals the JSON text content of an MCP tool call
func decodeToolResult(result *mcp.CallToolResult, out interface{}) error {
	if result == nil || len(result.Content) == 0 {
		return fmt.Errorf("empty tool result")
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		return fmt.Errorf("unexpected content type %T", result.Content[0])
	}
	if result.IsError {
		return fmt.Errorf("tool error: %s", text.Text)
	}
	return json.Unmarshal([]byte(text.Text), out)
}

// localReadings computes the indicators with the in-process service
func (a *TechnicalAgent) localReadings(args map[string]interface{}) (*indicators.RSIResult, *indicators.MACDResult, *indicators.BollingerBandsResult, error) {
	rsiResult, err := a.service.CalculateRSI(args)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("rsi: %w", err)
	}
	macdResult, err := a.service.CalculateMACD(args)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("macd: %w", err)
	}
	bbResult, err := a.service.CalculateBollingerBands(args)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("bollinger: %w", err)
	}

	rsi, ok := rsiResult.(*indicators.RSIResult)
	if !ok {
		return nil, nil, nil, fmt.Errorf("unexpected rsi result type %T", rsiResult)
	}
	macd, ok := macdResult.(*indicators.MACDResult)
	if !ok {
		return nil, nil, nil, fmt.Errorf("unexpected macd result type %T", macdResult)
	}
	bb, ok := bbResult.(*indicators.BollingerBandsResult)
	if !ok {
		return nil, nil, nil, fmt.Errorf("unexpected bollinger result type %T", bbResult)
	}
	return rsi, macd, bb, nil
}

// voteFromSignal maps an indicator's interpretation to a vote
func voteFromSignal(signal string) int {
	switch signal {
	case "oversold", "bullish", "buy":
		return 1
	case "overbought", "bearish", "sell":
		return -1
	default:
		return 0
	}
}

// combineVotes turns weighted votes into a direction and strength.
// Net score in [-1, 1]; |score| < 0.2 is flat.
func combineVotes(votes []IndicatorVote) (direction string, strength float64, rationale string) {
	score := 0.0
	totalWeight := 0.0
	rationale = ""
	for _, v := range votes {
		score += float64(v.Vote) * v.Weight
		totalWeight += v.Weight
		if v.Vote != 0 {
			side := "bullish"
			if v.Vote < 0 {
				side = "bearish"
			}
			if rationale != "" {
				rationale += ", "
			}
			rationale += v.Name + " " + side
		}
	}
	if totalWeight > 0 {
		score /= totalWeight
	}

	strength = score
	if strength < 0 {
		strength = -strength
	}

	switch {
	case score >= 0.2:
		direction = agents.DirectionLong
	case score <= -0.2:
		direction = agents.DirectionShort
	default:
		direction = agents.DirectionFlat
	}
	if rationale == "" {
		rationale = "indicators neutral"
	}
	return direction, strength, rationale
}

// confidenceFromVotes measures indicator agreement in [0, 1]
func confidenceFromVotes(votes []IndicatorVote) float64 {
	if len(votes) == 0 {
		return 0
	}
	agreeing := 0
	for _, v := range votes {
		if v.Vote != 0 {
			agreeing++
		}
	}
	return float64(agreeing) / float64(len(votes))
}

func toArgs(values []float64) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func main() {
	cfg, err := config.Load(os.Getenv("QUANTDESK_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.InitLogger(cfg.App.LogLevel, "console")

	agent := NewTechnicalAgent(cfg, log.Logger, cfg.Monitoring.PrometheusPort)

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

	log.Info().Msg("Technical analysis agent shutdown complete")
}
