package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"github.com/quantdesk/quantdesk/internal/db"
	"github.com/quantdesk/quantdesk/internal/factors"
	"github.com/quantdesk/quantdesk/internal/features"
	"github.com/quantdesk/quantdesk/internal/market"
	"github.com/quantdesk/quantdesk/internal/metrics"
	"github.com/quantdesk/quantdesk/internal/models"
	"github.com/quantdesk/quantdesk/internal/portfolio"
	"github.com/quantdesk/quantdesk/internal/risk"
)

// Root handler
func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "QuantDesk API",
		"version": "1.0.0",
		"status":  "running",
		"time":    time.Now().UTC(),
	})
}

// Status endpoints

// handleGetStatus returns comprehensive system status
func (s *Server) handleGetStatus(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbStatus := "healthy"
	if s.db != nil {
		if err := s.db.Health(c.Request.Context()); err != nil {
			dbStatus = "unhealthy"
			log.Warn().Err(err).Msg("Database health check failed")
		}
	} else {
		dbStatus = "not_configured"
	}

	natsStatus := "not_configured"
	if s.natsConn != nil {
		if s.natsConn.IsConnected() {
			natsStatus = "healthy"
		} else {
			natsStatus = "unhealthy"
		}
	}

	systemStatus := "healthy"
	if dbStatus == "unhealthy" || natsStatus == "unhealthy" {
		systemStatus = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    systemStatus,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(startTime).Seconds(),
		"version":   "1.0.0",
		"components": gin.H{
			"database": gin.H{"status": dbStatus},
			"nats":     gin.H{"status": natsStatus},
		},
		"system": gin.H{
			"goroutines": runtime.NumGoroutine(),
			"memory": gin.H{
				"alloc_mb": toMB(memStats.Alloc),
				"sys_mb":   toMB(memStats.Sys),
				"num_gc":   memStats.NumGC,
			},
			"go_version": runtime.Version(),
		},
	})
}

// handleGetHealth returns a simple health check (for load balancers)
func (s *Server) handleGetHealth(c *gin.Context) {
	if s.db != nil {
		if err := s.db.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database unavailable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// Indicator endpoints

// handleCalculateIndicator dispatches to the indicator service. The
// request body is the service's loosely typed argument map, the same
// shape the MCP tools accept.
func (s *Server) handleCalculateIndicator(c *gin.Context) {
	name := c.Param("name")

	var args map[string]interface{}
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	var result interface{}
	var err error

	switch name {
	case "sma":
		result, err = s.indicators.CalculateSMA(args)
	case "ema":
		result, err = s.indicators.CalculateEMA(args)
	case "rsi":
		result, err = s.indicators.CalculateRSI(args)
	case "macd":
		result, err = s.indicators.CalculateMACD(args)
	case "bollinger_bands":
		result, err = s.indicators.CalculateBollingerBands(args)
	case "atr":
		result, err = s.indicators.CalculateATR(args)
	case "adx":
		result, err = s.indicators.CalculateADX(args)
	default:
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("unknown indicator: %s", name),
		})
		return
	}

	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Risk endpoints

func (s *Server) handleCalculateVaR(c *gin.Context) {
	var req struct {
		Returns    []float64 `json:"returns"`
		Prices     []float64 `json:"prices"`
		Confidence float64   `json:"confidence"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	if req.Confidence == 0 {
		req.Confidence = 0.95
	}

	returns := req.Returns
	if len(returns) == 0 && len(req.Prices) > 1 {
		returns = market.SimpleReturns(req.Prices)
	}

	result, err := s.riskCalc.CalculateVaR(returns, req.Confidence)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleRunStress(c *gin.Context) {
	var req struct {
		Weights map[string]float64 `json:"weights" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	results, err := risk.RunScenarios(req.Weights, risk.DefaultScenarios())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"worst":   results[0].Scenario,
	})
}

func (s *Server) handleMonteCarlo(c *gin.Context) {
	var req struct {
		Trials     int     `json:"trials"`
		Horizon    int     `json:"horizon"`
		Drift      float64 `json:"drift"`
		Volatility float64 `json:"volatility"`
		Confidence float64 `json:"confidence"`
		Seed       int64   `json:"seed"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	if req.Trials == 0 {
		req.Trials = 10000
	}
	if req.Horizon == 0 {
		req.Horizon = 1
	}
	if req.Confidence == 0 {
		req.Confidence = 0.95
	}

	result, err := risk.MonteCarloVaR(risk.MonteCarloConfig{
		Trials:     req.Trials,
		Horizon:    req.Horizon,
		Drift:      req.Drift,
		Volatility: req.Volatility,
		Confidence: req.Confidence,
		Seed:       req.Seed,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	metrics.GetPlatform().PortfolioVaR.Set(result.VaR)
	c.JSON(http.StatusOK, result)
}

// Portfolio endpoints

func (s *Server) handleOptimizePortfolio(c *gin.Context) {
	var req struct {
		Symbols   []string             `json:"symbols" binding:"required"`
		Returns   map[string][]float64 `json:"returns" binding:"required"`
		Method    string               `json:"method"`
		RiskFree  float64              `json:"risk_free"`
		Shrinkage float64              `json:"shrinkage"`
		LongOnly  bool                 `json:"long_only"`
		MaxWeight float64              `json:"max_weight"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	cov, err := portfolio.CovarianceMatrix(req.Returns, req.Symbols, req.Shrinkage)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mu := make([]float64, len(req.Symbols))
	for i, symbol := range req.Symbols {
		mu[i] = stat.Mean(req.Returns[symbol], nil)
	}

	cons := portfolio.Constraints{LongOnly: req.LongOnly, MaxWeight: req.MaxWeight}

	var alloc *portfolio.Allocation
	switch req.Method {
	case "", "min_variance":
		alloc, err = portfolio.MinVariance(req.Symbols, cov, mu, req.RiskFree, cons)
	case "max_sharpe":
		alloc, err = portfolio.MaxSharpe(req.Symbols, cov, mu, req.RiskFree, cons)
	case "risk_parity":
		alloc, err = portfolio.RiskParity(req.Symbols, cov, mu, req.RiskFree, cons)
	case "equal_weight":
		alloc, err = portfolio.EqualWeight(req.Symbols, cov, mu, req.RiskFree)
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unknown method: %s", req.Method),
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	metrics.GetPlatform().PortfolioVol.Set(alloc.Volatility)
	c.JSON(http.StatusOK, alloc)
}

// Model endpoints

func (s *Server) handleListModels(c *gin.Context) {
	names := s.registry.Names()
	out := make([]gin.H, 0, len(names))
	for _, name := range names {
		out = append(out, gin.H{
			"name":     name,
			"versions": s.registry.Versions(name),
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": out, "total": len(out)})
}

func (s *Server) handleTrainModel(c *gin.Context) {
	var req struct {
		Name    string          `json:"name" binding:"required"`
		Version string          `json:"version" binding:"required"`
		Kind    string          `json:"kind"`
		Symbol  string          `json:"symbol"`
		Candles []market.Candle `json:"candles" binding:"required"`
		Lambda  float64         `json:"lambda"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid request: %v", err),
		})
		return
	}
	if req.Kind == "" {
		req.Kind = "ridge"
	}

	series := &market.Series{Symbol: req.Symbol, Candles: req.Candles}
	set, err := features.Build(series, features.DefaultConfig())
	if err != nil {
		metrics.GetPlatform().ModelTrainingRuns.WithLabelValues(req.Kind, "error").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, trainMetrics, err := trainAndEvaluate(req.Kind, req.Lambda, set)
	if err != nil {
		metrics.GetPlatform().ModelTrainingRuns.WithLabelValues(req.Kind, "error").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record.Name = req.Name
	record.Version = req.Version
	record.Symbol = req.Symbol

	if err := s.registry.Register(record); err != nil {
		metrics.GetPlatform().ModelTrainingRuns.WithLabelValues(req.Kind, "error").Inc()
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	metrics.GetPlatform().ModelTrainingRuns.WithLabelValues(req.Kind, "success").Inc()

	if s.modelRuns != nil {
		dbCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		if err := s.modelRuns.Insert(dbCtx, db.RunRowFromRecord(record, set.Rows())); err != nil {
			log.Warn().Err(err).Str("model", record.Name).Msg("Failed to persist model run")
		}
		cancel()
	}

	c.JSON(http.StatusCreated, gin.H{
		"model":   record,
		"metrics": trainMetrics,
		"samples": set.Rows(),
	})
}

// trainAndEvaluate fits a model on a chronological 80/20 split and
// returns a registry record built from full-sample weights.
func trainAndEvaluate(kind string, lambda float64, set *features.Set) (*models.Record, gin.H, error) {
	switch kind {
	case "ridge":
		split, err := models.ChronologicalSplit(set.X, set.Forward, 0.8)
		if err != nil {
			return nil, nil, err
		}
		model := models.NewRidgeRegressor(lambda)
		if err := model.Fit(split.TrainX, split.TrainY); err != nil {
			return nil, nil, err
		}
		predicted, err := model.Predict(split.TestX)
		if err != nil {
			return nil, nil, err
		}
		m, err := models.EvaluateRegression(predicted, split.TestY)
		if err != nil {
			return nil, nil, err
		}

		full := models.NewRidgeRegressor(lambda)
		if err := full.Fit(set.X, set.Forward); err != nil {
			return nil, nil, err
		}
		record := &models.Record{
			Kind:         "ridge",
			FeatureNames: set.Names,
			Weights:      full.Weights(),
			Metrics: map[string]float64{
				"mse":                  m.MSE,
				"rmse":                 m.RMSE,
				"r2":                   m.R2,
				"directional_accuracy": m.DirectionalAccuracy,
			},
		}
		return record, gin.H{"regression": m}, nil

	case "logistic":
		split, err := models.ChronologicalSplit(set.X, set.Direction, 0.8)
		if err != nil {
			return nil, nil, err
		}
		model := models.NewLogisticClassifier(0.1, 500)
		if err := model.Fit(split.TrainX, split.TrainY); err != nil {
			return nil, nil, err
		}
		predicted, err := model.Predict(split.TestX)
		if err != nil {
			return nil, nil, err
		}
		m, err := models.EvaluateClassification(predicted, split.TestY)
		if err != nil {
			return nil, nil, err
		}

		full := models.NewLogisticClassifier(0.1, 500)
		if err := full.Fit(set.X, set.Direction); err != nil {
			return nil, nil, err
		}
		record := &models.Record{
			Kind:         "logistic",
			FeatureNames: set.Names,
			Weights:      full.Weights(),
			Metrics: map[string]float64{
				"accuracy":  m.Accuracy,
				"precision": m.Precision,
				"recall":    m.Recall,
				"f1":        m.F1,
			},
		}
		return record, gin.H{"classification": m}, nil

	default:
		return nil, nil, fmt.Errorf("unknown model kind: %s", kind)
	}
}

func (s *Server) handlePredict(c *gin.Context) {
	var req struct {
		Name     string    `json:"name" binding:"required"`
		Version  string    `json:"version"`
		Features []float64 `json:"features" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	var record *models.Record
	var err error
	if req.Version == "" {
		record, err = s.registry.Latest(req.Name)
	} else {
		record, err = s.registry.Get(req.Name, req.Version)
	}
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	prediction, err := record.PredictWith(req.Features)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":       record.Name,
		"version":    record.Version,
		"kind":       record.Kind,
		"prediction": prediction,
	})
}

// Factor endpoints

func (s *Server) handleFactorIC(c *gin.Context) {
	var req struct {
		Symbol  string          `json:"symbol"`
		Candles []market.Candle `json:"candles" binding:"required"`
		Horizon int             `json:"horizon"`
		Window  int             `json:"window"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	if req.Horizon == 0 {
		req.Horizon = 1
	}
	if req.Window == 0 {
		req.Window = 20
	}

	series := &market.Series{Symbol: req.Symbol, Candles: req.Candles}
	reports, err := factors.Evaluate(series, factors.DefaultLibrary(), req.Horizon, req.Window)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":  req.Symbol,
		"horizon": req.Horizon,
		"window":  req.Window,
		"reports": reports,
	})
}

// Utility functions

var startTime = time.Now()

func toMB(bytes uint64) uint64 {
	return bytes / 1024 / 1024
}
