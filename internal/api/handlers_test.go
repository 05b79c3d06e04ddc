package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantdesk/quantdesk/internal/market"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(Config{Host: "127.0.0.1", Port: 0})
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func testCandles(t *testing.T, n int) []market.Candle {
	t.Helper()
	gen, err := market.NewGenerator(market.GeneratorConfig{
		Symbol:     "BTC/USD",
		StartPrice: 50000,
		Drift:      0.05,
		Volatility: 0.5,
		Seed:       42,
	})
	require.NoError(t, err)
	series, err := gen.Generate(n)
	require.NoError(t, err)
	return series.Candles
}

func TestRootAndHealth(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "QuantDesk API", decodeBody(t, w)["service"])

	w = doJSON(t, s, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeBody(t, w)["status"])

	w = doJSON(t, s, http.MethodGet, "/api/v1/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "healthy", body["status"])
	components := body["components"].(map[string]interface{})
	db := components["database"].(map[string]interface{})
	assert.Equal(t, "not_configured", db["status"])
}

func TestCalculateIndicator(t *testing.T) {
	s := newTestServer(t)

	prices := []float64{44, 44.5, 43.8, 44.2, 45.1, 45.8, 46.2, 45.9, 46.5, 47.1,
		46.8, 47.5, 48.2, 47.9, 48.5, 49.1}

	w := doJSON(t, s, http.MethodPost, "/api/v1/indicators/rsi", gin.H{
		"prices": prices,
		"period": 14,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body, "value")
	assert.Contains(t, body, "signal")

	w = doJSON(t, s, http.MethodPost, "/api/v1/indicators/wavelet", gin.H{"prices": prices})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/indicators/sma", gin.H{"prices": []float64{1, 2}, "period": 10})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCalculateVaR(t *testing.T) {
	s := newTestServer(t)

	returns := make([]float64, 0, 20)
	for i := 1; i <= 20; i++ {
		returns = append(returns, -0.005*float64(i)+0.05)
	}

	w := doJSON(t, s, http.MethodPost, "/api/v1/risk/var", gin.H{
		"returns":    returns,
		"confidence": 0.95,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Greater(t, body["var"].(float64), 0.0)
	assert.GreaterOrEqual(t, body["cvar"].(float64), body["var"].(float64))

	// Prices are accepted in place of returns
	w = doJSON(t, s, http.MethodPost, "/api/v1/risk/var", gin.H{
		"prices": []float64{100, 99, 101, 98, 102, 97, 103, 96, 104, 95},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/risk/var", gin.H{"returns": []float64{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunStress(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/risk/stress", gin.H{
		"weights": gin.H{"BTC/USD": 0.6, "ETH/USD": 0.4},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "crypto_winter", body["worst"])
	results := body["results"].([]interface{})
	assert.Len(t, results, 4)

	w = doJSON(t, s, http.MethodPost, "/api/v1/risk/stress", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMonteCarlo(t *testing.T) {
	s := newTestServer(t)

	req := gin.H{
		"trials":     1000,
		"horizon":    10,
		"volatility": 0.6,
		"confidence": 0.95,
		"seed":       7,
	}

	w := doJSON(t, s, http.MethodPost, "/api/v1/risk/montecarlo", req)
	assert.Equal(t, http.StatusOK, w.Code)
	first := decodeBody(t, w)

	w = doJSON(t, s, http.MethodPost, "/api/v1/risk/montecarlo", req)
	assert.Equal(t, http.StatusOK, w.Code)
	second := decodeBody(t, w)

	// Same seed, same estimate
	assert.Equal(t, first["var"], second["var"])

	w = doJSON(t, s, http.MethodPost, "/api/v1/risk/montecarlo", gin.H{
		"trials": 10, "volatility": 0.6,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOptimizePortfolio(t *testing.T) {
	s := newTestServer(t)

	symbols := []string{"BTC/USD", "ETH/USD", "SOL/USD"}
	returns, err := market.GenerateReturnsMatrix(symbols, 250, market.GeneratorConfig{
		StartPrice: 100,
		Drift:      0.1,
		Volatility: 0.5,
		Seed:       11,
	})
	require.NoError(t, err)

	for _, method := range []string{"min_variance", "max_sharpe", "risk_parity", "equal_weight"} {
		t.Run(method, func(t *testing.T) {
			w := doJSON(t, s, http.MethodPost, "/api/v1/portfolio/optimize", gin.H{
				"symbols":   symbols,
				"returns":   returns,
				"method":    method,
				"shrinkage": 0.1,
				"long_only": true,
			})
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			body := decodeBody(t, w)
			assert.Equal(t, method, body["method"])

			weights := body["weights"].([]interface{})
			require.Len(t, weights, 3)
			sum := 0.0
			for _, v := range weights {
				sum += v.(float64)
			}
			assert.InDelta(t, 1.0, sum, 1e-6)
		})
	}

	w := doJSON(t, s, http.MethodPost, "/api/v1/portfolio/optimize", gin.H{
		"symbols": symbols,
		"returns": returns,
		"method":  "genetic",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestModelTrainPredictFlow(t *testing.T) {
	s := newTestServer(t)

	candles := testCandles(t, 200)

	w := doJSON(t, s, http.MethodPost, "/api/v1/models/train", gin.H{
		"name":    "btc-ridge",
		"version": "1.0.0",
		"kind":    "ridge",
		"symbol":  "BTC/USD",
		"candles": candles,
		"lambda":  0.5,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decodeBody(t, w)
	model := body["model"].(map[string]interface{})
	assert.Equal(t, "btc-ridge", model["name"])
	featureNames := model["feature_names"].([]interface{})

	// Duplicate version is rejected
	w = doJSON(t, s, http.MethodPost, "/api/v1/models/train", gin.H{
		"name":    "btc-ridge",
		"version": "1.0.0",
		"kind":    "ridge",
		"symbol":  "BTC/USD",
		"candles": candles,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/models", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decodeBody(t, w)["total"])

	features := make([]float64, len(featureNames))
	w = doJSON(t, s, http.MethodPost, "/api/v1/models/predict", gin.H{
		"name":     "btc-ridge",
		"features": features,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	predBody := decodeBody(t, w)
	assert.Equal(t, "1.0.0", predBody["version"])
	assert.Contains(t, predBody, "prediction")

	// Wrong feature count
	w = doJSON(t, s, http.MethodPost, "/api/v1/models/predict", gin.H{
		"name":     "btc-ridge",
		"features": []float64{1, 2},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown model
	w = doJSON(t, s, http.MethodPost, "/api/v1/models/predict", gin.H{
		"name":     "eth-ridge",
		"features": features,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFactorIC(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/factors/ic", gin.H{
		"symbol":  "BTC/USD",
		"candles": testCandles(t, 250),
		"horizon": 1,
		"window":  20,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	reports := body["reports"].([]interface{})
	assert.NotEmpty(t, reports)

	w = doJSON(t, s, http.MethodPost, "/api/v1/factors/ic", gin.H{
		"symbol":  "BTC/USD",
		"candles": testCandles(t, 5),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit(t *testing.T) {
	s := NewServer(Config{Host: "127.0.0.1", Port: 0, RateLimit: 1})

	limited := false
	for i := 0; i < 10; i++ {
		w := doJSON(t, s, http.MethodGet, "/api/v1/health", nil)
		if w.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited, "expected a 429 under burst traffic")
}

func TestStatusUptime(t *testing.T) {
	s := newTestServer(t)
	time.Sleep(10 * time.Millisecond)
	w := doJSON(t, s, http.MethodGet, "/api/v1/status", nil)
	body := decodeBody(t, w)
	assert.Greater(t, body["uptime"].(float64), 0.0)
}
