package risk

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Circuit breaker states for Prometheus metrics
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"

	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Circuit breaker thresholds, configurable per service type
const (
	// Market data circuit breaker settings
	MarketDataMinRequests     = 5
	MarketDataFailureRatio    = 0.6
	MarketDataOpenTimeout     = 30 * time.Second
	MarketDataHalfOpenMaxReqs = 3
	MarketDataCountInterval   = 10 * time.Second

	// Database circuit breaker settings (faster recovery)
	DBMinRequests     = 10
	DBFailureRatio    = 0.6
	DBOpenTimeout     = 15 * time.Second
	DBHalfOpenMaxReqs = 5
	DBCountInterval   = 10 * time.Second
)

// CircuitBreakerManager manages circuit breakers for different service types
type CircuitBreakerManager struct {
	marketData *gobreaker.CircuitBreaker
	database   *gobreaker.CircuitBreaker
	metrics    *CircuitBreakerMetrics
}

// CircuitBreakerMetrics holds Prometheus metrics for circuit breakers
type CircuitBreakerMetrics struct {
	state    *prometheus.GaugeVec
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
}

var (
	globalMetrics *CircuitBreakerMetrics
	metricsOnce   sync.Once
)

// initMetrics initializes the global metrics instance exactly once
func initMetrics() {
	metricsOnce.Do(func() {
		globalMetrics = &CircuitBreakerMetrics{
			state: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "circuit_breaker_state",
					Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
				},
				[]string{"service"},
			),
			requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "circuit_breaker_requests_total",
					Help: "Total number of requests through circuit breaker",
				},
				[]string{"service", "result"},
			),
			failures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "circuit_breaker_failures_total",
					Help: "Total number of failures tracked by circuit breaker",
				},
				[]string{"service"},
			),
		}
	})
}

// ServiceSettings holds circuit breaker configuration for a single service
type ServiceSettings struct {
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxReqs uint32
	CountInterval   time.Duration
}

// NewCircuitBreakerManager creates a circuit breaker manager with default
// settings
func NewCircuitBreakerManager() *CircuitBreakerManager {
	return NewCircuitBreakerManagerWithSettings(nil, nil)
}

// NewCircuitBreakerManagerWithSettings creates a circuit breaker manager
// with Prometheus metrics. Nil settings fall back to the defaults above.
func NewCircuitBreakerManagerWithSettings(marketDataSettings, dbSettings *ServiceSettings) *CircuitBreakerManager {
	initMetrics()

	manager := &CircuitBreakerManager{
		metrics: globalMetrics,
	}

	if marketDataSettings == nil {
		marketDataSettings = &ServiceSettings{
			MinRequests:     MarketDataMinRequests,
			FailureRatio:    MarketDataFailureRatio,
			OpenTimeout:     MarketDataOpenTimeout,
			HalfOpenMaxReqs: MarketDataHalfOpenMaxReqs,
			CountInterval:   MarketDataCountInterval,
		}
	}
	if dbSettings == nil {
		dbSettings = &ServiceSettings{
			MinRequests:     DBMinRequests,
			FailureRatio:    DBFailureRatio,
			OpenTimeout:     DBOpenTimeout,
			HalfOpenMaxReqs: DBHalfOpenMaxReqs,
			CountInterval:   DBCountInterval,
		}
	}

	manager.marketData = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "marketdata",
		MaxRequests: marketDataSettings.HalfOpenMaxReqs,
		Interval:    marketDataSettings.CountInterval,
		Timeout:     marketDataSettings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= marketDataSettings.MinRequests && failureRatio >= marketDataSettings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			manager.updateMetrics("marketdata", to)
		},
	})

	manager.database = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "database",
		MaxRequests: dbSettings.HalfOpenMaxReqs,
		Interval:    dbSettings.CountInterval,
		Timeout:     dbSettings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= dbSettings.MinRequests && failureRatio >= dbSettings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			manager.updateMetrics("database", to)
		},
	})

	manager.updateMetrics("marketdata", manager.marketData.State())
	manager.updateMetrics("database", manager.database.State())

	return manager
}

// NewPassthroughCircuitBreakerManager creates a manager that never trips,
// for tests that exercise other components.
func NewPassthroughCircuitBreakerManager() *CircuitBreakerManager {
	initMetrics()

	manager := &CircuitBreakerManager{
		metrics: globalMetrics,
	}

	neverTrip := func(counts gobreaker.Counts) bool {
		return false
	}

	manager.marketData = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "marketdata_passthrough",
		MaxRequests: 1000,
		Interval:    0,
		Timeout:     1 * time.Millisecond,
		ReadyToTrip: neverTrip,
	})

	manager.database = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "database_passthrough",
		MaxRequests: 1000,
		Interval:    0,
		Timeout:     1 * time.Millisecond,
		ReadyToTrip: neverTrip,
	})

	return manager
}

// MarketData returns the market data circuit breaker
func (m *CircuitBreakerManager) MarketData() *gobreaker.CircuitBreaker {
	return m.marketData
}

// Database returns the database circuit breaker
func (m *CircuitBreakerManager) Database() *gobreaker.CircuitBreaker {
	return m.database
}

// updateMetrics updates Prometheus metrics for a state change
func (m *CircuitBreakerManager) updateMetrics(service string, state gobreaker.State) {
	var stateValue float64
	switch state {
	case gobreaker.StateClosed:
		stateValue = 0
	case gobreaker.StateOpen:
		stateValue = 1
	case gobreaker.StateHalfOpen:
		stateValue = 2
	}
	m.metrics.state.WithLabelValues(service).Set(stateValue)
}

// RecordRequest records a request result for metrics
func (m *CircuitBreakerMetrics) RecordRequest(service string, success bool) {
	result := ResultSuccess
	if !success {
		result = ResultFailure
		m.failures.WithLabelValues(service).Inc()
	}
	m.requests.WithLabelValues(service, result).Inc()
}

// Metrics returns the metrics instance for manual recording
func (m *CircuitBreakerManager) Metrics() *CircuitBreakerMetrics {
	return m.metrics
}
