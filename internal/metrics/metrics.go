package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Platform metrics shared across agents. promauto registers on the
// default registry, so definitions live behind a sync.Once.
type Platform struct {
	SignalsEmitted    *prometheus.CounterVec
	StepDuration      *prometheus.HistogramVec
	StepErrors        *prometheus.CounterVec
	ModelTrainingRuns *prometheus.CounterVec
	PortfolioVol      prometheus.Gauge
	PortfolioVaR      prometheus.Gauge
}

var (
	platform     *Platform
	platformOnce sync.Once
)

// GetPlatform returns the process-wide metrics instance
func GetPlatform() *Platform {
	platformOnce.Do(func() {
		platform = &Platform{
			SignalsEmitted: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quantdesk_signals_emitted_total",
					Help: "Trading signals emitted, by agent type and direction",
				},
				[]string{"agent_type", "direction"},
			),
			StepDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "quantdesk_agent_step_duration_seconds",
					Help:    "Duration of agent work loop iterations",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"agent_type"},
			),
			StepErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quantdesk_agent_step_errors_total",
					Help: "Agent work loop iterations that returned an error",
				},
				[]string{"agent_type"},
			),
			ModelTrainingRuns: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quantdesk_model_training_runs_total",
					Help: "Model training runs, by model kind and outcome",
				},
				[]string{"kind", "outcome"},
			),
			PortfolioVol: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "quantdesk_portfolio_volatility",
					Help: "Latest optimized portfolio volatility",
				},
			),
			PortfolioVaR: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "quantdesk_portfolio_var",
					Help: "Latest portfolio Value at Risk estimate",
				},
			),
		}
	})
	return platform
}
