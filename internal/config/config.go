package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	MCP        MCPConfig        `mapstructure:"mcp"`
	Market     MarketConfig     `mapstructure:"market"`
	Models     ModelsConfig     `mapstructure:"models"`
	Portfolio  PortfolioConfig  `mapstructure:"portfolio"`
	Risk       RiskConfig       `mapstructure:"risk"`
	API        APIConfig        `mapstructure:"api"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	CacheTTL int    `mapstructure:"cache_ttl"` // seconds
}

// NATSConfig contains NATS messaging settings
type NATSConfig struct {
	URL          string `mapstructure:"url"`
	SignalTopic  string `mapstructure:"signal_topic"`
	ControlTopic string `mapstructure:"control_topic"`
}

// MCPConfig contains MCP server configuration
type MCPConfig struct {
	Internal MCPInternalServers `mapstructure:"internal"`
}

// MCPInternalServers contains configuration for custom MCP servers
type MCPInternalServers struct {
	TechnicalIndicators MCPInternalServerConfig `mapstructure:"technical_indicators"`
}

// MCPInternalServerConfig contains configuration for a custom MCP server
type MCPInternalServerConfig struct {
	Enabled   bool              `mapstructure:"enabled"`
	Name      string            `mapstructure:"name"`
	Command   string            `mapstructure:"command"` // path to binary
	Transport string            `mapstructure:"transport"`
	Args      []string          `mapstructure:"args"`
	Env       map[string]string `mapstructure:"env"`
}

// MarketConfig contains market data settings
type MarketConfig struct {
	Symbols        []string `mapstructure:"symbols"`
	Interval       string   `mapstructure:"interval"`        // candle interval, e.g. "1d"
	LookbackDays   int      `mapstructure:"lookback_days"`   // history window for analytics
	SyntheticSeed  int64    `mapstructure:"synthetic_seed"`  // seed for simulated data
	SyntheticDrift float64  `mapstructure:"synthetic_drift"` // annualized drift
	SyntheticVol   float64  `mapstructure:"synthetic_vol"`   // annualized volatility
}

// ModelsConfig contains model training settings
type ModelsConfig struct {
	TrainRatio       float64 `mapstructure:"train_ratio"`     // chronological split, e.g. 0.7
	RidgeLambda      float64 `mapstructure:"ridge_lambda"`    // L2 regularization strength
	ForwardHorizon   int     `mapstructure:"forward_horizon"` // periods ahead for targets
	LogisticEpochs   int     `mapstructure:"logistic_epochs"` // gradient descent iterations
	LogisticLearnRate float64 `mapstructure:"logistic_learn_rate"`
}

// PortfolioConfig contains optimizer settings
type PortfolioConfig struct {
	MaxWeight    float64 `mapstructure:"max_weight"` // per-asset cap, e.g. 0.4
	Shrinkage    float64 `mapstructure:"shrinkage"`  // covariance shrinkage in [0,1]
	RiskFreeRate float64 `mapstructure:"risk_free_rate"`
	LongOnly     bool    `mapstructure:"long_only"`
}

// RiskConfig contains risk analytics settings
type RiskConfig struct {
	VaRConfidence float64 `mapstructure:"var_confidence"` // e.g. 0.95
	MaxDrawdown   float64 `mapstructure:"max_drawdown"`   // 0.1 (10%)
	StressPaths   int     `mapstructure:"stress_paths"`   // Monte Carlo path count
	StressHorizon int     `mapstructure:"stress_horizon"` // days per stress path
	StressSeed    int64   `mapstructure:"stress_seed"`    // seed for simulated shocks
	RiskFreeRate  float64 `mapstructure:"risk_free_rate"`
}

// APIConfig contains REST API settings
type APIConfig struct {
	Host           string  `mapstructure:"host"`
	Port           int     `mapstructure:"port"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("QUANTDESK")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "QuantDesk")
	v.SetDefault("app.version", Version)
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "quantdesk")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", 60)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.signal_topic", "agents.signals")
	v.SetDefault("nats.control_topic", "agents.control")

	// MCP defaults
	v.SetDefault("mcp.internal.technical_indicators.enabled", true)
	v.SetDefault("mcp.internal.technical_indicators.name", "Technical Indicators")
	v.SetDefault("mcp.internal.technical_indicators.command", "./bin/technical-indicators-server")
	v.SetDefault("mcp.internal.technical_indicators.transport", "stdio")

	// Market defaults
	v.SetDefault("market.symbols", []string{"BTCUSDT", "ETHUSDT"})
	v.SetDefault("market.interval", "1d")
	v.SetDefault("market.lookback_days", 252)
	v.SetDefault("market.synthetic_seed", 42)
	v.SetDefault("market.synthetic_drift", 0.05)
	v.SetDefault("market.synthetic_vol", 0.4)

	// Model defaults
	v.SetDefault("models.train_ratio", 0.7)
	v.SetDefault("models.ridge_lambda", 1.0)
	v.SetDefault("models.forward_horizon", 1)
	v.SetDefault("models.logistic_epochs", 500)
	v.SetDefault("models.logistic_learn_rate", 0.05)

	// Portfolio defaults
	v.SetDefault("portfolio.max_weight", 0.4)
	v.SetDefault("portfolio.shrinkage", 0.1)
	v.SetDefault("portfolio.risk_free_rate", 0.03)
	v.SetDefault("portfolio.long_only", true)

	// Risk defaults
	v.SetDefault("risk.var_confidence", 0.95)
	v.SetDefault("risk.max_drawdown", 0.1)
	v.SetDefault("risk.stress_paths", 1000)
	v.SetDefault("risk.stress_horizon", 21)
	v.SetDefault("risk.stress_seed", 42)
	v.SetDefault("risk.risk_free_rate", 0.03)

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8081)
	v.SetDefault("api.rate_limit_rps", 50.0)
	v.SetDefault("api.rate_limit_burst", 100)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// Validate performs sanity checks on loaded configuration
func (c *Config) Validate() error {
	if c.Models.TrainRatio <= 0 || c.Models.TrainRatio >= 1 {
		return fmt.Errorf("models.train_ratio must be in (0, 1), got %f", c.Models.TrainRatio)
	}
	if c.Risk.VaRConfidence <= 0 || c.Risk.VaRConfidence >= 1 {
		return fmt.Errorf("risk.var_confidence must be in (0, 1), got %f", c.Risk.VaRConfidence)
	}
	if c.Portfolio.MaxWeight <= 0 || c.Portfolio.MaxWeight > 1 {
		return fmt.Errorf("portfolio.max_weight must be in (0, 1], got %f", c.Portfolio.MaxWeight)
	}
	if c.Portfolio.Shrinkage < 0 || c.Portfolio.Shrinkage > 1 {
		return fmt.Errorf("portfolio.shrinkage must be in [0, 1], got %f", c.Portfolio.Shrinkage)
	}
	if len(c.Market.Symbols) == 0 {
		return fmt.Errorf("market.symbols must not be empty")
	}
	if c.Market.SyntheticVol <= 0 {
		return fmt.Errorf("market.synthetic_vol must be > 0, got %f", c.Market.SyntheticVol)
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api.port must be a valid port, got %d", c.API.Port)
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetCacheTTL returns the Redis cache TTL as time.Duration
func (c *RedisConfig) GetCacheTTL() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// GetAPIAddr returns the API server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
