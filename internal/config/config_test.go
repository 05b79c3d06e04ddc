package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "QuantDesk", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "agents.signals", cfg.NATS.SignalTopic)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Market.Symbols)
	assert.Equal(t, 0.7, cfg.Models.TrainRatio)
	assert.Equal(t, 0.95, cfg.Risk.VaRConfidence)
	assert.True(t, cfg.Portfolio.LongOnly)
	assert.True(t, cfg.MCP.Internal.TechnicalIndicators.Enabled)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "train ratio out of range",
			mutate:  func(c *Config) { c.Models.TrainRatio = 1.5 },
			wantErr: "train_ratio",
		},
		{
			name:    "var confidence out of range",
			mutate:  func(c *Config) { c.Risk.VaRConfidence = 0 },
			wantErr: "var_confidence",
		},
		{
			name:    "max weight zero",
			mutate:  func(c *Config) { c.Portfolio.MaxWeight = 0 },
			wantErr: "max_weight",
		},
		{
			name:    "shrinkage negative",
			mutate:  func(c *Config) { c.Portfolio.Shrinkage = -0.1 },
			wantErr: "shrinkage",
		},
		{
			name:    "no symbols",
			mutate:  func(c *Config) { c.Market.Symbols = nil },
			wantErr: "symbols",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDSNAndAddrs(t *testing.T) {
	db := DatabaseConfig{
		Host: "localhost", Port: 5432, User: "postgres",
		Password: "secret", Database: "quantdesk", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=secret dbname=quantdesk sslmode=disable",
		db.GetDSN())

	r := RedisConfig{Host: "localhost", Port: 6379}
	assert.Equal(t, "localhost:6379", r.GetRedisAddr())

	a := APIConfig{Host: "0.0.0.0", Port: 8081}
	assert.Equal(t, "0.0.0.0:8081", a.GetAPIAddr())
}
