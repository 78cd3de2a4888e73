package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrail/autoscaler/pkg/models"
)

func validConfig() *Config {
	return &Config{
		App: AppConfig{Name: "autoscaler", Mode: "development", LogLevel: "info"},
		Database: DatabaseConfig{
			Host: "localhost",
			Port: 5432,
			Name: "autoscaler",
			User: "autoscaler",
		},
		Collector: CollectorConfig{
			Interval:      15 * time.Second,
			Timeout:       5 * time.Second,
			MaxConcurrent: 8,
		},
		Evaluation: EvaluationConfig{Interval: 30 * time.Second},
		Executor:   ExecutorConfig{Type: "simulator", Timeout: 60 * time.Second},
		Limits: models.ComplianceLimits{
			MinInstances:            2,
			MaxInstances:            50,
			ScaleUpCooldown:         3 * time.Minute,
			ScaleDownCooldown:       10 * time.Minute,
			MaxScaleDownRatePercent: 50,
			HealthyRatioFloor:       0.75,
		},
		Financial: models.FinancialProfile{
			OpeningBell: models.SessionWindow{Start: "09:30", Duration: 45 * time.Minute, Multiplier: 2.0},
			ClosingBell: models.SessionWindow{Start: "15:30", Duration: 30 * time.Minute, Multiplier: 1.8},
			Lunch:       models.SessionWindow{Start: "12:00", Duration: 90 * time.Minute, Multiplier: 0.7},
		},
		Sources: []models.MetricSource{
			{Name: "cpu", Type: models.SourceTypeNative, Query: "cpu_percent",
				Threshold: 80, Operator: models.OpGreaterThan, Weight: 0.5},
		},
		Rules: []models.ScalingRule{
			{
				ID:      "cpu-high",
				Enabled: true,
				Conditions: []models.ScalingCondition{
					{Metric: "cpu_percent", Operator: models.OpGreaterThan, Threshold: 80, Duration: time.Minute},
				},
				Action: models.ScalingAction{
					Direction: models.DirectionScaleUp,
					Kind:      models.MagnitudeCount,
					Amount:    2,
					Services:  []string{"order-gateway"},
				},
				Priority: 1,
			},
		},
		API:    APIConfig{Port: 8080, JWTSecret: "test-secret"},
		Events: EventsConfig{BufferSize: 100},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing app name",
			mutate:  func(c *Config) { c.App.Name = "" },
			wantErr: "app.name is required",
		},
		{
			name:    "bad mode",
			mutate:  func(c *Config) { c.App.Mode = "staging" },
			wantErr: "app.mode",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.App.LogLevel = "trace" },
			wantErr: "app.log_level",
		},
		{
			name:    "missing database host",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: "database.host is required",
		},
		{
			name:    "collector timeout exceeds interval",
			mutate:  func(c *Config) { c.Collector.Timeout = 20 * time.Second },
			wantErr: "collector.timeout must be less than collector.interval",
		},
		{
			name:    "zero min instances",
			mutate:  func(c *Config) { c.Limits.MinInstances = 0 },
			wantErr: "limits.min_instances must be positive",
		},
		{
			name:    "max below min",
			mutate:  func(c *Config) { c.Limits.MaxInstances = 1 },
			wantErr: "limits.max_instances must be >= min_instances",
		},
		{
			name:    "scale down rate over 100",
			mutate:  func(c *Config) { c.Limits.MaxScaleDownRatePercent = 150 },
			wantErr: "limits.max_scale_down_rate_percent",
		},
		{
			name:    "healthy ratio over 1",
			mutate:  func(c *Config) { c.Limits.HealthyRatioFloor = 1.5 },
			wantErr: "limits.healthy_ratio_floor",
		},
		{
			name:    "negative session multiplier",
			mutate:  func(c *Config) { c.Financial.Lunch.Multiplier = -0.5 },
			wantErr: "financial session multipliers must be positive",
		},
		{
			name: "duplicate source name",
			mutate: func(c *Config) {
				c.Sources = append(c.Sources, c.Sources[0])
			},
			wantErr: `duplicate metric source "cpu"`,
		},
		{
			name:    "native source without query",
			mutate:  func(c *Config) { c.Sources[0].Query = "" },
			wantErr: "query is required",
		},
		{
			name: "custom source without endpoint",
			mutate: func(c *Config) {
				c.Sources[0].Type = models.SourceTypeCustom
			},
			wantErr: "endpoint is required",
		},
		{
			name:    "source weight out of range",
			mutate:  func(c *Config) { c.Sources[0].Weight = 1.5 },
			wantErr: "weight must be between 0 and 1",
		},
		{
			name: "duplicate rule id",
			mutate: func(c *Config) {
				c.Rules = append(c.Rules, c.Rules[0])
			},
			wantErr: `duplicate rule id "cpu-high"`,
		},
		{
			name:    "rule without conditions",
			mutate:  func(c *Config) { c.Rules[0].Conditions = nil },
			wantErr: "at least one condition is required",
		},
		{
			name: "condition with bad operator",
			mutate: func(c *Config) {
				c.Rules[0].Conditions[0].Operator = "above"
			},
			wantErr: "invalid operator",
		},
		{
			name: "second condition without logical",
			mutate: func(c *Config) {
				c.Rules[0].Conditions = append(c.Rules[0].Conditions, models.ScalingCondition{
					Metric: "latency_ms", Operator: models.OpGreaterThan, Threshold: 200,
				})
			},
			wantErr: "logical must be and/or",
		},
		{
			name:    "rule without target services",
			mutate:  func(c *Config) { c.Rules[0].Action.Services = nil },
			wantErr: "at least one target service is required",
		},
		{
			name:    "bad direction",
			mutate:  func(c *Config) { c.Rules[0].Action.Direction = "sideways" },
			wantErr: "invalid direction",
		},
		{
			name:    "bad api port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name: "default jwt secret in production",
			mutate: func(c *Config) {
				c.App.Mode = "production"
				c.API.JWTSecret = "change-me-in-production"
			},
			wantErr: "api.jwt_secret must be changed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
