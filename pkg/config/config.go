package config

import (
	"fmt"
	"time"

	"github.com/quantrail/autoscaler/pkg/models"
)

type Config struct {
	App        AppConfig                `mapstructure:"app"`
	Database   DatabaseConfig           `mapstructure:"database"`
	Collector  CollectorConfig          `mapstructure:"collector"`
	Evaluation EvaluationConfig         `mapstructure:"evaluation"`
	Executor   ExecutorConfig           `mapstructure:"executor"`
	Limits     models.ComplianceLimits  `mapstructure:"limits"`
	Financial  models.FinancialProfile  `mapstructure:"financial"`
	Sources    []models.MetricSource    `mapstructure:"sources"`
	Rules      []models.ScalingRule     `mapstructure:"rules"`
	API        APIConfig                `mapstructure:"api"`
	Events     EventsConfig             `mapstructure:"events"`
	Notifier   NotifierConfig           `mapstructure:"notifier"`
	Metrics    MetricsConfig            `mapstructure:"metrics"`
}

type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Mode            string        `mapstructure:"mode"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxConnections  int           `mapstructure:"max_connections"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, sslMode,
	)
}

type CollectorConfig struct {
	Endpoint       string               `mapstructure:"endpoint"`
	QueryURL       string               `mapstructure:"query_url"`
	Interval       time.Duration        `mapstructure:"interval"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	MaxConcurrent  int                  `mapstructure:"max_concurrent"`
	RetryAttempts  int                  `mapstructure:"retry_attempts"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type EvaluationConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type ExecutorConfig struct {
	Type          string        `mapstructure:"type"`
	Endpoint      string        `mapstructure:"endpoint"`
	Timeout       time.Duration `mapstructure:"timeout"`
	ProvisionTime time.Duration `mapstructure:"provision_time"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
}

type APIConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	JWTIssuer    string        `mapstructure:"jwt_issuer"`
}

type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

type NotifierConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	WebhookURL    string        `mapstructure:"webhook_url"`
	SlackURL      string        `mapstructure:"slack_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
