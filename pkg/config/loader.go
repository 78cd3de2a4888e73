package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/autoscaler")
	}

	v.SetEnvPrefix("AUTOSCALER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "trading-autoscaler")
	v.SetDefault("app.mode", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "autoscaler")
	v.SetDefault("database.user", "admin")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.ssl_mode", "disable")

	// Collector defaults
	v.SetDefault("collector.endpoint", "http://localhost:9100/metrics/services")
	v.SetDefault("collector.interval", "15s")
	v.SetDefault("collector.timeout", "5s")
	v.SetDefault("collector.max_concurrent", 8)
	v.SetDefault("collector.retry_attempts", 3)
	v.SetDefault("collector.circuit_breaker.max_failures", 5)
	v.SetDefault("collector.circuit_breaker.timeout", "30s")

	// Evaluation defaults
	v.SetDefault("evaluation.interval", "30s")

	// Executor defaults
	v.SetDefault("executor.type", "simulator")
	v.SetDefault("executor.timeout", "60s")
	v.SetDefault("executor.provision_time", "5s")
	v.SetDefault("executor.retry_attempts", 2)

	// Compliance limit defaults
	v.SetDefault("limits.min_instances", 2)
	v.SetDefault("limits.max_instances", 50)
	v.SetDefault("limits.scale_up_cooldown", "3m")
	v.SetDefault("limits.scale_down_cooldown", "10m")
	v.SetDefault("limits.max_scale_down_rate_percent", 50.0)
	v.SetDefault("limits.large_scale_approval_delta", 10)
	v.SetDefault("limits.max_instances_per_zone", 20)
	v.SetDefault("limits.healthy_ratio_floor", 0.75)
	v.SetDefault("limits.health_check_grace_period", "2m")

	// Financial profile defaults (NYSE session in exchange-local time)
	v.SetDefault("financial.timezone", "America/New_York")
	v.SetDefault("financial.opening_bell.start", "09:30")
	v.SetDefault("financial.opening_bell.duration", "45m")
	v.SetDefault("financial.opening_bell.multiplier", 2.0)
	v.SetDefault("financial.closing_bell.start", "15:30")
	v.SetDefault("financial.closing_bell.duration", "45m")
	v.SetDefault("financial.closing_bell.multiplier", 1.8)
	v.SetDefault("financial.lunch.start", "12:00")
	v.SetDefault("financial.lunch.duration", "1h")
	v.SetDefault("financial.lunch.multiplier", 0.7)
	v.SetDefault("financial.month_end.trailing_days", 3)
	v.SetDefault("financial.month_end.multiplier", 1.5)
	v.SetDefault("financial.quarter_end.trailing_days", 5)
	v.SetDefault("financial.quarter_end.multiplier", 1.75)

	// API defaults
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "15s")
	v.SetDefault("api.idle_timeout", "60s")
	v.SetDefault("api.jwt_secret", "change-me-in-production")
	v.SetDefault("api.jwt_issuer", "trading-autoscaler")

	// Events defaults
	v.SetDefault("events.buffer_size", 100)

	// Notifier defaults
	v.SetDefault("notifier.enabled", false)
	v.SetDefault("notifier.timeout", "5s")
	v.SetDefault("notifier.retry_attempts", 2)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
}
