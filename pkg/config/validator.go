package config

import (
	"errors"
	"fmt"

	"github.com/quantrail/autoscaler/pkg/models"
)

func (c *Config) Validate() error {
	var errs []error

	// App validation
	if c.App.Name == "" {
		errs = append(errs, errors.New("app.name is required"))
	}

	validModes := map[string]bool{"development": true, "production": true, "test": true}
	if !validModes[c.App.Mode] {
		errs = append(errs, fmt.Errorf("app.mode must be one of: development, production, test"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.App.LogLevel] {
		errs = append(errs, fmt.Errorf("app.log_level must be one of: debug, info, warn, error"))
	}

	// Database validation
	if c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required"))
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, errors.New("database.port must be between 1 and 65535"))
	}

	// Loop timing validation
	if c.Collector.Interval <= 0 {
		errs = append(errs, errors.New("collector.interval must be positive"))
	}
	if c.Collector.Timeout <= 0 {
		errs = append(errs, errors.New("collector.timeout must be positive"))
	}
	if c.Collector.Timeout >= c.Collector.Interval {
		errs = append(errs, errors.New("collector.timeout must be less than collector.interval"))
	}
	if c.Collector.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("collector.max_concurrent must be positive"))
	}
	if c.Evaluation.Interval <= 0 {
		errs = append(errs, errors.New("evaluation.interval must be positive"))
	}
	if c.Executor.Timeout <= 0 {
		errs = append(errs, errors.New("executor.timeout must be positive"))
	}

	// Compliance limit validation
	if c.Limits.MinInstances <= 0 {
		errs = append(errs, errors.New("limits.min_instances must be positive"))
	}
	if c.Limits.MaxInstances < c.Limits.MinInstances {
		errs = append(errs, errors.New("limits.max_instances must be >= min_instances"))
	}
	if c.Limits.ScaleUpCooldown <= 0 || c.Limits.ScaleDownCooldown <= 0 {
		errs = append(errs, errors.New("limits cooldowns must be positive"))
	}
	if c.Limits.MaxScaleDownRatePercent <= 0 || c.Limits.MaxScaleDownRatePercent > 100 {
		errs = append(errs, errors.New("limits.max_scale_down_rate_percent must be between 0 and 100"))
	}
	if c.Limits.HealthyRatioFloor < 0 || c.Limits.HealthyRatioFloor > 1 {
		errs = append(errs, errors.New("limits.healthy_ratio_floor must be between 0 and 1"))
	}

	// Financial profile validation
	for _, w := range []models.SessionWindow{c.Financial.OpeningBell, c.Financial.ClosingBell, c.Financial.Lunch} {
		if w.Multiplier <= 0 {
			errs = append(errs, errors.New("financial session multipliers must be positive"))
			break
		}
	}

	// Metric source validation
	names := make(map[string]bool)
	for _, src := range c.Sources {
		if src.Name == "" {
			errs = append(errs, errors.New("sources[].name is required"))
			continue
		}
		if names[src.Name] {
			errs = append(errs, fmt.Errorf("duplicate metric source %q", src.Name))
		}
		names[src.Name] = true

		switch src.Type {
		case models.SourceTypeQuery, models.SourceTypeNative:
			if src.Query == "" {
				errs = append(errs, fmt.Errorf("source %q: query is required for type %s", src.Name, src.Type))
			}
		case models.SourceTypeCustom:
			if src.Endpoint == "" {
				errs = append(errs, fmt.Errorf("source %q: endpoint is required for custom type", src.Name))
			}
		default:
			errs = append(errs, fmt.Errorf("source %q: unknown type %q", src.Name, src.Type))
		}

		if !validOperator(src.Operator) {
			errs = append(errs, fmt.Errorf("source %q: invalid operator %q", src.Name, src.Operator))
		}
		if src.Weight < 0 || src.Weight > 1 {
			errs = append(errs, fmt.Errorf("source %q: weight must be between 0 and 1", src.Name))
		}
	}

	// Rule validation
	ids := make(map[string]bool)
	for _, rule := range c.Rules {
		if rule.ID == "" {
			errs = append(errs, errors.New("rules[].id is required"))
			continue
		}
		if ids[rule.ID] {
			errs = append(errs, fmt.Errorf("duplicate rule id %q", rule.ID))
		}
		ids[rule.ID] = true

		if len(rule.Conditions) == 0 {
			errs = append(errs, fmt.Errorf("rule %q: at least one condition is required", rule.ID))
		}
		for i, cond := range rule.Conditions {
			if cond.Metric == "" {
				errs = append(errs, fmt.Errorf("rule %q: condition %d: metric is required", rule.ID, i))
			}
			if !validOperator(cond.Operator) {
				errs = append(errs, fmt.Errorf("rule %q: condition %d: invalid operator %q", rule.ID, i, cond.Operator))
			}
			if cond.Duration < 0 {
				errs = append(errs, fmt.Errorf("rule %q: condition %d: duration must not be negative", rule.ID, i))
			}
			if i > 0 && cond.Logical != models.LogicalAnd && cond.Logical != models.LogicalOr {
				errs = append(errs, fmt.Errorf("rule %q: condition %d: logical must be and/or", rule.ID, i))
			}
		}

		switch rule.Action.Direction {
		case models.DirectionScaleUp, models.DirectionScaleDown, models.DirectionMaintain:
		default:
			errs = append(errs, fmt.Errorf("rule %q: invalid direction %q", rule.ID, rule.Action.Direction))
		}
		switch rule.Action.Kind {
		case models.MagnitudePercent, models.MagnitudeCount, models.MagnitudeTarget:
		default:
			if rule.Action.Direction != models.DirectionMaintain {
				errs = append(errs, fmt.Errorf("rule %q: invalid magnitude kind %q", rule.ID, rule.Action.Kind))
			}
		}
		if len(rule.Action.Services) == 0 {
			errs = append(errs, fmt.Errorf("rule %q: at least one target service is required", rule.ID))
		}
	}

	// API validation
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, errors.New("api.port must be between 1 and 65535"))
	}
	if c.App.Mode == "production" && c.API.JWTSecret == "change-me-in-production" {
		errs = append(errs, errors.New("api.jwt_secret must be changed for production"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validOperator(op models.ComparisonOperator) bool {
	switch op {
	case models.OpGreaterThan, models.OpLessThan, models.OpEqual, models.OpNotEqual:
		return true
	}
	return false
}
