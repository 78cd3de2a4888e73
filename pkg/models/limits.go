package models

import "time"

// ComplianceLimits is static configuration enforced by the safety guard.
type ComplianceLimits struct {
	MinInstances            int           `json:"min_instances" mapstructure:"min_instances"`
	MaxInstances            int           `json:"max_instances" mapstructure:"max_instances"`
	ScaleUpCooldown         time.Duration `json:"scale_up_cooldown" mapstructure:"scale_up_cooldown"`
	ScaleDownCooldown       time.Duration `json:"scale_down_cooldown" mapstructure:"scale_down_cooldown"`
	MaxScaleDownRatePercent float64       `json:"max_scale_down_rate_percent" mapstructure:"max_scale_down_rate_percent"`
	LargeScaleApprovalDelta int           `json:"large_scale_approval_delta" mapstructure:"large_scale_approval_delta"`
	MaxInstancesPerZone     int           `json:"max_instances_per_zone" mapstructure:"max_instances_per_zone"`
	Zones                   []string      `json:"zones" mapstructure:"zones"`
	HealthyRatioFloor       float64       `json:"healthy_ratio_floor" mapstructure:"healthy_ratio_floor"`
	HealthCheckGracePeriod  time.Duration `json:"health_check_grace_period" mapstructure:"health_check_grace_period"`
}

// Clamp bounds a target instance count to [MinInstances, MaxInstances].
func (l ComplianceLimits) Clamp(target int) int {
	if target < l.MinInstances {
		return l.MinInstances
	}
	if l.MaxInstances > 0 && target > l.MaxInstances {
		return l.MaxInstances
	}
	return target
}
