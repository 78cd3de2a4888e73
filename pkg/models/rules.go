package models

import "time"

type ScaleDirection string

const (
	DirectionScaleUp   ScaleDirection = "scale_up"
	DirectionScaleDown ScaleDirection = "scale_down"
	DirectionMaintain  ScaleDirection = "maintain"
)

type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
)

type MagnitudeKind string

const (
	MagnitudePercent MagnitudeKind = "percent"
	MagnitudeCount   MagnitudeKind = "count"
	MagnitudeTarget  MagnitudeKind = "target"
)

// ScalingCondition is one threshold clause of a rule. Logical declares how
// the clause combines with the preceding one; it is ignored on the first.
type ScalingCondition struct {
	Metric    string             `json:"metric" mapstructure:"metric"`
	Operator  ComparisonOperator `json:"operator" mapstructure:"operator"`
	Threshold float64            `json:"threshold" mapstructure:"threshold"`
	Duration  time.Duration      `json:"duration" mapstructure:"duration"`
	Logical   LogicalOperator    `json:"logical,omitempty" mapstructure:"logical"`
}

// ScalingAction describes what a rule does once its conditions fire.
type ScalingAction struct {
	Direction ScaleDirection `json:"direction" mapstructure:"direction"`
	Kind      MagnitudeKind  `json:"kind" mapstructure:"kind"`
	Amount    int            `json:"amount" mapstructure:"amount"`
	Services  []string       `json:"services" mapstructure:"services"`
	Graceful  bool           `json:"graceful" mapstructure:"graceful"`
}

// ScalingRule is a configuration-time entity; it is never mutated at runtime.
// Lower priority numbers take precedence.
type ScalingRule struct {
	ID         string             `json:"id" mapstructure:"id"`
	Name       string             `json:"name" mapstructure:"name"`
	Enabled    bool               `json:"enabled" mapstructure:"enabled"`
	Conditions []ScalingCondition `json:"conditions" mapstructure:"conditions"`
	Action     ScalingAction      `json:"action" mapstructure:"action"`
	Priority   int                `json:"priority" mapstructure:"priority"`
	Tags       []string           `json:"tags,omitempty" mapstructure:"tags"`
}

func (r *ScalingRule) TargetsService(service string) bool {
	for _, s := range r.Action.Services {
		if s == service {
			return true
		}
	}
	return false
}

// MonitoredServices returns the union of all enabled rules' target lists.
func MonitoredServices(rules []ScalingRule) []string {
	seen := make(map[string]bool)
	var services []string
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		for _, s := range r.Action.Services {
			if !seen[s] {
				seen[s] = true
				services = append(services, s)
			}
		}
	}
	return services
}

// TargetInstances applies the action's magnitude to the current count.
// The result is not clamped here; bounds are the guard's authority.
func (a ScalingAction) TargetInstances(current int) int {
	switch a.Direction {
	case DirectionMaintain:
		return current
	case DirectionScaleUp:
		return current + a.delta(current)
	case DirectionScaleDown:
		return current - a.delta(current)
	}
	return current
}

func (a ScalingAction) delta(current int) int {
	switch a.Kind {
	case MagnitudePercent:
		d := current * a.Amount / 100
		if d < 1 {
			d = 1
		}
		return d
	case MagnitudeCount:
		return a.Amount
	case MagnitudeTarget:
		d := a.Amount - current
		if d < 0 {
			d = -d
		}
		return d
	}
	return 0
}
