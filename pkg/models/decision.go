package models

import "time"

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// UrgencyForOverage classifies how far the worst breached metric exceeds its
// threshold, as a fraction (0.20 = 20% over).
func UrgencyForOverage(overage float64) Urgency {
	switch {
	case overage < 0.10:
		return UrgencyLow
	case overage < 0.25:
		return UrgencyMedium
	case overage < 0.50:
		return UrgencyHigh
	default:
		return UrgencyCritical
	}
}

// ScalingDecision is the ephemeral output of one evaluation tick. It is not
// persisted beyond the tick except as folded into a ScalingEvent.
type ScalingDecision struct {
	Service          string          `json:"service"`
	Timestamp        time.Time       `json:"timestamp"`
	Direction        ScaleDirection  `json:"direction"`
	CurrentInstances int             `json:"current_instances"`
	TargetInstances  int             `json:"target_instances"`
	Confidence       float64         `json:"confidence"`
	Urgency          Urgency         `json:"urgency"`
	CompositeScore   float64         `json:"composite_score"`
	TriggeredRules   []string        `json:"triggered_rules,omitempty"`
	Reason           string          `json:"reason"`
	Override         bool            `json:"override"`
	Metrics          *ServiceMetrics `json:"-"`
}

func (d *ScalingDecision) InstanceDelta() int {
	return d.TargetInstances - d.CurrentInstances
}

func (d *ScalingDecision) ShouldExecute() bool {
	return d.Direction != DirectionMaintain && d.TargetInstances != d.CurrentInstances
}

// CooldownState records the last scale time per direction for one service.
// It is read by the guard before every decision and written only after an
// attempted execution.
type CooldownState struct {
	LastScaleUpAt   time.Time `json:"last_scale_up_at,omitempty"`
	LastScaleDownAt time.Time `json:"last_scale_down_at,omitempty"`
}
