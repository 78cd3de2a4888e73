package models

import "time"

type ScalingEventStatus string

const (
	ScalingEventSuccess    ScalingEventStatus = "success"
	ScalingEventFailed     ScalingEventStatus = "failed"
	ScalingEventRejected   ScalingEventStatus = "rejected"
	ScalingEventRolledBack ScalingEventStatus = "rolled_back"
)

// ScalingEvent is an immutable audit record. Once written it is never
// mutated; a rollback produces a new event referencing the original.
type ScalingEvent struct {
	ID                string             `json:"id"`
	Service           string             `json:"service"`
	Timestamp         time.Time          `json:"timestamp"`
	RuleID            string             `json:"rule_id,omitempty"`
	Direction         ScaleDirection     `json:"direction"`
	PreviousInstances int                `json:"previous_instances"`
	NewInstances      int                `json:"new_instances"`
	Success           bool               `json:"success"`
	Error             string             `json:"error,omitempty"`
	Reason            string             `json:"reason"`
	Duration          time.Duration      `json:"duration"`
	Status            ScalingEventStatus `json:"status"`
	RollbackOf        string             `json:"rollback_of,omitempty"`
}

func NewScalingEvent(decision *ScalingDecision, status ScalingEventStatus, now time.Time) *ScalingEvent {
	ruleID := ""
	if len(decision.TriggeredRules) > 0 {
		ruleID = decision.TriggeredRules[0]
	}
	return &ScalingEvent{
		ID:                NewUUID(),
		Service:           decision.Service,
		Timestamp:         now,
		RuleID:            ruleID,
		Direction:         decision.Direction,
		PreviousInstances: decision.CurrentInstances,
		NewInstances:      decision.TargetInstances,
		Success:           status == ScalingEventSuccess,
		Reason:            decision.Reason,
		Status:            status,
	}
}
