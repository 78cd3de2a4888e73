package rules

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/quantrail/autoscaler/pkg/models"
)

var ErrUnknownMetric = errors.New("condition references unknown metric")

// Tracker maintains per-(service, rule) continuous-truth state. A rule's
// combined condition must hold for its required duration before it fires;
// any false observation resets the window. This hysteresis is what keeps
// transient spikes from triggering scale actions.
type Tracker struct {
	clk       clock.Clock
	mu        sync.Mutex
	firstTrue map[string]time.Time
}

func NewTracker(clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Tracker{
		clk:       clk,
		firstTrue: make(map[string]time.Time),
	}
}

// Evaluation is the outcome of checking one rule against a snapshot.
type Evaluation struct {
	RuleID       string
	CombinedTrue bool
	Fired        bool
	HeldFor      time.Duration
}

// Evaluate checks a rule's conditions against the snapshot and updates the
// continuous-truth window. The rule fires only once the combined condition
// has held for the rule's required duration (the longest duration among its
// conditions).
func (t *Tracker) Evaluate(service string, rule *models.ScalingRule, snapshot *models.ServiceMetrics) (Evaluation, error) {
	combined, err := combineConditions(rule.Conditions, snapshot)
	if err != nil {
		return Evaluation{RuleID: rule.ID}, err
	}

	required := requiredDuration(rule.Conditions)
	now := t.clk.Now()
	key := service + "|" + rule.ID

	t.mu.Lock()
	defer t.mu.Unlock()

	if !combined {
		delete(t.firstTrue, key)
		return Evaluation{RuleID: rule.ID}, nil
	}

	first, exists := t.firstTrue[key]
	if !exists {
		first = now
		t.firstTrue[key] = first
	}

	held := now.Sub(first)
	return Evaluation{
		RuleID:       rule.ID,
		CombinedTrue: true,
		Fired:        held >= required,
		HeldFor:      held,
	}, nil
}

// combineConditions folds the rule's clauses left to right using each
// clause's declared operator relative to the prior result.
func combineConditions(conditions []models.ScalingCondition, snapshot *models.ServiceMetrics) (bool, error) {
	if len(conditions) == 0 {
		return false, nil
	}

	result, err := evalCondition(conditions[0], snapshot)
	if err != nil {
		return false, err
	}

	for _, cond := range conditions[1:] {
		truth, err := evalCondition(cond, snapshot)
		if err != nil {
			return false, err
		}
		if cond.Logical == models.LogicalOr {
			result = result || truth
		} else {
			result = result && truth
		}
	}
	return result, nil
}

func evalCondition(cond models.ScalingCondition, snapshot *models.ServiceMetrics) (bool, error) {
	value, ok := snapshot.Value(cond.Metric)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownMetric, cond.Metric)
	}
	return models.Compare(value, cond.Operator, cond.Threshold), nil
}

func requiredDuration(conditions []models.ScalingCondition) time.Duration {
	var max time.Duration
	for _, c := range conditions {
		if c.Duration > max {
			max = c.Duration
		}
	}
	return max
}

// HeldFor returns how long a rule's combined condition has been true.
func (t *Tracker) HeldFor(service, ruleID string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if first, ok := t.firstTrue[service+"|"+ruleID]; ok {
		return t.clk.Now().Sub(first)
	}
	return 0
}

// Reset clears all tracked windows for a service.
func (t *Tracker) Reset(service string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prefix := service + "|"
	for key := range t.firstTrue {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(t.firstTrue, key)
		}
	}
}
