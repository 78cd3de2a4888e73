package decision

import (
	"context"
	"sort"

	"code.cloudfoundry.org/clock"

	"github.com/quantrail/autoscaler/internal/logger"
	"github.com/quantrail/autoscaler/internal/metricsource"
	"github.com/quantrail/autoscaler/pkg/models"
)

type Config struct {
	Sources   []models.MetricSource
	Limits    models.ComplianceLimits
	Evaluator metricsource.Evaluator
	Clock     clock.Clock
}

// Engine turns fired rules and the current snapshot into a scaling decision:
// a direction, a clamped target, a composite score, a confidence value and
// an urgency classification.
type Engine struct {
	sources   []models.MetricSource
	limits    models.ComplianceLimits
	evaluator metricsource.Evaluator
	clk       clock.Clock
}

func NewEngine(cfg Config) *Engine {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Engine{
		sources:   cfg.Sources,
		limits:    cfg.Limits,
		evaluator: cfg.Evaluator,
		clk:       clk,
	}
}

// Decide selects among fired rules by ascending priority and produces the
// tick's decision. With no fired rules the decision is maintain.
func (e *Engine) Decide(ctx context.Context, service string, snapshot *models.ServiceMetrics, fired []models.ScalingRule) *models.ScalingDecision {
	current := snapshot.Instances.Current

	decision := &models.ScalingDecision{
		Service:          service,
		Timestamp:        e.clk.Now(),
		Direction:        models.DirectionMaintain,
		CurrentInstances: current,
		TargetInstances:  current,
		Urgency:          models.UrgencyLow,
		Metrics:          snapshot,
	}

	evals := e.evaluateSources(ctx, snapshot)
	decision.CompositeScore = compositeScore(evals)
	decision.Urgency = worstUrgency(evals)

	if len(fired) == 0 {
		decision.Reason = "no_rule_fired"
		decision.Confidence = confidence(evals, decision.Direction)
		return decision
	}

	winner, ok := e.selectRule(fired, snapshot)
	if !ok {
		// Equal priority, conflicting directions, equal urgency: hold position.
		decision.Reason = "conflicting_rules"
		decision.Confidence = confidence(evals, decision.Direction)
		logger.WithService(service).Warn("Decision: maintain (conflicting rules at equal priority)")
		return decision
	}

	decision.Direction = winner.Action.Direction
	decision.TargetInstances = e.limits.Clamp(winner.Action.TargetInstances(current))
	decision.Reason = winner.ID
	decision.Confidence = confidence(evals, decision.Direction)
	for _, r := range fired {
		decision.TriggeredRules = append(decision.TriggeredRules, r.ID)
	}

	logger.WithRule(service, winner.ID).Infof(
		"Decision: %s %d -> %d instances (score %.3f, confidence %.2f, urgency %s)",
		decision.Direction, current, decision.TargetInstances,
		decision.CompositeScore, decision.Confidence, decision.Urgency,
	)

	return decision
}

// selectRule picks the fired rule with the lowest priority number. Ties with
// the same direction resolve to the lexicographically smallest rule id; ties
// with conflicting directions resolve to the direction with higher urgency,
// or to no winner when urgency ties as well.
func (e *Engine) selectRule(fired []models.ScalingRule, snapshot *models.ServiceMetrics) (models.ScalingRule, bool) {
	sorted := make([]models.ScalingRule, len(fired))
	copy(sorted, fired)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})

	top := []models.ScalingRule{sorted[0]}
	for _, r := range sorted[1:] {
		if r.Priority != sorted[0].Priority {
			break
		}
		top = append(top, r)
	}

	if len(top) == 1 {
		return top[0], true
	}

	conflicting := false
	for _, r := range top[1:] {
		if r.Action.Direction != top[0].Action.Direction {
			conflicting = true
			break
		}
	}
	if !conflicting {
		return top[0], true
	}

	best := top[0]
	bestUrgency := ruleUrgency(best, snapshot)
	tied := false
	for _, r := range top[1:] {
		u := ruleUrgency(r, snapshot)
		switch {
		case urgencyRank(u) > urgencyRank(bestUrgency):
			best, bestUrgency, tied = r, u, false
		case urgencyRank(u) == urgencyRank(bestUrgency) && r.Action.Direction != best.Action.Direction:
			tied = true
		}
	}
	if tied {
		return models.ScalingRule{}, false
	}
	return best, true
}

func (e *Engine) evaluateSources(ctx context.Context, snapshot *models.ServiceMetrics) []metricsource.Evaluation {
	evals := make([]metricsource.Evaluation, 0, len(e.sources))
	for _, src := range e.sources {
		eval, err := e.evaluator.Evaluate(ctx, src, snapshot)
		if err != nil {
			logger.WithField("source", src.Name).Debugf("Source evaluation skipped: %v", err)
			continue
		}
		evals = append(evals, eval)
	}
	return evals
}

// compositeScore is the weighted sum of each source's value/threshold ratio.
func compositeScore(evals []metricsource.Evaluation) float64 {
	var score float64
	for _, ev := range evals {
		if ev.Source.Threshold == 0 {
			continue
		}
		score += ev.Source.Weight * (ev.Value / ev.Source.Threshold)
	}
	return score
}

// confidence is the fraction of sources whose threshold-met flag agrees with
// the direction: breached sources argue for acting, unbreached for holding.
func confidence(evals []metricsource.Evaluation, direction models.ScaleDirection) float64 {
	if len(evals) == 0 {
		return 0
	}
	agree := 0
	for _, ev := range evals {
		if direction == models.DirectionMaintain {
			if !ev.ThresholdMet {
				agree++
			}
		} else if ev.ThresholdMet {
			agree++
		}
	}
	return float64(agree) / float64(len(evals))
}

// worstUrgency classifies the largest relative overage among breached sources.
func worstUrgency(evals []metricsource.Evaluation) models.Urgency {
	var worst float64
	breached := false
	for _, ev := range evals {
		if !ev.ThresholdMet || ev.Source.Threshold == 0 {
			continue
		}
		breached = true
		over := overage(ev.Value, ev.Source.Threshold)
		if over > worst {
			worst = over
		}
	}
	if !breached {
		return models.UrgencyLow
	}
	return models.UrgencyForOverage(worst)
}

func ruleUrgency(rule models.ScalingRule, snapshot *models.ServiceMetrics) models.Urgency {
	var worst float64
	breached := false
	for _, cond := range rule.Conditions {
		value, ok := snapshot.Value(cond.Metric)
		if !ok || cond.Threshold == 0 {
			continue
		}
		if !models.Compare(value, cond.Operator, cond.Threshold) {
			continue
		}
		breached = true
		if over := overage(value, cond.Threshold); over > worst {
			worst = over
		}
	}
	if !breached {
		return models.UrgencyLow
	}
	return models.UrgencyForOverage(worst)
}

func overage(value, threshold float64) float64 {
	over := (value - threshold) / threshold
	if over < 0 {
		over = -over
	}
	return over
}

func urgencyRank(u models.Urgency) int {
	switch u {
	case models.UrgencyCritical:
		return 3
	case models.UrgencyHigh:
		return 2
	case models.UrgencyMedium:
		return 1
	default:
		return 0
	}
}

// NewOverrideDecision builds a manual override decision that bypasses rule
// evaluation entirely. It still passes through the safety guard, and a
// target equal to the current count resolves to maintain.
func NewOverrideDecision(service string, snapshot *models.ServiceMetrics, target int, clk clock.Clock) *models.ScalingDecision {
	current := snapshot.Instances.Current

	direction := models.DirectionMaintain
	if target > current {
		direction = models.DirectionScaleUp
	} else if target < current {
		direction = models.DirectionScaleDown
	}

	return &models.ScalingDecision{
		Service:          service,
		Timestamp:        clk.Now(),
		Direction:        direction,
		CurrentInstances: current,
		TargetInstances:  target,
		Confidence:       1.0,
		Urgency:          models.UrgencyMedium,
		Reason:           "manual_override",
		Override:         true,
		Metrics:          snapshot,
	}
}
