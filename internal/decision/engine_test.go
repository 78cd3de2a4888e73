package decision

import (
	"context"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrail/autoscaler/internal/metricsource"
	"github.com/quantrail/autoscaler/pkg/models"
)

var testSources = []models.MetricSource{
	{Name: "cpu", Type: models.SourceTypeNative, Query: "cpu", Threshold: 80, Operator: models.OpGreaterThan, Weight: 0.4},
	{Name: "latency", Type: models.SourceTypeNative, Query: "latency", Threshold: 200, Operator: models.OpGreaterThan, Weight: 0.6},
}

func testLimits() models.ComplianceLimits {
	return models.ComplianceLimits{MinInstances: 2, MaxInstances: 10}
}

func testSnapshot(cpu, latency float64, current int) *models.ServiceMetrics {
	return &models.ServiceMetrics{
		Service:     "order-gateway",
		Timestamp:   time.Now(),
		Instances:   models.InstanceMetrics{Current: current, Healthy: current},
		Resources:   models.ResourceMetrics{CPUPercent: cpu},
		Performance: models.PerformanceMetrics{LatencyMs: latency},
	}
}

func newTestEngine() *Engine {
	return NewEngine(Config{
		Sources:   testSources,
		Limits:    testLimits(),
		Evaluator: metricsource.NewStaticEvaluator(),
		Clock:     fakeclock.NewFakeClock(time.Now()),
	})
}

func upRule(id string, priority, amount int) models.ScalingRule {
	return models.ScalingRule{
		ID:       id,
		Enabled:  true,
		Priority: priority,
		Conditions: []models.ScalingCondition{
			{Metric: "cpu", Operator: models.OpGreaterThan, Threshold: 80},
		},
		Action: models.ScalingAction{
			Direction: models.DirectionScaleUp,
			Kind:      models.MagnitudeCount,
			Amount:    amount,
			Services:  []string{"order-gateway"},
		},
	}
}

func downRule(id string, priority, amount int) models.ScalingRule {
	r := upRule(id, priority, amount)
	r.Conditions = []models.ScalingCondition{
		{Metric: "cpu", Operator: models.OpLessThan, Threshold: 30},
	}
	r.Action.Direction = models.DirectionScaleDown
	return r
}

func TestEngine_MaintainWithoutFiredRules(t *testing.T) {
	engine := newTestEngine()
	snapshot := testSnapshot(50, 100, 4)

	d := engine.Decide(context.Background(), "order-gateway", snapshot, nil)

	assert.Equal(t, models.DirectionMaintain, d.Direction)
	assert.Equal(t, 4, d.TargetInstances)
	assert.Equal(t, "no_rule_fired", d.Reason)
	assert.False(t, d.ShouldExecute())
}

func TestEngine_CompositeScoreAndConfidence(t *testing.T) {
	engine := newTestEngine()

	// cpu 90/80 breached, latency 150/200 not breached.
	snapshot := testSnapshot(90, 150, 4)
	d := engine.Decide(context.Background(), "order-gateway", snapshot, []models.ScalingRule{upRule("cpu-high", 1, 2)})

	// 0.4*(90/80) + 0.6*(150/200) = 0.45 + 0.45 = 0.9
	assert.InDelta(t, 0.9, d.CompositeScore, 1e-9)
	// One of two sources agrees with scale_up.
	assert.InDelta(t, 0.5, d.Confidence, 1e-9)
	assert.Equal(t, models.DirectionScaleUp, d.Direction)
	assert.Equal(t, 6, d.TargetInstances)
}

func TestEngine_DecisionIsDeterministic(t *testing.T) {
	engine := newTestEngine()
	snapshot := testSnapshot(90, 150, 4)
	fired := []models.ScalingRule{upRule("cpu-high", 1, 2)}

	first := engine.Decide(context.Background(), "order-gateway", snapshot, fired)
	second := engine.Decide(context.Background(), "order-gateway", snapshot, fired)

	assert.Equal(t, first.Direction, second.Direction)
	assert.Equal(t, first.TargetInstances, second.TargetInstances)
	assert.Equal(t, first.CompositeScore, second.CompositeScore)
	assert.Equal(t, first.Confidence, second.Confidence)
}

func TestEngine_UrgencyClassification(t *testing.T) {
	tests := []struct {
		name     string
		cpu      float64
		expected models.Urgency
	}{
		{"5 percent over is low", 84, models.UrgencyLow},
		{"20 percent over is medium", 96, models.UrgencyMedium},
		{"40 percent over is high", 112, models.UrgencyHigh},
		{"60 percent over is critical", 128, models.UrgencyCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine()
			snapshot := testSnapshot(tt.cpu, 100, 4)
			d := engine.Decide(context.Background(), "order-gateway", snapshot, []models.ScalingRule{upRule("cpu-high", 1, 1)})
			assert.Equal(t, tt.expected, d.Urgency)
		})
	}
}

func TestEngine_LowestPriorityWins(t *testing.T) {
	engine := newTestEngine()
	snapshot := testSnapshot(90, 100, 4)

	fired := []models.ScalingRule{
		upRule("gentle", 2, 1),
		upRule("aggressive", 1, 4),
	}

	d := engine.Decide(context.Background(), "order-gateway", snapshot, fired)

	require.Equal(t, models.DirectionScaleUp, d.Direction)
	assert.Equal(t, "aggressive", d.Reason)
	assert.Equal(t, 8, d.TargetInstances)
	assert.ElementsMatch(t, []string{"gentle", "aggressive"}, d.TriggeredRules)
}

func TestEngine_SameDirectionTieBreaksOnRuleID(t *testing.T) {
	engine := newTestEngine()
	snapshot := testSnapshot(90, 100, 4)

	fired := []models.ScalingRule{
		upRule("b-rule", 1, 3),
		upRule("a-rule", 1, 1),
	}

	d := engine.Decide(context.Background(), "order-gateway", snapshot, fired)
	assert.Equal(t, "a-rule", d.Reason)
	assert.Equal(t, 5, d.TargetInstances)
}

func TestEngine_ConflictingTieMaintains(t *testing.T) {
	engine := newTestEngine()

	// cpu 24: up rule's cpu>20 is 20% over and down rule's cpu<30 is 20%
	// under. Equal urgency in opposite directions holds position.
	snapshot := testSnapshot(24, 100, 4)

	up := upRule("up", 1, 2)
	up.Conditions[0].Threshold = 20
	down := downRule("down", 1, 2)

	d := engine.Decide(context.Background(), "order-gateway", snapshot, []models.ScalingRule{up, down})

	assert.Equal(t, models.DirectionMaintain, d.Direction)
	assert.Equal(t, "conflicting_rules", d.Reason)
	assert.False(t, d.ShouldExecute())
}

func TestEngine_TargetClampedToBounds(t *testing.T) {
	engine := newTestEngine()
	snapshot := testSnapshot(90, 100, 8)

	d := engine.Decide(context.Background(), "order-gateway", snapshot, []models.ScalingRule{upRule("cpu-high", 1, 10)})
	assert.Equal(t, 10, d.TargetInstances, "target clamped to max_instances")

	snapshot = testSnapshot(10, 100, 3)
	d = engine.Decide(context.Background(), "order-gateway", snapshot, []models.ScalingRule{downRule("cpu-low", 1, 5)})
	assert.Equal(t, 2, d.TargetInstances, "target clamped to min_instances")
}

func TestEngine_PercentMagnitudeMinimumStep(t *testing.T) {
	engine := newTestEngine()
	snapshot := testSnapshot(90, 100, 4)

	rule := upRule("small-percent", 1, 10)
	rule.Action.Kind = models.MagnitudePercent

	// 10% of 4 rounds down to 0; minimum step is 1.
	d := engine.Decide(context.Background(), "order-gateway", snapshot, []models.ScalingRule{rule})
	assert.Equal(t, 5, d.TargetInstances)
}

func TestNewOverrideDecision(t *testing.T) {
	clk := fakeclock.NewFakeClock(time.Now())
	snapshot := testSnapshot(50, 100, 4)

	d := NewOverrideDecision("order-gateway", snapshot, 7, clk)
	assert.Equal(t, models.DirectionScaleUp, d.Direction)
	assert.Equal(t, 7, d.TargetInstances)
	assert.True(t, d.Override)
	assert.True(t, d.ShouldExecute())

	// Idempotent: overriding to the current count is a no-op.
	noop := NewOverrideDecision("order-gateway", snapshot, 4, clk)
	assert.Equal(t, models.DirectionMaintain, noop.Direction)
	assert.False(t, noop.ShouldExecute())
}
