package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrail/autoscaler/internal/collector"
	"github.com/quantrail/autoscaler/internal/decision"
	"github.com/quantrail/autoscaler/internal/events"
	"github.com/quantrail/autoscaler/internal/executor"
	"github.com/quantrail/autoscaler/internal/guard"
	"github.com/quantrail/autoscaler/internal/markethours"
	"github.com/quantrail/autoscaler/internal/metricsource"
	"github.com/quantrail/autoscaler/internal/rules"
	"github.com/quantrail/autoscaler/pkg/models"
)

type fakeEventStore struct {
	mu     sync.Mutex
	events []*models.ScalingEvent
}

func (s *fakeEventStore) Insert(ctx context.Context, event *models.ScalingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *fakeEventStore) all() []*models.ScalingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.ScalingEvent, len(s.events))
	copy(out, s.events)
	return out
}

type harness struct {
	clk       *fakeclock.FakeClock
	source    *collector.FakeSnapshotSource
	collector *collector.Service
	adapter   *executor.SimulatorAdapter
	store     *fakeEventStore
	pipeline  *Pipeline
}

func cpuRule(duration time.Duration, amount int) models.ScalingRule {
	return models.ScalingRule{
		ID:      "cpu-high",
		Name:    "CPU high",
		Enabled: true,
		Conditions: []models.ScalingCondition{
			{Metric: "cpu_percent", Operator: models.OpGreaterThan, Threshold: 80, Duration: duration},
		},
		Action: models.ScalingAction{
			Direction: models.DirectionScaleUp,
			Kind:      models.MagnitudeCount,
			Amount:    amount,
			Services:  []string{"order-gateway"},
		},
		Priority: 1,
	}
}

func newHarness(t *testing.T, limits models.ComplianceLimits, rule models.ScalingRule) *harness {
	t.Helper()

	clk := fakeclock.NewFakeClock(time.Now())
	adapter := executor.NewSimulatorAdapter(0, clk)
	adapter.Seed("order-gateway", 4)

	h := buildHarness(t, clk, limits, rule, adapter)
	h.adapter = adapter
	return h
}

func buildHarness(t *testing.T, clk *fakeclock.FakeClock, limits models.ComplianceLimits, rule models.ScalingRule, adapter executor.Adapter) *harness {
	t.Helper()

	source := collector.NewFakeSnapshotSource()
	source.SetUsage("order-gateway", 4, 90)

	// A wide interval keeps cached snapshots fresh across simulated waits.
	coll := collector.NewService(collector.Config{
		Interval: 2 * time.Minute,
		Timeout:  5 * time.Second,
		Services: []string{"order-gateway"},
		Source:   source,
		Clock:    clk,
	})

	sources := []models.MetricSource{
		{Name: "cpu", Type: models.SourceTypeNative, Query: "cpu_percent",
			Threshold: 80, Operator: models.OpGreaterThan, Weight: 1},
	}

	bus := events.NewEventBus(64)
	t.Cleanup(bus.Close)
	publisher := events.NewPublisher(bus)

	store := &fakeEventStore{}
	g := guard.NewGuard(limits, clk)

	pipeline := NewPipeline(PipelineConfig{
		Interval:        30 * time.Second,
		ExecutorTimeout: 30 * time.Second,
		Rules:           []models.ScalingRule{rule},
		Collector:       coll,
		Tracker:         rules.NewTracker(clk),
		Engine: decision.NewEngine(decision.Config{
			Sources:   sources,
			Limits:    limits,
			Evaluator: metricsource.NewStaticEvaluator(),
			Clock:     clk,
		}),
		Adjuster:  markethours.NewAdjuster(models.FinancialProfile{}, clk),
		Guard:     g,
		Adapter:   adapter,
		Rollback:  executor.NewRollbackController(adapter, publisher, 30*time.Second, clk),
		Store:     store,
		Publisher: publisher,
		Clock:     clk,
	})

	return &harness{
		clk:       clk,
		source:    source,
		collector: coll,
		store:     store,
		pipeline:  pipeline,
	}
}

func testPipelineLimits() models.ComplianceLimits {
	return models.ComplianceLimits{
		MinInstances:            1,
		MaxInstances:            20,
		ScaleUpCooldown:         3 * time.Minute,
		ScaleDownCooldown:       10 * time.Minute,
		MaxScaleDownRatePercent: 50,
		LargeScaleApprovalDelta: 10,
	}
}

func TestPipeline_ScaleUpCycle(t *testing.T) {
	h := newHarness(t, testPipelineLimits(), cpuRule(0, 2))
	ctx := context.Background()

	require.Empty(t, h.collector.CollectOnce(ctx))
	h.pipeline.RunCycle(ctx)

	n, err := h.adapter.Instances("order-gateway")
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	recorded := h.store.all()
	require.Len(t, recorded, 1)
	assert.Equal(t, models.ScalingEventSuccess, recorded[0].Status)
	assert.Equal(t, 4, recorded[0].PreviousInstances)
	assert.Equal(t, 6, recorded[0].NewInstances)
	assert.Equal(t, "cpu-high", recorded[0].RuleID)

	d, ok := h.pipeline.LastDecision("order-gateway")
	require.True(t, ok)
	assert.Equal(t, models.DirectionScaleUp, d.Direction)
	assert.Equal(t, StateIdle, h.pipeline.State("order-gateway"))
}

func TestPipeline_RuleMustHoldForDuration(t *testing.T) {
	h := newHarness(t, testPipelineLimits(), cpuRule(time.Minute, 2))
	ctx := context.Background()

	require.Empty(t, h.collector.CollectOnce(ctx))

	// First sighting starts the window; nothing executes yet.
	h.pipeline.RunCycle(ctx)
	assert.Empty(t, h.store.all())

	h.clk.Increment(30 * time.Second)
	h.pipeline.RunCycle(ctx)
	assert.Empty(t, h.store.all())

	// Held for the full minute now.
	h.clk.Increment(30 * time.Second)
	h.pipeline.RunCycle(ctx)

	recorded := h.store.all()
	require.Len(t, recorded, 1)
	assert.Equal(t, models.ScalingEventSuccess, recorded[0].Status)

	n, _ := h.adapter.Instances("order-gateway")
	assert.Equal(t, 6, n)
}

func TestPipeline_NoSnapshotSkipsEvaluation(t *testing.T) {
	h := newHarness(t, testPipelineLimits(), cpuRule(0, 2))

	// No collection has happened.
	h.pipeline.RunCycle(context.Background())

	assert.Empty(t, h.store.all())
	n, _ := h.adapter.Instances("order-gateway")
	assert.Equal(t, 4, n)
}

func TestPipeline_FailedScaleRollsBack(t *testing.T) {
	h := newHarness(t, testPipelineLimits(), cpuRule(0, 2))
	ctx := context.Background()

	require.Empty(t, h.collector.CollectOnce(ctx))
	h.adapter.FailNext("order-gateway", "capacity exhausted")

	h.pipeline.RunCycle(ctx)

	recorded := h.store.all()
	require.Len(t, recorded, 2)

	failed, rollback := recorded[0], recorded[1]
	assert.Equal(t, models.ScalingEventFailed, failed.Status)
	assert.Contains(t, failed.Error, "capacity exhausted")
	assert.Equal(t, models.ScalingEventRolledBack, rollback.Status)
	assert.Equal(t, failed.ID, rollback.RollbackOf)

	n, _ := h.adapter.Instances("order-gateway")
	assert.Equal(t, 4, n, "count restored")
}

func TestPipeline_GuardRejectionIsAudited(t *testing.T) {
	limits := testPipelineLimits()
	limits.LargeScaleApprovalDelta = 1

	h := newHarness(t, limits, cpuRule(0, 5))
	ctx := context.Background()

	require.Empty(t, h.collector.CollectOnce(ctx))
	h.pipeline.RunCycle(ctx)

	recorded := h.store.all()
	require.Len(t, recorded, 1)
	assert.Equal(t, models.ScalingEventRejected, recorded[0].Status)
	assert.Contains(t, recorded[0].Error, "large_scale_approval")

	n, _ := h.adapter.Instances("order-gateway")
	assert.Equal(t, 4, n, "rejected decisions never reach the adapter")
}

func TestPipeline_CooldownBlocksBackToBackScaling(t *testing.T) {
	h := newHarness(t, testPipelineLimits(), cpuRule(0, 2))
	ctx := context.Background()

	require.Empty(t, h.collector.CollectOnce(ctx))
	h.pipeline.RunCycle(ctx)

	n, _ := h.adapter.Instances("order-gateway")
	require.Equal(t, 6, n)

	// CPU is still hot on the cached snapshot; the next cycle fires the rule
	// again but the guard holds it inside the cooldown.
	h.clk.Increment(30 * time.Second)
	h.pipeline.RunCycle(ctx)

	recorded := h.store.all()
	require.Len(t, recorded, 2)
	assert.Equal(t, models.ScalingEventRejected, recorded[1].Status)

	n, _ = h.adapter.Instances("order-gateway")
	assert.Equal(t, 6, n)
}

func TestPipeline_UnhealthyFleetAfterScaleRollsBack(t *testing.T) {
	limits := testPipelineLimits()
	limits.HealthyRatioFloor = 0.8
	limits.HealthCheckGracePeriod = 2 * time.Minute

	h := newHarness(t, limits, cpuRule(0, 2))
	ctx := context.Background()

	require.Empty(t, h.collector.CollectOnce(ctx))
	h.pipeline.RunCycle(ctx)

	n, _ := h.adapter.Instances("order-gateway")
	require.Equal(t, 6, n)

	// Only 2 of the 6 new instances come up before the grace period ends.
	h.source.SetSnapshot("order-gateway", &models.ServiceMetrics{
		Timestamp: time.Now(),
		Instances: models.InstanceMetrics{Current: 6, Desired: 6, Healthy: 2, Unhealthy: 4},
		Resources: models.ResourceMetrics{CPUPercent: 40, MemoryPercent: 50},
		Custom:    make(map[string]float64),
	})
	require.Empty(t, h.collector.CollectOnce(ctx))

	require.Eventually(t, func() bool { return h.clk.WatcherCount() > 0 },
		2*time.Second, 10*time.Millisecond, "grace period timer armed")
	h.clk.Increment(2 * time.Minute)

	require.Eventually(t, func() bool { return len(h.store.all()) == 2 },
		2*time.Second, 10*time.Millisecond, "rollback recorded")

	recorded := h.store.all()
	committed, rollback := recorded[0], recorded[1]
	assert.Equal(t, models.ScalingEventSuccess, committed.Status)
	assert.Equal(t, models.ScalingEventRolledBack, rollback.Status)
	assert.Equal(t, committed.ID, rollback.RollbackOf)

	n, _ = h.adapter.Instances("order-gateway")
	assert.Equal(t, 4, n, "fleet restored to the pre-scale count")
}

// blindFailureAdapter fails its first scale without observing any counts, the
// way a transport error surfaces, then serves subsequent calls normally.
type blindFailureAdapter struct {
	mu       sync.Mutex
	count    int
	failNext bool
	targets  []int
}

func (a *blindFailureAdapter) Scale(ctx context.Context, service string, target int) (executor.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.targets = append(a.targets, target)
	if a.failNext {
		a.failNext = false
		return executor.Result{}, errors.New("connection reset by peer")
	}
	prev := a.count
	a.count = target
	return executor.Result{Success: true, PreviousInstances: prev, NewInstances: target}, nil
}

func (a *blindFailureAdapter) Instances(service string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count, nil
}

func (a *blindFailureAdapter) Healthy(ctx context.Context) error { return nil }

func TestPipeline_RollbackAfterBlindFailureRestoresPriorCount(t *testing.T) {
	stub := &blindFailureAdapter{count: 4, failNext: true}
	h := buildHarness(t, fakeclock.NewFakeClock(time.Now()), testPipelineLimits(), cpuRule(0, 2), stub)
	ctx := context.Background()

	require.Empty(t, h.collector.CollectOnce(ctx))
	h.pipeline.RunCycle(ctx)

	// The failed attempt reported no previous count; the compensating scale
	// must target the pre-attempt fleet, never zero.
	require.Equal(t, []int{6, 4}, stub.targets)

	recorded := h.store.all()
	require.Len(t, recorded, 2)

	failed, rollback := recorded[0], recorded[1]
	assert.Equal(t, models.ScalingEventFailed, failed.Status)
	assert.Equal(t, 4, failed.PreviousInstances)
	assert.Equal(t, models.ScalingEventRolledBack, rollback.Status)
	assert.Equal(t, 4, rollback.NewInstances)

	n, _ := stub.Instances("order-gateway")
	assert.Equal(t, 4, n)
}
