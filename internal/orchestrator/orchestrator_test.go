package orchestrator

import (
	"context"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrail/autoscaler/internal/collector"
	"github.com/quantrail/autoscaler/internal/executor"
	"github.com/quantrail/autoscaler/internal/guard"
	"github.com/quantrail/autoscaler/internal/metricsource"
	"github.com/quantrail/autoscaler/pkg/config"
	"github.com/quantrail/autoscaler/pkg/models"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *collector.FakeSnapshotSource, *executor.SimulatorAdapter, *fakeEventStore) {
	t.Helper()

	clk := fakeclock.NewFakeClock(time.Now())
	source := collector.NewFakeSnapshotSource()
	source.SetUsage("order-gateway", 4, 50)

	adapter := executor.NewSimulatorAdapter(0, clk)
	adapter.Seed("order-gateway", 4)

	store := &fakeEventStore{}

	cfg := &config.Config{
		Collector:  config.CollectorConfig{Interval: 2 * time.Minute, Timeout: 5 * time.Second},
		Evaluation: config.EvaluationConfig{Interval: 30 * time.Second},
		Executor:   config.ExecutorConfig{Timeout: 30 * time.Second},
		Limits:     testPipelineLimits(),
		Rules:      []models.ScalingRule{cpuRule(0, 2)},
		Events:     config.EventsConfig{BufferSize: 64},
	}

	orc := New(cfg, Options{
		Source:    source,
		Evaluator: metricsource.NewStaticEvaluator(),
		Adapter:   adapter,
		Store:     store,
		Clock:     clk,
	})
	return orc, source, adapter, store
}

func TestOverride_ExecutesManualTarget(t *testing.T) {
	orc, _, adapter, store := newTestOrchestrator(t)
	ctx := context.Background()

	require.Empty(t, orc.Collector().CollectOnce(ctx))

	d, err := orc.Override(ctx, "order-gateway", 8)
	require.NoError(t, err)
	assert.Equal(t, models.DirectionScaleUp, d.Direction)
	assert.True(t, d.Override)
	assert.Equal(t, "manual_override", d.Reason)

	n, _ := adapter.Instances("order-gateway")
	assert.Equal(t, 8, n)

	recorded := store.all()
	require.Len(t, recorded, 1)
	assert.Equal(t, models.ScalingEventSuccess, recorded[0].Status)
	assert.Equal(t, "manual_override", recorded[0].Reason)
}

func TestOverride_CurrentTargetIsNoOp(t *testing.T) {
	orc, _, adapter, store := newTestOrchestrator(t)
	ctx := context.Background()

	require.Empty(t, orc.Collector().CollectOnce(ctx))

	d, err := orc.Override(ctx, "order-gateway", 4)
	require.NoError(t, err)
	assert.Equal(t, models.DirectionMaintain, d.Direction)
	assert.False(t, d.ShouldExecute())

	n, _ := adapter.Instances("order-gateway")
	assert.Equal(t, 4, n)
	assert.Empty(t, store.all())
}

func TestOverride_RepeatedTargetIsNoOp(t *testing.T) {
	orc, _, adapter, store := newTestOrchestrator(t)
	ctx := context.Background()

	require.Empty(t, orc.Collector().CollectOnce(ctx))

	d, err := orc.Override(ctx, "order-gateway", 8)
	require.NoError(t, err)
	require.Equal(t, models.DirectionScaleUp, d.Direction)

	// The snapshot still says 4 instances; the adapter already holds 8.
	// Repeating the same target must not scale again.
	d, err = orc.Override(ctx, "order-gateway", 8)
	require.NoError(t, err)
	assert.Equal(t, models.DirectionMaintain, d.Direction)
	assert.False(t, d.ShouldExecute())

	n, _ := adapter.Instances("order-gateway")
	assert.Equal(t, 8, n)
	assert.Len(t, store.all(), 1)
}

func TestOverride_GuardStillApplies(t *testing.T) {
	orc, _, adapter, store := newTestOrchestrator(t)
	ctx := context.Background()

	require.Empty(t, orc.Collector().CollectOnce(ctx))

	// Delta 16 exceeds the auto-approval limit of 10.
	_, err := orc.Override(ctx, "order-gateway", 20)
	require.Error(t, err)
	var violation *guard.ViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "large_scale_approval", violation.Constraint)

	n, _ := adapter.Instances("order-gateway")
	assert.Equal(t, 4, n)

	recorded := store.all()
	require.Len(t, recorded, 1)
	assert.Equal(t, models.ScalingEventRejected, recorded[0].Status)
}

func TestOverride_UnknownService(t *testing.T) {
	orc, _, _, _ := newTestOrchestrator(t)

	_, err := orc.Override(context.Background(), "ghost", 3)
	assert.Error(t, err)
}

func TestOrchestrator_Accessors(t *testing.T) {
	orc, _, _, _ := newTestOrchestrator(t)

	assert.Equal(t, []string{"order-gateway"}, orc.Services())
	assert.Equal(t, StateIdle, orc.ServiceState("order-gateway"))

	_, ok := orc.LastDecision("order-gateway")
	assert.False(t, ok)
}
