package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(source *FakeSnapshotSource, clk *fakeclock.FakeClock, services ...string) *Service {
	return NewService(Config{
		Interval:      15 * time.Second,
		Timeout:       5 * time.Second,
		MaxConcurrent: 4,
		Services:      services,
		Source:        source,
		Clock:         clk,
	})
}

func TestCollectOnce_CachesSnapshots(t *testing.T) {
	source := NewFakeSnapshotSource()
	source.SetUsage("order-gateway", 4, 72.5)
	source.SetUsage("risk-engine", 2, 30)

	clk := fakeclock.NewFakeClock(time.Now())
	svc := newTestService(source, clk, "order-gateway", "risk-engine")

	failures := svc.CollectOnce(context.Background())
	assert.Empty(t, failures)

	snapshot, ok := svc.Snapshot("order-gateway")
	require.True(t, ok)
	assert.Equal(t, 4, snapshot.Instances.Current)
	assert.InDelta(t, 72.5, snapshot.Resources.CPUPercent, 0.001)

	_, ok = svc.Snapshot("risk-engine")
	assert.True(t, ok)
	assert.False(t, svc.LastCollection().IsZero())
}

func TestCollectOnce_PartialFailureIsolation(t *testing.T) {
	source := NewFakeSnapshotSource()
	source.SetUsage("order-gateway", 4, 72.5)
	source.SetUsage("risk-engine", 2, 30)

	clk := fakeclock.NewFakeClock(time.Now())
	svc := newTestService(source, clk, "order-gateway", "risk-engine")
	require.Empty(t, svc.CollectOnce(context.Background()))

	// risk-engine starts failing; order-gateway keeps collecting.
	boom := errors.New("connection refused")
	source.SetFailure("risk-engine", boom)
	source.SetUsage("order-gateway", 6, 80)

	failures := svc.CollectOnce(context.Background())
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures["risk-engine"], boom)

	snapshot, ok := svc.Snapshot("order-gateway")
	require.True(t, ok)
	assert.Equal(t, 6, snapshot.Instances.Current)

	// The failed service keeps its previous snapshot.
	snapshot, ok = svc.Snapshot("risk-engine")
	require.True(t, ok)
	assert.Equal(t, 2, snapshot.Instances.Current)
}

func TestStale_AfterTwiceTheInterval(t *testing.T) {
	source := NewFakeSnapshotSource()
	source.SetUsage("order-gateway", 4, 72.5)

	clk := fakeclock.NewFakeClock(time.Now())
	svc := newTestService(source, clk, "order-gateway")

	assert.True(t, svc.Stale("order-gateway"), "no snapshot yet")

	require.Empty(t, svc.CollectOnce(context.Background()))
	assert.False(t, svc.Stale("order-gateway"))

	clk.Increment(31 * time.Second)
	assert.True(t, svc.Stale("order-gateway"))
}

func TestHealthy(t *testing.T) {
	source := NewFakeSnapshotSource()
	source.SetUsage("order-gateway", 4, 72.5)

	clk := fakeclock.NewFakeClock(time.Now())
	svc := newTestService(source, clk, "order-gateway")

	assert.ErrorIs(t, svc.Healthy(), ErrUnhealthy, "nothing collected yet")

	require.Empty(t, svc.CollectOnce(context.Background()))
	assert.NoError(t, svc.Healthy())

	clk.Increment(31 * time.Second)
	assert.ErrorIs(t, svc.Healthy(), ErrUnhealthy, "snapshots aged out")
}

func TestCollectOnce_UnknownService(t *testing.T) {
	source := NewFakeSnapshotSource()
	clk := fakeclock.NewFakeClock(time.Now())
	svc := newTestService(source, clk, "ghost")

	failures := svc.CollectOnce(context.Background())
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures["ghost"], ErrServiceNotFound)
}
