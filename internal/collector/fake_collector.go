package collector

import (
	"context"
	"sync"
	"time"

	"github.com/quantrail/autoscaler/pkg/models"
)

// FakeSnapshotSource serves configured snapshots deterministically. Tests and
// local runs mutate it directly; per-service failures can be injected.
type FakeSnapshotSource struct {
	mu        sync.RWMutex
	snapshots map[string]*models.ServiceMetrics
	failures  map[string]error
}

func NewFakeSnapshotSource() *FakeSnapshotSource {
	return &FakeSnapshotSource{
		snapshots: make(map[string]*models.ServiceMetrics),
		failures:  make(map[string]error),
	}
}

func (f *FakeSnapshotSource) SetSnapshot(service string, snapshot *models.ServiceMetrics) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot.Service = service
	f.snapshots[service] = snapshot
	delete(f.failures, service)
}

// SetUsage is a shorthand for a healthy snapshot with the given counts and CPU.
func (f *FakeSnapshotSource) SetUsage(service string, instances int, cpuPercent float64) {
	f.SetSnapshot(service, &models.ServiceMetrics{
		Service:   service,
		Timestamp: time.Now(),
		Instances: models.InstanceMetrics{Current: instances, Desired: instances, Healthy: instances},
		Resources: models.ResourceMetrics{CPUPercent: cpuPercent, MemoryPercent: 50},
		Custom:    make(map[string]float64),
	})
}

func (f *FakeSnapshotSource) SetFailure(service string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[service] = err
}

func (f *FakeSnapshotSource) Collect(ctx context.Context, service string) (*models.ServiceMetrics, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err, ok := f.failures[service]; ok {
		return nil, err
	}

	snapshot, ok := f.snapshots[service]
	if !ok {
		return nil, ErrServiceNotFound
	}

	// Copy so callers cannot mutate the stored snapshot
	cp := *snapshot
	cp.Timestamp = time.Now()
	cp.Custom = make(map[string]float64, len(snapshot.Custom))
	for k, v := range snapshot.Custom {
		cp.Custom[k] = v
	}
	return &cp, nil
}

func (f *FakeSnapshotSource) HealthCheck(ctx context.Context) error {
	return nil
}

func (f *FakeSnapshotSource) Close() error {
	return nil
}
