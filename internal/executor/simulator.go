package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/quantrail/autoscaler/internal/logger"
)

// SimulatorAdapter is an in-memory execution backend for development and
// tests. It models provisioning latency and supports failure injection
// per service.
type SimulatorAdapter struct {
	clk           clock.Clock
	provisionTime time.Duration

	mu        sync.Mutex
	instances map[string]int
	failNext  map[string]string
}

func NewSimulatorAdapter(provisionTime time.Duration, clk clock.Clock) *SimulatorAdapter {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &SimulatorAdapter{
		clk:           clk,
		provisionTime: provisionTime,
		instances:     make(map[string]int),
		failNext:      make(map[string]string),
	}
}

// Seed sets the starting instance count for a service.
func (s *SimulatorAdapter) Seed(service string, instances int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[service] = instances
}

// FailNext makes the next Scale call for the service fail with the given
// message, leaving the instance count unchanged.
func (s *SimulatorAdapter) FailNext(service, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[service] = message
}

func (s *SimulatorAdapter) Scale(ctx context.Context, service string, target int) (Result, error) {
	s.mu.Lock()
	previous, ok := s.instances[service]
	s.mu.Unlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}

	started := s.clk.Now()

	if s.provisionTime > 0 {
		select {
		case <-s.clk.NewTimer(s.provisionTime).C():
		case <-ctx.Done():
			return Result{
				PreviousInstances: previous,
				NewInstances:      previous,
				Duration:          s.clk.Since(started),
				Error:             ctx.Err().Error(),
			}, fmt.Errorf("%w: %v", ErrAdapterTimeout, ctx.Err())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if msg, failing := s.failNext[service]; failing {
		delete(s.failNext, service)
		return Result{
			PreviousInstances: previous,
			NewInstances:      s.instances[service],
			Duration:          s.clk.Since(started),
			Error:             msg,
		}, fmt.Errorf("%w: %s", ErrScaleFailed, msg)
	}

	s.instances[service] = target
	logger.WithService(service).Infof("Simulated scale %d -> %d", previous, target)

	return Result{
		Success:           true,
		PreviousInstances: previous,
		NewInstances:      target,
		Duration:          s.clk.Since(started),
	}, nil
}

func (s *SimulatorAdapter) Instances(service string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.instances[service]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	return n, nil
}

func (s *SimulatorAdapter) Healthy(ctx context.Context) error {
	return nil
}
