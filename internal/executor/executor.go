package executor

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnknownService = errors.New("unknown service")
	ErrScaleFailed    = errors.New("scale operation failed")
	ErrAdapterTimeout = errors.New("adapter timed out")
)

// Result is what the adapter observed for a single scale attempt.
// PreviousInstances is recorded even on failure so the rollback controller
// has a restore point.
type Result struct {
	Success           bool
	PreviousInstances int
	NewInstances      int
	Duration          time.Duration
	Error             string
}

// Adapter drives the actual instance count of a service. Implementations
// must be safe for concurrent use across distinct services; the pipeline
// serializes attempts per service.
type Adapter interface {
	// Scale moves the service to target instances. On failure the Result
	// carries whatever was observed; a transport error that never reached
	// the platform leaves its counts zero.
	Scale(ctx context.Context, service string, target int) (Result, error)

	// Instances reports the current instance count.
	Instances(service string) (int, error)

	// Healthy pings the backing platform.
	Healthy(ctx context.Context) error
}
