package collector

import (
	"context"
	"errors"

	"github.com/quantrail/autoscaler/pkg/models"
)

var (
	ErrCollectionFailed = errors.New("metric collection failed")
	ErrTimeout          = errors.New("collection timeout")
	ErrServiceNotFound  = errors.New("service not found")
	ErrInvalidResponse  = errors.New("invalid response from data source")
	ErrNoSnapshot       = errors.New("no cached snapshot")
	ErrStaleSnapshot    = errors.New("cached snapshot is stale")
	ErrUnhealthy        = errors.New("collector unhealthy")
)

// SnapshotSource fetches the structured metrics snapshot for one service.
type SnapshotSource interface {
	// Collect fetches instance, resource and performance metrics for a service
	Collect(ctx context.Context, service string) (*models.ServiceMetrics, error)

	// HealthCheck verifies the source can reach its backend
	HealthCheck(ctx context.Context) error

	// Close releases any resources held by the source
	Close() error
}
