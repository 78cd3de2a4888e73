package executor

import (
	"context"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/quantrail/autoscaler/internal/events"
	"github.com/quantrail/autoscaler/internal/logger"
	"github.com/quantrail/autoscaler/internal/metrics"
	"github.com/quantrail/autoscaler/pkg/models"
)

// RollbackController issues a single compensating scale back to the
// pre-attempt instance count after a failed execution or a post-scale health
// regression. A rollback is never retried: if the compensating call fails
// too, the controller escalates a critical alert and leaves the service for
// an operator.
type RollbackController struct {
	adapter   Adapter
	publisher *events.Publisher
	clk       clock.Clock
	timeout   time.Duration
}

func NewRollbackController(adapter Adapter, publisher *events.Publisher, timeout time.Duration, clk clock.Clock) *RollbackController {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &RollbackController{
		adapter:   adapter,
		publisher: publisher,
		clk:       clk,
		timeout:   timeout,
	}
}

// Rollback compensates a failed scale attempt described by failedEvent,
// restoring the previous instance count. It returns the rollback's own audit
// event; the event's Status tells whether the system recovered.
func (r *RollbackController) Rollback(ctx context.Context, failedEvent *models.ScalingEvent, previous int) *models.ScalingEvent {
	log := logger.WithService(failedEvent.Service)
	log.Warnf("Rolling back scale attempt %s: restoring %d instances", failedEvent.ID, previous)

	r.publisher.RollbackStarted(failedEvent.Service, failedEvent)

	rollbackEvent := &models.ScalingEvent{
		ID:                models.NewUUID(),
		Service:           failedEvent.Service,
		Timestamp:         r.clk.Now(),
		RuleID:            failedEvent.RuleID,
		PreviousInstances: failedEvent.NewInstances,
		NewInstances:      previous,
		Reason:            fmt.Sprintf("rollback of %s", failedEvent.ID),
		RollbackOf:        failedEvent.ID,
	}
	if previous < failedEvent.NewInstances {
		rollbackEvent.Direction = models.DirectionScaleDown
	} else {
		rollbackEvent.Direction = models.DirectionScaleUp
	}

	scaleCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.adapter.Scale(scaleCtx, failedEvent.Service, previous)
	rollbackEvent.Duration = result.Duration

	if err != nil {
		rollbackEvent.Success = false
		rollbackEvent.Status = models.ScalingEventFailed
		rollbackEvent.Error = err.Error()

		metrics.IncRollback(failedEvent.Service, "failed")
		log.Errorf("Rollback failed, manual intervention required: %v", err)
		r.publisher.RollbackFailed(failedEvent.Service, rollbackEvent)
		r.publisher.Alert(failedEvent.Service, models.SeverityCritical,
			fmt.Sprintf("rollback of %s failed, instance count inconsistent", failedEvent.ID),
			rollbackEvent)
		return rollbackEvent
	}

	rollbackEvent.Success = true
	rollbackEvent.Status = models.ScalingEventRolledBack
	rollbackEvent.PreviousInstances = result.PreviousInstances
	rollbackEvent.NewInstances = result.NewInstances

	metrics.IncRollback(failedEvent.Service, "success")
	log.Infof("Rollback complete: %d instances restored", result.NewInstances)
	r.publisher.RollbackComplete(failedEvent.Service, rollbackEvent)
	return rollbackEvent
}
