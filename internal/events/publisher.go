package events

import (
	"github.com/quantrail/autoscaler/pkg/models"
)

type Publisher struct {
	bus *EventBus
}

func NewPublisher(bus *EventBus) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) MetricCollected(service string, snapshot *models.ServiceMetrics) {
	event := models.NewEvent(models.EventTypeMetricCollected, service, "Metrics collected").
		WithData(snapshot)
	p.bus.Publish(event)
}

func (p *Publisher) CollectionError(service string, err error) {
	event := models.NewEvent(models.EventTypeCollectionError, service, "Metric collection failed").
		WithSeverity(models.SeverityWarning).
		WithData(map[string]interface{}{"error": err.Error()})
	p.bus.Publish(event)
}

func (p *Publisher) DecisionMade(service string, decision *models.ScalingDecision) {
	msg := "Scaling decision: " + string(decision.Direction)
	event := models.NewEvent(models.EventTypeDecisionMade, service, msg).
		WithData(decision)

	if decision.Urgency == models.UrgencyCritical {
		event.WithSeverity(models.SeverityCritical)
	}

	p.bus.Publish(event)
}

func (p *Publisher) ScalingStarted(service string, decision *models.ScalingDecision) {
	msg := "Scaling started: " + string(decision.Direction)
	event := models.NewEvent(models.EventTypeScalingStarted, service, msg).
		WithData(decision)
	p.bus.Publish(event)
}

func (p *Publisher) ScalingComplete(service string, scalingEvent *models.ScalingEvent) {
	msg := "Scaling complete: " + string(scalingEvent.Direction)
	event := models.NewEvent(models.EventTypeScalingComplete, service, msg).
		WithData(scalingEvent)
	p.bus.Publish(event)
}

func (p *Publisher) ScalingFailed(service string, scalingEvent *models.ScalingEvent) {
	msg := "Scaling failed: " + scalingEvent.Error
	event := models.NewEvent(models.EventTypeScalingFailed, service, msg).
		WithSeverity(models.SeverityCritical).
		WithData(scalingEvent)
	p.bus.Publish(event)
}

func (p *Publisher) ScalingRejected(service string, scalingEvent *models.ScalingEvent) {
	msg := "Scaling rejected: " + scalingEvent.Reason
	event := models.NewEvent(models.EventTypeScalingRejected, service, msg).
		WithSeverity(models.SeverityWarning).
		WithData(scalingEvent)
	p.bus.Publish(event)
}

func (p *Publisher) RollbackStarted(service string, original *models.ScalingEvent) {
	event := models.NewEvent(models.EventTypeRollbackStarted, service, "Rollback started").
		WithSeverity(models.SeverityWarning).
		WithData(original)
	p.bus.Publish(event)
}

func (p *Publisher) RollbackComplete(service string, scalingEvent *models.ScalingEvent) {
	event := models.NewEvent(models.EventTypeRollbackComplete, service, "Rollback complete").
		WithSeverity(models.SeverityWarning).
		WithData(scalingEvent)
	p.bus.Publish(event)
}

func (p *Publisher) RollbackFailed(service string, scalingEvent *models.ScalingEvent) {
	event := models.NewEvent(models.EventTypeRollbackFailed, service, "Rollback failed, manual intervention required").
		WithSeverity(models.SeverityCritical).
		WithData(scalingEvent)
	p.bus.Publish(event)
}

func (p *Publisher) Alert(service string, severity models.EventSeverity, message string, data interface{}) {
	event := models.NewEvent(models.EventTypeAlert, service, message).
		WithSeverity(severity).
		WithData(data)
	p.bus.Publish(event)
}

func (p *Publisher) Error(service string, message string, err error) {
	event := models.NewEvent(models.EventTypeError, service, message).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{"error": err.Error()})
	p.bus.Publish(event)
}
