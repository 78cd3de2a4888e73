package orchestrator

import (
	"context"
	"fmt"

	"code.cloudfoundry.org/clock"

	"github.com/quantrail/autoscaler/internal/collector"
	"github.com/quantrail/autoscaler/internal/decision"
	"github.com/quantrail/autoscaler/internal/events"
	"github.com/quantrail/autoscaler/internal/executor"
	"github.com/quantrail/autoscaler/internal/guard"
	"github.com/quantrail/autoscaler/internal/logger"
	"github.com/quantrail/autoscaler/internal/markethours"
	"github.com/quantrail/autoscaler/internal/metricsource"
	"github.com/quantrail/autoscaler/internal/rules"
	"github.com/quantrail/autoscaler/pkg/config"
	"github.com/quantrail/autoscaler/pkg/models"
)

// Orchestrator owns the full control loop: the collection service, the
// evaluation pipeline, the event bus and its sinks. It is the single entry
// point main and the API server talk to.
type Orchestrator struct {
	cfg *config.Config
	clk clock.Clock

	eventBus    *events.EventBus
	eventLogger *events.EventLogger
	publisher   *events.Publisher

	collector *collector.Service
	pipeline  *Pipeline
	guard     *guard.Guard
	adapter   executor.Adapter
	store     EventStore
}

type Options struct {
	Source    collector.SnapshotSource
	Evaluator metricsource.Evaluator
	Adapter   executor.Adapter
	Store     EventStore
	Clock     clock.Clock
}

func New(cfg *config.Config, opts Options) *Orchestrator {
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewClock()
	}

	eventBus := events.NewEventBus(cfg.Events.BufferSize)
	eventLogger := events.NewEventLogger(eventBus.SubscribeAll())
	publisher := events.NewPublisher(eventBus)

	coll := collector.NewService(collector.Config{
		Services:      models.MonitoredServices(cfg.Rules),
		Sources:       cfg.Sources,
		Source:        opts.Source,
		Evaluator:     opts.Evaluator,
		Interval:      cfg.Collector.Interval,
		Timeout:       cfg.Collector.Timeout,
		MaxConcurrent: cfg.Collector.MaxConcurrent,
		Publisher:     publisher,
		Clock:         clk,
	})

	g := guard.NewGuard(cfg.Limits, clk)

	engine := decision.NewEngine(decision.Config{
		Sources:   cfg.Sources,
		Limits:    cfg.Limits,
		Evaluator: opts.Evaluator,
		Clock:     clk,
	})

	rollback := executor.NewRollbackController(opts.Adapter, publisher, cfg.Executor.Timeout, clk)

	pipeline := NewPipeline(PipelineConfig{
		Interval:        cfg.Evaluation.Interval,
		ExecutorTimeout: cfg.Executor.Timeout,
		Rules:           cfg.Rules,
		Collector:       coll,
		Tracker:         rules.NewTracker(clk),
		Engine:          engine,
		Adjuster:        markethours.NewAdjuster(cfg.Financial, clk),
		Guard:           g,
		Adapter:         opts.Adapter,
		Rollback:        rollback,
		Store:           opts.Store,
		Publisher:       publisher,
		Clock:           clk,
	})

	return &Orchestrator{
		cfg:         cfg,
		clk:         clk,
		eventBus:    eventBus,
		eventLogger: eventLogger,
		publisher:   publisher,
		collector:   coll,
		pipeline:    pipeline,
		guard:       g,
		adapter:     opts.Adapter,
		store:       opts.Store,
	}
}

func (o *Orchestrator) Start() {
	logger.Info("Orchestrator starting")
	o.eventLogger.Start()
	o.collector.Start()
	o.pipeline.Start()
}

func (o *Orchestrator) Stop() {
	logger.Info("Orchestrator stopping")
	o.pipeline.Stop()
	o.collector.Stop()
	o.eventBus.Close()
	o.eventLogger.Stop()
	logger.Info("Orchestrator stopped")
}

// Override bypasses rule evaluation and pushes a manual target through the
// normal authorization and execution path. The guard remains the final
// authority. Overrides to the current instance count are no-ops.
func (o *Orchestrator) Override(ctx context.Context, service string, target int) (*models.ScalingDecision, error) {
	snapshot, ok := o.collector.Snapshot(service)
	if !ok {
		return nil, fmt.Errorf("no metrics for service %s", service)
	}

	// The cached snapshot can predate a scale this process just executed;
	// the adapter's live count is the authoritative basis for the override.
	if current, err := o.adapter.Instances(service); err == nil && current != snapshot.Instances.Current {
		live := *snapshot
		live.Instances.Current = current
		snapshot = &live
	}

	d := decision.NewOverrideDecision(service, snapshot, target, o.clk)
	o.publisher.DecisionMade(service, d)

	if !d.ShouldExecute() {
		return d, nil
	}

	if err := o.pipeline.execute(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Accessors used by the API layer.

func (o *Orchestrator) Collector() *collector.Service      { return o.collector }
func (o *Orchestrator) Guard() *guard.Guard                { return o.guard }
func (o *Orchestrator) ServiceState(service string) ServiceState {
	return o.pipeline.State(service)
}
func (o *Orchestrator) LastDecision(service string) (*models.ScalingDecision, bool) {
	return o.pipeline.LastDecision(service)
}
func (o *Orchestrator) Services() []string {
	return models.MonitoredServices(o.cfg.Rules)
}

func (o *Orchestrator) SubscribeEvents(eventType models.EventType) <-chan *models.Event {
	return o.eventBus.Subscribe(eventType)
}

func (o *Orchestrator) SubscribeAllEvents() <-chan *models.Event {
	return o.eventBus.SubscribeAll()
}
