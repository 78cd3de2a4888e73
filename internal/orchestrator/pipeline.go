package orchestrator

import (
	"context"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/quantrail/autoscaler/internal/collector"
	"github.com/quantrail/autoscaler/internal/decision"
	"github.com/quantrail/autoscaler/internal/events"
	"github.com/quantrail/autoscaler/internal/executor"
	"github.com/quantrail/autoscaler/internal/guard"
	"github.com/quantrail/autoscaler/internal/logger"
	"github.com/quantrail/autoscaler/internal/markethours"
	"github.com/quantrail/autoscaler/internal/metrics"
	"github.com/quantrail/autoscaler/internal/rules"
	"github.com/quantrail/autoscaler/pkg/models"
)

// ServiceState is where a service currently sits in the scaling lifecycle.
type ServiceState string

const (
	StateIdle        ServiceState = "idle"
	StateEvaluating  ServiceState = "evaluating"
	StateDeciding    ServiceState = "deciding"
	StateAuthorizing ServiceState = "authorizing"
	StateExecuting   ServiceState = "executing"
	StateCommitted   ServiceState = "committed"
	StateRollingBack ServiceState = "rolling_back"
	StateRolledBack  ServiceState = "rolled_back"
	StateFailed      ServiceState = "failed"
)

// EventStore persists audit records. Writes happen synchronously inside the
// pipeline so a crash between execution and rollback still leaves the failed
// attempt on record.
type EventStore interface {
	Insert(ctx context.Context, event *models.ScalingEvent) error
}

type PipelineConfig struct {
	Interval        time.Duration
	ExecutorTimeout time.Duration
	Rules           []models.ScalingRule
	Collector       *collector.Service
	Tracker         *rules.Tracker
	Engine          *decision.Engine
	Adjuster        *markethours.Adjuster
	Guard           *guard.Guard
	Adapter         executor.Adapter
	Rollback        *executor.RollbackController
	Store           EventStore
	Publisher       *events.Publisher
	Clock           clock.Clock
}

// Pipeline runs the evaluation loop: every tick it walks the monitored
// services and, per service, evaluates rules, decides, adjusts for market
// hours, authorizes and executes. Services are evaluated concurrently but
// each service has at most one cycle in flight.
type Pipeline struct {
	cfg PipelineConfig
	clk clock.Clock

	runMu   sync.Mutex
	cancel  context.CancelFunc
	loopWG  sync.WaitGroup
	running bool

	mu           sync.Mutex
	inFlight     map[string]bool
	states       map[string]ServiceState
	lastDecision map[string]*models.ScalingDecision
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.ExecutorTimeout == 0 {
		cfg.ExecutorTimeout = 60 * time.Second
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Pipeline{
		cfg:          cfg,
		clk:          clk,
		inFlight:     make(map[string]bool),
		states:       make(map[string]ServiceState),
		lastDecision: make(map[string]*models.ScalingDecision),
	}
}

func (p *Pipeline) Start() {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.running {
		return
	}
	p.running = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.loopWG.Add(1)
	go p.run(ctx)

	logger.Info("Evaluation pipeline started")
}

func (p *Pipeline) Stop() {
	p.runMu.Lock()
	if !p.running {
		p.runMu.Unlock()
		return
	}
	p.running = false
	p.runMu.Unlock()

	p.cancel()
	p.loopWG.Wait()

	logger.Info("Evaluation pipeline stopped")
}

func (p *Pipeline) run(ctx context.Context) {
	defer p.loopWG.Done()

	ticker := p.clk.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			p.cycle(ctx)
		}
	}
}

// RunCycle evaluates every monitored service once. Exposed for tests.
func (p *Pipeline) RunCycle(ctx context.Context) {
	p.cycle(ctx)
}

func (p *Pipeline) cycle(ctx context.Context) {
	var wg sync.WaitGroup
	for _, service := range models.MonitoredServices(p.cfg.Rules) {
		p.mu.Lock()
		if p.inFlight[service] {
			p.mu.Unlock()
			logger.WithService(service).Debug("Previous cycle still in flight, skipping")
			continue
		}
		p.inFlight[service] = true
		p.mu.Unlock()

		wg.Add(1)
		go func(service string) {
			defer wg.Done()
			defer func() {
				p.mu.Lock()
				p.inFlight[service] = false
				p.mu.Unlock()
			}()
			p.evaluateService(ctx, service)
		}(service)
	}
	wg.Wait()
}

func (p *Pipeline) evaluateService(ctx context.Context, service string) {
	log := logger.WithService(service)
	p.setState(service, StateEvaluating)
	defer p.settleState(service)

	snapshot, ok := p.cfg.Collector.Snapshot(service)
	if !ok {
		log.Debug("No snapshot yet, skipping evaluation")
		return
	}
	if p.cfg.Collector.Stale(service) {
		// Stale data never drives a scaling action.
		log.Warn("Snapshot stale, skipping evaluation")
		p.cfg.Tracker.Reset(service)
		return
	}

	var fired []models.ScalingRule
	for i := range p.cfg.Rules {
		rule := &p.cfg.Rules[i]
		if !rule.Enabled || !rule.TargetsService(service) {
			continue
		}
		eval, err := p.cfg.Tracker.Evaluate(service, rule, snapshot)
		if err != nil {
			log.Warnf("Rule %s evaluation failed: %v", rule.ID, err)
			continue
		}
		if eval.Fired {
			log.Infof("Rule %s fired after holding %s", rule.ID, eval.HeldFor.Round(time.Second))
			fired = append(fired, *rule)
		}
	}

	p.setState(service, StateDeciding)
	d := p.cfg.Engine.Decide(ctx, service, snapshot, fired)
	p.cfg.Publisher.DecisionMade(service, d)
	metrics.IncDecision(service, string(d.Direction))

	adjusted := p.cfg.Adjuster.Adjust(d)
	p.storeDecision(service, adjusted)

	if !adjusted.ShouldExecute() {
		return
	}

	p.execute(ctx, adjusted)
}

func (p *Pipeline) execute(ctx context.Context, d *models.ScalingDecision) error {
	service := d.Service
	log := logger.WithService(service)

	p.setState(service, StateAuthorizing)
	authorized, err := p.cfg.Guard.Authorize(d)
	if err != nil {
		log.Warnf("Decision rejected: %v", err)
		rejected := models.NewScalingEvent(d, models.ScalingEventRejected, p.clk.Now())
		rejected.Error = err.Error()
		p.persist(ctx, rejected)
		p.cfg.Publisher.ScalingRejected(service, rejected)
		metrics.IncExecution(service, "rejected")
		return err
	}
	if !authorized.ShouldExecute() {
		// Clamping collapsed the change to a no-op.
		return nil
	}

	p.setState(service, StateExecuting)
	p.cfg.Publisher.ScalingStarted(service, authorized)
	p.cfg.Guard.RecordScale(authorized)

	scaleCtx, cancel := context.WithTimeout(ctx, p.cfg.ExecutorTimeout)
	defer cancel()

	result, err := p.cfg.Adapter.Scale(scaleCtx, service, authorized.TargetInstances)

	if err != nil {
		previous := result.PreviousInstances
		if previous <= 0 {
			// A transport-level failure yields no observed counts; the
			// decision's basis is the only valid restore point.
			previous = authorized.CurrentInstances
		}
		failed := models.NewScalingEvent(authorized, models.ScalingEventFailed, p.clk.Now())
		failed.Error = result.Error
		if failed.Error == "" {
			failed.Error = err.Error()
		}
		failed.Duration = result.Duration
		failed.PreviousInstances = previous
		p.persist(ctx, failed)
		p.cfg.Publisher.ScalingFailed(service, failed)
		metrics.IncExecution(service, "failed")

		p.setState(service, StateRollingBack)
		rollbackEvent := p.cfg.Rollback.Rollback(ctx, failed, previous)
		p.persist(ctx, rollbackEvent)

		if rollbackEvent.Success {
			p.setState(service, StateRolledBack)
		} else {
			p.setState(service, StateFailed)
		}
		return err
	}

	succeeded := models.NewScalingEvent(authorized, models.ScalingEventSuccess, p.clk.Now())
	succeeded.Duration = result.Duration
	succeeded.PreviousInstances = result.PreviousInstances
	succeeded.NewInstances = result.NewInstances
	p.persist(ctx, succeeded)
	p.cfg.Publisher.ScalingComplete(service, succeeded)
	metrics.IncExecution(service, "success")
	metrics.SetInstances(service, result.NewInstances)

	log.Infof("Scaling complete: %s %d -> %d instances",
		authorized.Direction, result.PreviousInstances, result.NewInstances)

	p.setState(service, StateCommitted)
	p.scheduleHealthCheck(ctx, succeeded)
	return nil
}

// scheduleHealthCheck verifies the fleet after the post-scale grace period.
// A healthy ratio under the floor means the new capacity is not serving: the
// committed change is rolled back and a critical alert raised.
func (p *Pipeline) scheduleHealthCheck(ctx context.Context, committed *models.ScalingEvent) {
	limits := p.cfg.Guard.Limits()
	if limits.HealthCheckGracePeriod <= 0 || limits.HealthyRatioFloor <= 0 {
		return
	}

	service := committed.Service
	p.loopWG.Add(1)
	go func() {
		defer p.loopWG.Done()

		timer := p.clk.NewTimer(limits.HealthCheckGracePeriod)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C():
		}

		snapshot, ok := p.cfg.Collector.Snapshot(service)
		if !ok {
			return
		}
		ratio := snapshot.HealthyRatio()
		if ratio >= limits.HealthyRatioFloor {
			return
		}

		logger.WithService(service).Errorf(
			"Post-scale health check failed: healthy ratio %.2f below floor %.2f",
			ratio, limits.HealthyRatioFloor)
		p.cfg.Publisher.Alert(service, models.SeverityCritical,
			"post-scale health check failed", snapshot)

		p.setState(service, StateRollingBack)
		rollbackEvent := p.cfg.Rollback.Rollback(ctx, committed, committed.PreviousInstances)
		p.persist(ctx, rollbackEvent)
		if rollbackEvent.Success {
			p.setState(service, StateRolledBack)
		} else {
			p.setState(service, StateFailed)
		}
	}()
}

func (p *Pipeline) persist(ctx context.Context, event *models.ScalingEvent) {
	if p.cfg.Store == nil {
		return
	}
	if err := p.cfg.Store.Insert(ctx, event); err != nil {
		logger.WithService(event.Service).Errorf("Failed to persist scaling event %s: %v", event.ID, err)
	}
}

func (p *Pipeline) setState(service string, state ServiceState) {
	p.mu.Lock()
	p.states[service] = state
	p.mu.Unlock()
}

// settleState returns terminal states to idle at the end of a cycle.
func (p *Pipeline) settleState(service string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.states[service] {
	case StateFailed:
		// Left for the operator; cleared by the next successful cycle.
	default:
		p.states[service] = StateIdle
	}
}

func (p *Pipeline) State(service string) ServiceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if state, ok := p.states[service]; ok {
		return state
	}
	return StateIdle
}

func (p *Pipeline) storeDecision(service string, d *models.ScalingDecision) {
	p.mu.Lock()
	p.lastDecision[service] = d
	p.mu.Unlock()
}

// LastDecision returns the most recent decision for a service.
func (p *Pipeline) LastDecision(service string) (*models.ScalingDecision, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.lastDecision[service]
	return d, ok
}
