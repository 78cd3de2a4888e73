package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	gocache "github.com/patrickmn/go-cache"

	"github.com/quantrail/autoscaler/internal/events"
	"github.com/quantrail/autoscaler/internal/logger"
	"github.com/quantrail/autoscaler/internal/metrics"
	"github.com/quantrail/autoscaler/internal/metricsource"
	"github.com/quantrail/autoscaler/pkg/models"
)

// Service runs the collection loop: every interval it gathers a snapshot per
// monitored service with bounded concurrency, folds configured metric sources
// into the snapshot's custom map, and caches the result. One service's
// failure never blocks the others; its previous snapshot stays cached and
// ages until a collection succeeds again.
type Service struct {
	interval      time.Duration
	timeout       time.Duration
	maxConcurrent int
	services      []string
	source        SnapshotSource
	evaluator     metricsource.Evaluator
	sources       []models.MetricSource
	cache         *gocache.Cache
	clk           clock.Clock
	publisher     *events.Publisher

	mu             sync.RWMutex
	lastCollection time.Time

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type Config struct {
	Interval      time.Duration
	Timeout       time.Duration
	MaxConcurrent int
	Services      []string
	Source        SnapshotSource
	Evaluator     metricsource.Evaluator
	Sources       []models.MetricSource
	Clock         clock.Clock
	Publisher     *events.Publisher
}

func NewService(cfg Config) *Service {
	if cfg.Interval == 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = cfg.Interval / 2
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewClock()
	}

	return &Service{
		interval:      cfg.Interval,
		timeout:       cfg.Timeout,
		maxConcurrent: cfg.MaxConcurrent,
		services:      cfg.Services,
		source:        cfg.Source,
		evaluator:     cfg.Evaluator,
		sources:       cfg.Sources,
		cache:         gocache.New(gocache.NoExpiration, 0),
		clk:           cfg.Clock,
		publisher:     cfg.Publisher,
	}
}

func (s *Service) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.running {
		return
	}
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)

	logger.Infof("Collection loop started (interval %s, %d services)", s.interval, len(s.services))
}

func (s *Service) Stop() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	s.running = false
	s.runMu.Unlock()

	s.cancel()
	s.wg.Wait()
	logger.Info("Collection loop stopped")
}

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.clk.NewTicker(s.interval)
	defer ticker.Stop()

	// Collect immediately on start
	s.CollectOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.CollectOnce(ctx)
		}
	}
}

// CollectOnce fans out one collection tick and returns per-service failures.
// All services are attempted regardless of individual failures.
func (s *Service) CollectOnce(ctx context.Context) map[string]error {
	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup

	var mu sync.Mutex
	failures := make(map[string]error)

	for _, service := range s.services {
		wg.Add(1)
		sem <- struct{}{}
		go func(service string) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.collectService(ctx, service); err != nil {
				mu.Lock()
				failures[service] = err
				mu.Unlock()
			}
		}(service)
	}
	wg.Wait()

	s.mu.Lock()
	s.lastCollection = s.clk.Now()
	s.mu.Unlock()

	return failures
}

func (s *Service) collectService(ctx context.Context, service string) error {
	collectCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.clk.Now()
	snapshot, err := s.source.Collect(collectCtx, service)
	if err != nil {
		logger.WithService(service).Warnf("Collection failed: %v", err)
		metrics.IncCollectionError(service)
		if s.publisher != nil {
			s.publisher.CollectionError(service, err)
		}
		// Previous cached snapshot stays in place and ages
		return err
	}

	s.foldSources(collectCtx, snapshot)

	s.cache.Set(service, snapshot, gocache.NoExpiration)
	metrics.IncCollection(service)
	metrics.ObserveCollectionDuration(service, s.clk.Since(start))
	metrics.SetInstances(service, snapshot.Instances.Current)
	if s.publisher != nil {
		s.publisher.MetricCollected(service, snapshot)
	}
	return nil
}

// foldSources evaluates the configured query/custom sources and records their
// values in the snapshot's custom map under the source name. A failed source
// is skipped; it shows up again as an evaluation error at decision time.
func (s *Service) foldSources(ctx context.Context, snapshot *models.ServiceMetrics) {
	if s.evaluator == nil {
		return
	}
	for _, src := range s.sources {
		if src.Type == models.SourceTypeNative {
			continue
		}
		eval, err := s.evaluator.Evaluate(ctx, src, snapshot)
		if err != nil {
			logger.WithService(snapshot.Service).Debugf("Source %q skipped: %v", src.Name, err)
			continue
		}
		if snapshot.Custom == nil {
			snapshot.Custom = make(map[string]float64)
		}
		snapshot.Custom[src.Name] = eval.Value
	}
}

// Snapshot returns the latest cached snapshot for a service.
func (s *Service) Snapshot(service string) (*models.ServiceMetrics, bool) {
	v, ok := s.cache.Get(service)
	if !ok {
		return nil, false
	}
	return v.(*models.ServiceMetrics), true
}

// Stale reports whether the cached snapshot has exceeded twice the
// collection interval (the staleness watermark).
func (s *Service) Stale(service string) bool {
	snapshot, ok := s.Snapshot(service)
	if !ok {
		return true
	}
	return snapshot.Age(s.clk.Now()) > 2*s.interval
}

// Healthy reports collection-loop health: the cache must be non-empty, the
// last tick and every cached snapshot within twice the interval.
func (s *Service) Healthy() error {
	s.mu.RLock()
	last := s.lastCollection
	s.mu.RUnlock()

	bound := 2 * s.interval
	now := s.clk.Now()

	if s.cache.ItemCount() == 0 {
		return fmt.Errorf("%w: no snapshots collected", ErrUnhealthy)
	}
	if last.IsZero() || now.Sub(last) > bound {
		return fmt.Errorf("%w: last collection %s ago", ErrUnhealthy, now.Sub(last))
	}
	for _, service := range s.services {
		if s.Stale(service) {
			return fmt.Errorf("%w: snapshot for %s exceeds staleness watermark", ErrUnhealthy, service)
		}
	}
	return nil
}

// LastCollection returns when the most recent tick completed.
func (s *Service) LastCollection() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCollection
}

// Services returns the monitored service list.
func (s *Service) Services() []string {
	return s.services
}
