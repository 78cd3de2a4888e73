package metricsource

import (
	"context"
	"fmt"
	"sync"

	"github.com/quantrail/autoscaler/pkg/models"
)

// StaticEvaluator returns configured values per source name. It backs tests
// and local runs where no real query endpoint exists; native sources still
// resolve from the snapshot unless explicitly overridden.
type StaticEvaluator struct {
	mu     sync.RWMutex
	values map[string]float64
	errs   map[string]error
}

func NewStaticEvaluator() *StaticEvaluator {
	return &StaticEvaluator{
		values: make(map[string]float64),
		errs:   make(map[string]error),
	}
}

func (e *StaticEvaluator) SetValue(sourceName string, value float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.values[sourceName] = value
	delete(e.errs, sourceName)
}

func (e *StaticEvaluator) SetError(sourceName string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs[sourceName] = err
}

func (e *StaticEvaluator) Evaluate(ctx context.Context, source models.MetricSource, snapshot *models.ServiceMetrics) (Evaluation, error) {
	e.mu.RLock()
	err, hasErr := e.errs[source.Name]
	value, hasValue := e.values[source.Name]
	e.mu.RUnlock()

	if hasErr {
		return Evaluation{}, err
	}
	if hasValue {
		return evaluationFor(source, value), nil
	}

	if source.Type == models.SourceTypeNative && snapshot != nil {
		if v, ok := snapshot.Value(source.Query); ok {
			return evaluationFor(source, v), nil
		}
		return Evaluation{}, fmt.Errorf("%w: %q", ErrUnknownMetric, source.Query)
	}

	return Evaluation{}, fmt.Errorf("%w: no value configured for %q", ErrQueryFailed, source.Name)
}
