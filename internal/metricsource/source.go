package metricsource

import (
	"context"
	"errors"

	"github.com/quantrail/autoscaler/pkg/models"
)

var (
	ErrQueryFailed     = errors.New("metric query failed")
	ErrInvalidResponse = errors.New("invalid response from metric source")
	ErrUnknownMetric   = errors.New("unknown metric path")
	ErrUnknownType     = errors.New("unknown metric source type")
)

// Evaluation is the outcome of querying one metric source.
type Evaluation struct {
	Source       models.MetricSource
	Value        float64
	ThresholdMet bool
}

// Evaluator queries one configured metric source and yields a scalar plus a
// threshold-met flag. Native sources read from the cached snapshot; query and
// custom sources go over HTTP.
type Evaluator interface {
	Evaluate(ctx context.Context, source models.MetricSource, snapshot *models.ServiceMetrics) (Evaluation, error)
}

func evaluationFor(source models.MetricSource, value float64) Evaluation {
	return Evaluation{
		Source:       source,
		Value:        value,
		ThresholdMet: models.Compare(value, source.Operator, source.Threshold),
	}
}
