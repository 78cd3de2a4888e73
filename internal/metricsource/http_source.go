package metricsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/cenkalti/backoff/v4"

	"github.com/quantrail/autoscaler/internal/logger"
	"github.com/quantrail/autoscaler/internal/resilience"
	"github.com/quantrail/autoscaler/pkg/models"
)

// HTTPEvaluator evaluates query sources against a time-series query endpoint
// and custom sources against their own URLs. Native sources are resolved
// directly from the snapshot. Each remote source gets its own circuit breaker
// so one dead endpoint does not stall the rest.
type HTTPEvaluator struct {
	client   *http.Client
	queryURL string
	retries  uint64
	cbConfig resilience.CircuitBreakerConfig
	clk      clock.Clock
	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

type HTTPEvaluatorConfig struct {
	QueryURL      string
	Timeout       time.Duration
	RetryAttempts int
	CBMaxFailures int
	CBTimeout     time.Duration
	Clock         clock.Clock
}

func NewHTTPEvaluator(cfg HTTPEvaluatorConfig) *HTTPEvaluator {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	retries := cfg.RetryAttempts
	if retries <= 0 {
		retries = 3
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewClock()
	}

	return &HTTPEvaluator{
		client:   &http.Client{Timeout: timeout},
		queryURL: cfg.QueryURL,
		retries:  uint64(retries - 1),
		clk:      clk,
		cbConfig: resilience.CircuitBreakerConfig{
			MaxFailures: cfg.CBMaxFailures,
			Timeout:     cfg.CBTimeout,
			Clock:       clk,
		},
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

func (e *HTTPEvaluator) Evaluate(ctx context.Context, source models.MetricSource, snapshot *models.ServiceMetrics) (Evaluation, error) {
	switch source.Type {
	case models.SourceTypeNative:
		if snapshot == nil {
			return Evaluation{}, fmt.Errorf("%w: no snapshot for native source %q", ErrQueryFailed, source.Name)
		}
		value, ok := snapshot.Value(source.Query)
		if !ok {
			return Evaluation{}, fmt.Errorf("%w: %q", ErrUnknownMetric, source.Query)
		}
		return evaluationFor(source, value), nil

	case models.SourceTypeQuery:
		u, err := e.buildQueryURL(source.Query)
		if err != nil {
			return Evaluation{}, err
		}
		return e.fetch(ctx, source, u)

	case models.SourceTypeCustom:
		return e.fetch(ctx, source, source.Endpoint)
	}

	return Evaluation{}, fmt.Errorf("%w: %q", ErrUnknownType, source.Type)
}

func (e *HTTPEvaluator) buildQueryURL(query string) (string, error) {
	u, err := url.Parse(e.queryURL)
	if err != nil {
		return "", fmt.Errorf("%w: bad query endpoint: %v", ErrQueryFailed, err)
	}
	q := u.Query()
	q.Set("query", query)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (e *HTTPEvaluator) fetch(ctx context.Context, source models.MetricSource, endpoint string) (Evaluation, error) {
	cb := e.breakerFor(source.Name)

	var value float64
	err := cb.Execute(func() error {
		op := func() error {
			v, err := e.fetchOnce(ctx, endpoint)
			if err != nil {
				return err
			}
			value = v
			return nil
		}
		return backoff.Retry(op, backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewExponentialBackOff(), e.retries), ctx))
	})
	if err != nil {
		logger.WithField("source", source.Name).Debugf("Metric query failed: %v", err)
		return Evaluation{}, err
	}

	return evaluationFor(source, value), nil
}

func (e *HTTPEvaluator) fetchOnce(ctx context.Context, endpoint string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("%w: %v", ErrQueryFailed, err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: unexpected status code %d", ErrQueryFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	return parseScalar(body)
}

// parseScalar accepts either a bare number or a {"value": n} object.
func parseScalar(body []byte) (float64, error) {
	trimmed := strings.TrimSpace(string(body))
	if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return v, nil
	}

	var wrapped struct {
		Value float64 `json:"value"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return 0, backoff.Permanent(fmt.Errorf("%w: %v", ErrInvalidResponse, err))
	}
	return wrapped.Value, nil
}

func (e *HTTPEvaluator) breakerFor(name string) *resilience.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	cb, ok := e.breakers[name]
	if !ok {
		cfg := e.cbConfig
		cfg.Name = name
		cb = resilience.NewCircuitBreaker(cfg)
		e.breakers[name] = cb
	}
	return cb
}

func (e *HTTPEvaluator) Close() {
	e.client.CloseIdleConnections()
}
