package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quantrail/autoscaler/internal/logger"
	"github.com/quantrail/autoscaler/pkg/models"
)

// HTTPSnapshotSource fetches service snapshots from a platform metrics
// endpoint at GET {endpoint}/{service}.
type HTTPSnapshotSource struct {
	client   *http.Client
	endpoint string
}

type HTTPSnapshotSourceConfig struct {
	Endpoint string
	Timeout  time.Duration
}

func NewHTTPSnapshotSource(cfg HTTPSnapshotSourceConfig) *HTTPSnapshotSource {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &HTTPSnapshotSource{
		client:   &http.Client{Timeout: timeout},
		endpoint: cfg.Endpoint,
	}
}

// snapshotResponse matches the platform metrics endpoint payload
type snapshotResponse struct {
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
	Instances struct {
		Current   int `json:"current"`
		Desired   int `json:"desired"`
		Healthy   int `json:"healthy"`
		Unhealthy int `json:"unhealthy"`
	} `json:"instances"`
	Resources struct {
		CPUPercent    float64 `json:"cpu_percent"`
		MemoryPercent float64 `json:"memory_percent"`
		NetworkMbps   float64 `json:"network_mbps"`
	} `json:"resources"`
	Performance struct {
		LatencyMs     float64 `json:"latency_ms"`
		ThroughputRPS float64 `json:"throughput_rps"`
		ErrorRate     float64 `json:"error_rate"`
		QueueLength   int     `json:"queue_length"`
	} `json:"performance"`
	Custom map[string]float64 `json:"custom,omitempty"`
}

func (s *HTTPSnapshotSource) Collect(ctx context.Context, service string) (*models.ServiceMetrics, error) {
	url := fmt.Sprintf("%s/%s", s.endpoint, service)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrCollectionFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	logger.WithService(service).Debugf("Collecting snapshot from %s", url)

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrCollectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrServiceNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrCollectionFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrCollectionFailed, err)
	}

	var snapResp snapshotResponse
	if err := json.Unmarshal(body, &snapResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return s.convertResponse(service, &snapResp), nil
}

func (s *HTTPSnapshotSource) convertResponse(service string, resp *snapshotResponse) *models.ServiceMetrics {
	timestamp := time.Now()
	if resp.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, resp.Timestamp); err == nil {
			timestamp = parsed
		}
	}

	custom := resp.Custom
	if custom == nil {
		custom = make(map[string]float64)
	}

	return &models.ServiceMetrics{
		Service:   service,
		Timestamp: timestamp,
		Instances: models.InstanceMetrics{
			Current:   resp.Instances.Current,
			Desired:   resp.Instances.Desired,
			Healthy:   resp.Instances.Healthy,
			Unhealthy: resp.Instances.Unhealthy,
		},
		Resources: models.ResourceMetrics{
			CPUPercent:    resp.Resources.CPUPercent,
			MemoryPercent: resp.Resources.MemoryPercent,
			NetworkMbps:   resp.Resources.NetworkMbps,
		},
		Performance: models.PerformanceMetrics{
			LatencyMs:     resp.Performance.LatencyMs,
			ThroughputRPS: resp.Performance.ThroughputRPS,
			ErrorRate:     resp.Performance.ErrorRate,
			QueueLength:   resp.Performance.QueueLength,
		},
		Custom: custom,
	}
}

func (s *HTTPSnapshotSource) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", s.endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

func (s *HTTPSnapshotSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
