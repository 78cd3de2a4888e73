package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/quantrail/autoscaler/internal/logger"
)

// HTTPAdapter drives a remote orchestration endpoint. Scale posts the
// target to {endpoint}/services/{service}/scale and reads back the
// observed counts; 5xx responses are retried with exponential backoff,
// 4xx responses fail permanently.
type HTTPAdapter struct {
	endpoint      string
	client        *http.Client
	retryAttempts int
}

type scaleRequest struct {
	Target int `json:"target"`
}

type scaleResponse struct {
	Service           string `json:"service"`
	PreviousInstances int    `json:"previous_instances"`
	Instances         int    `json:"instances"`
	Error             string `json:"error,omitempty"`
}

func NewHTTPAdapter(endpoint string, timeout time.Duration, retryAttempts int) *HTTPAdapter {
	return &HTTPAdapter{
		endpoint:      endpoint,
		client:        &http.Client{Timeout: timeout},
		retryAttempts: retryAttempts,
	}
}

func (h *HTTPAdapter) Scale(ctx context.Context, service string, target int) (Result, error) {
	started := time.Now()

	body, err := json.Marshal(scaleRequest{Target: target})
	if err != nil {
		return Result{Duration: time.Since(started), Error: err.Error()}, err
	}

	var resp scaleResponse
	operation := func() error {
		url := fmt.Sprintf("%s/services/%s/scale", h.endpoint, service)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		httpResp, err := h.client.Do(req)
		if err != nil {
			return err
		}
		defer httpResp.Body.Close()

		switch {
		case httpResp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrUnknownService, service))
		case httpResp.StatusCode >= 500:
			return fmt.Errorf("%w: status %d", ErrScaleFailed, httpResp.StatusCode)
		case httpResp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("%w: status %d", ErrScaleFailed, httpResp.StatusCode))
		}

		data, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrScaleFailed, err))
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(h.retryAttempts)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		logger.WithService(service).Errorf("Scale request failed: %v", err)
		return Result{
			PreviousInstances: resp.PreviousInstances,
			NewInstances:      resp.Instances,
			Duration:          time.Since(started),
			Error:             err.Error(),
		}, err
	}

	result := Result{
		Success:           resp.Error == "",
		PreviousInstances: resp.PreviousInstances,
		NewInstances:      resp.Instances,
		Duration:          time.Since(started),
		Error:             resp.Error,
	}
	if resp.Error != "" {
		return result, fmt.Errorf("%w: %s", ErrScaleFailed, resp.Error)
	}
	return result, nil
}

func (h *HTTPAdapter) Instances(service string) (int, error) {
	url := fmt.Sprintf("%s/services/%s", h.endpoint, service)
	httpResp, err := h.client.Get(url)
	if err != nil {
		return 0, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	if httpResp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", ErrScaleFailed, httpResp.StatusCode)
	}

	var resp scaleResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return 0, err
	}
	return resp.Instances, nil
}

func (h *HTTPAdapter) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	httpResp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("executor backend unhealthy: status %d", httpResp.StatusCode)
	}
	return nil
}
