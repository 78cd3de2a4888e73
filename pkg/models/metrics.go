package models

import (
	"strings"
	"time"
)

type SourceType string

const (
	SourceTypeQuery  SourceType = "query"
	SourceTypeCustom SourceType = "custom"
	SourceTypeNative SourceType = "native"
)

type ComparisonOperator string

const (
	OpGreaterThan ComparisonOperator = "greater_than"
	OpLessThan    ComparisonOperator = "less_than"
	OpEqual       ComparisonOperator = "equal"
	OpNotEqual    ComparisonOperator = "not_equal"
)

// ComparisonEpsilon is the tolerance used for equal/not_equal comparisons.
const ComparisonEpsilon = 1e-6

// Compare applies the operator to value against threshold.
func Compare(value float64, op ComparisonOperator, threshold float64) bool {
	switch op {
	case OpGreaterThan:
		return value > threshold
	case OpLessThan:
		return value < threshold
	case OpEqual:
		return value-threshold < ComparisonEpsilon && threshold-value < ComparisonEpsilon
	case OpNotEqual:
		return value-threshold >= ComparisonEpsilon || threshold-value >= ComparisonEpsilon
	}
	return false
}

// MetricSource is the immutable configuration of one weighted metric input.
type MetricSource struct {
	Name      string             `json:"name" mapstructure:"name"`
	Type      SourceType         `json:"type" mapstructure:"type"`
	Query     string             `json:"query,omitempty" mapstructure:"query"`
	Endpoint  string             `json:"endpoint,omitempty" mapstructure:"endpoint"`
	Threshold float64            `json:"threshold" mapstructure:"threshold"`
	Operator  ComparisonOperator `json:"operator" mapstructure:"operator"`
	Weight    float64            `json:"weight" mapstructure:"weight"`
}

// InstanceMetrics holds instance counts for a service.
type InstanceMetrics struct {
	Current   int `json:"current"`
	Desired   int `json:"desired"`
	Healthy   int `json:"healthy"`
	Unhealthy int `json:"unhealthy"`
}

// ResourceMetrics holds resource usage percentages.
type ResourceMetrics struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	NetworkMbps   float64 `json:"network_mbps"`
}

// PerformanceMetrics holds request-level indicators.
type PerformanceMetrics struct {
	LatencyMs     float64 `json:"latency_ms"`
	ThroughputRPS float64 `json:"throughput_rps"`
	ErrorRate     float64 `json:"error_rate"`
	QueueLength   int     `json:"queue_length"`
}

// ServiceMetrics is one collection-tick snapshot for a service. Snapshots are
// superseded whole by the next tick and are read-only to consumers.
type ServiceMetrics struct {
	Service     string             `json:"service"`
	Timestamp   time.Time          `json:"timestamp"`
	Instances   InstanceMetrics    `json:"instances"`
	Resources   ResourceMetrics    `json:"resources"`
	Performance PerformanceMetrics `json:"performance"`
	Custom      map[string]float64 `json:"custom,omitempty"`
}

// Value resolves a metric path against the snapshot. Custom metrics are
// addressed as "custom.<name>"; unknown names fall back to the custom map.
func (m *ServiceMetrics) Value(path string) (float64, bool) {
	switch path {
	case "cpu", "cpu_percent":
		return m.Resources.CPUPercent, true
	case "memory", "memory_percent":
		return m.Resources.MemoryPercent, true
	case "network", "network_mbps":
		return m.Resources.NetworkMbps, true
	case "latency", "latency_ms":
		return m.Performance.LatencyMs, true
	case "throughput", "throughput_rps":
		return m.Performance.ThroughputRPS, true
	case "error_rate":
		return m.Performance.ErrorRate, true
	case "queue_length":
		return float64(m.Performance.QueueLength), true
	case "instances":
		return float64(m.Instances.Current), true
	case "healthy_instances":
		return float64(m.Instances.Healthy), true
	case "healthy_ratio":
		if m.Instances.Current == 0 {
			return 0, true
		}
		return float64(m.Instances.Healthy) / float64(m.Instances.Current), true
	}

	name := strings.TrimPrefix(path, "custom.")
	if v, ok := m.Custom[name]; ok {
		return v, true
	}
	return 0, false
}

// HealthyRatio returns healthy/current, or 1 for an empty service.
func (m *ServiceMetrics) HealthyRatio() float64 {
	if m.Instances.Current == 0 {
		return 1
	}
	return float64(m.Instances.Healthy) / float64(m.Instances.Current)
}

// Age returns how old the snapshot is relative to now.
func (m *ServiceMetrics) Age(now time.Time) time.Duration {
	return now.Sub(m.Timestamp)
}
