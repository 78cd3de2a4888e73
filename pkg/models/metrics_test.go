package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		op        ComparisonOperator
		threshold float64
		want      bool
	}{
		{name: "greater true", value: 81, op: OpGreaterThan, threshold: 80, want: true},
		{name: "greater equal is false", value: 80, op: OpGreaterThan, threshold: 80, want: false},
		{name: "less true", value: 10, op: OpLessThan, threshold: 20, want: true},
		{name: "less equal is false", value: 20, op: OpLessThan, threshold: 20, want: false},
		{name: "equal exact", value: 50, op: OpEqual, threshold: 50, want: true},
		{name: "equal within epsilon", value: 50.0000001, op: OpEqual, threshold: 50, want: true},
		{name: "equal outside epsilon", value: 50.001, op: OpEqual, threshold: 50, want: false},
		{name: "not equal", value: 50.001, op: OpNotEqual, threshold: 50, want: true},
		{name: "not equal within epsilon", value: 50.0000001, op: OpNotEqual, threshold: 50, want: false},
		{name: "unknown operator", value: 1, op: "contains", threshold: 1, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.value, tt.op, tt.threshold))
		})
	}
}

func TestServiceMetricsValue(t *testing.T) {
	m := &ServiceMetrics{
		Instances:   InstanceMetrics{Current: 8, Healthy: 6},
		Resources:   ResourceMetrics{CPUPercent: 72.5, MemoryPercent: 60, NetworkMbps: 120},
		Performance: PerformanceMetrics{LatencyMs: 45, ThroughputRPS: 900, ErrorRate: 0.02, QueueLength: 17},
		Custom:      map[string]float64{"order_rate": 3500},
	}

	tests := []struct {
		path string
		want float64
	}{
		{"cpu", 72.5},
		{"cpu_percent", 72.5},
		{"memory_percent", 60},
		{"network_mbps", 120},
		{"latency_ms", 45},
		{"throughput_rps", 900},
		{"error_rate", 0.02},
		{"queue_length", 17},
		{"instances", 8},
		{"healthy_instances", 6},
		{"healthy_ratio", 0.75},
		{"custom.order_rate", 3500},
		{"order_rate", 3500},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := m.Value(tt.path)
			assert.True(t, ok)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}

	_, ok := m.Value("no_such_metric")
	assert.False(t, ok)
}

func TestHealthyRatio(t *testing.T) {
	m := &ServiceMetrics{Instances: InstanceMetrics{Current: 4, Healthy: 3}}
	assert.InDelta(t, 0.75, m.HealthyRatio(), 0.0001)

	empty := &ServiceMetrics{}
	assert.Equal(t, 1.0, empty.HealthyRatio())
}
