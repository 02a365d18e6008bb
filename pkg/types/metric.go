package types

import "time"

// MetricType classifies a metric point.
type MetricType string

const (
	MetricCounter MetricType = "COUNTER"
	MetricGauge   MetricType = "GAUGE"
	MetricTimer   MetricType = "TIMER"
)

// Metric is a single immutable measurement. Once recorded it is never updated.
type Metric struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Type      MetricType        `json:"type"`
	Unit      string            `json:"unit,omitempty"`
	Component string            `json:"component,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
	TenantID  string            `json:"tenant_id"`
	Timestamp time.Time         `json:"timestamp"`
}
