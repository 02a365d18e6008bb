package api

import (
	"github.com/wegroup/pulse/pkg/types"
)

// publishEventRequest is the body of POST /api/v1/events.
type publishEventRequest struct {
	Type     string         `json:"type"`
	Source   string         `json:"source"`
	TenantID string         `json:"tenant_id"`
	Priority types.Priority `json:"priority"`
	Payload  map[string]any `json:"payload"`
}

// publishEventResponse acknowledges an accepted event.
type publishEventResponse struct {
	EventID string `json:"event_id"`
}

// recordMetricRequest is the body of POST /api/v1/metrics.
type recordMetricRequest struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Type      types.MetricType  `json:"type"`
	Unit      string            `json:"unit,omitempty"`
	Component string            `json:"component,omitempty"`
	TenantID  string            `json:"tenant_id"`
	Tags      map[string]string `json:"tags,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"` // RFC3339
}

// incidentResponse is one entry in GET /api/v1/incidents.
type incidentResponse struct {
	ID          string  `json:"id"`
	RuleID      string  `json:"rule_id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Severity    string  `json:"severity"`
	MetricValue float64 `json:"metric_value"`
	Threshold   float64 `json:"threshold"`
	Component   string  `json:"component,omitempty"`
	TenantID    string  `json:"tenant_id,omitempty"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"` // RFC3339
}

// ruleResponse is one entry in GET /api/v1/rules.
type ruleResponse struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	MetricQuery     string  `json:"metric_query"`
	Threshold       float64 `json:"threshold"`
	Operator        string  `json:"operator"`
	Severity        string  `json:"severity"`
	Cooldown        string  `json:"cooldown"`
	TenantID        string  `json:"tenant_id,omitempty"`
	TriggerCount    int64   `json:"trigger_count"`
	LastTriggeredAt string  `json:"last_triggered_at,omitempty"` // RFC3339
}

// endpointResponse is one entry in GET /api/v1/endpoints. The signing secret
// never leaves the process.
type endpointResponse struct {
	ID              string   `json:"id"`
	URL             string   `json:"url"`
	Events          []string `json:"events"`
	TenantID        string   `json:"tenant_id,omitempty"`
	DeliveryCount   int64    `json:"delivery_count"`
	FailureCount    int64    `json:"failure_count"`
	AvgResponseTime float64  `json:"avg_response_time_ms"`
	LastDeliveryAt  string   `json:"last_delivery_at,omitempty"` // RFC3339
	LastFailureAt   string   `json:"last_failure_at,omitempty"`  // RFC3339
}

// healthResponse is the payload for GET /api/v1/health.
type healthResponse struct {
	Status     string `json:"status"` // ok | degraded
	Store      string `json:"store"`  // ok | unreachable
	QueueDepth int    `json:"queue_depth"`
	QueueCap   int    `json:"queue_capacity"`
	RuleCount  int    `json:"rule_count"`
}

// diagnosticsResponse is the payload for GET /api/v1/diagnostics.
type diagnosticsResponse struct {
	Hints       []DiagnosticHint `json:"hints"`
	GeneratedAt string           `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
