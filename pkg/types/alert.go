package types

import "time"

// Operator is the comparison applied between a metric value and a rule threshold.
type Operator string

const (
	OpGreaterThan        Operator = "GREATER_THAN"
	OpLessThan           Operator = "LESS_THAN"
	OpEquals             Operator = "EQUALS"
	OpNotEquals          Operator = "NOT_EQUALS"
	OpGreaterThanOrEqual Operator = "GREATER_THAN_OR_EQUAL"
	OpLessThanOrEqual    Operator = "LESS_THAN_OR_EQUAL"
)

// Severity is the configured importance of an alert rule.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// AlertRule is a persisted threshold condition over a metric stream.
//
// MetricQuery is a loose match expression: a rule applies to a metric when the
// query contains the metric's name or component (case-insensitive substring).
// A rule with an empty TenantID is global and applies to every tenant.
type AlertRule struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	MetricQuery     string        `json:"metric_query"`
	Threshold       float64       `json:"threshold"`
	Operator        Operator      `json:"operator"`
	Severity        Severity      `json:"severity"`
	Cooldown        time.Duration `json:"cooldown"`
	LastTriggeredAt time.Time     `json:"last_triggered_at,omitempty"`
	TriggerCount    int64         `json:"trigger_count"`
	TenantID        string        `json:"tenant_id,omitempty"`
	IsActive        bool          `json:"is_active"`
}

// AlertIncident is created exactly once per rule firing. Lifecycle management
// (acknowledge, resolve) happens outside the pipeline; the core never mutates
// an incident after creation.
type AlertIncident struct {
	ID             string         `json:"id"`
	RuleID         string         `json:"rule_id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Severity       Severity       `json:"severity"`
	TriggerValue   float64        `json:"trigger_value"`
	ThresholdValue float64        `json:"threshold_value"`
	MetricContext  map[string]any `json:"metric_context,omitempty"`
	TenantID       string         `json:"tenant_id"`
	Status         string         `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
}

// IncidentStatusOpen is the status every new incident starts in.
const IncidentStatusOpen = "open"
