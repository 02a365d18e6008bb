package types

import "time"

// Priority determines the drain order of pending events: critical events are
// processed before high, high before medium, medium before low.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank maps a priority to a sortable weight. Unknown values rank below low so
// malformed input never jumps the queue.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is one of the four known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Canonical event kinds published by the platform. Publish accepts arbitrary
// type strings; these constants cover the producers wired into the pipeline
// itself.
const (
	EventAlertTriggered    = "alert.triggered"
	EventDecisionCreated   = "decision.created"
	EventPredictionCreated = "prediction.created"
)

// Event is a typed, prioritized message flowing through the bus.
//
// An Event is owned by the bus queue while pending and handed by reference to
// handlers and the webhook dispatcher during processing. Handlers must not
// mutate Payload. The only field the bus itself mutates is RetryCount.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Source     string         `json:"source"`
	TenantID   string         `json:"tenant_id"`
	Payload    map[string]any `json:"payload"`
	Timestamp  time.Time      `json:"timestamp"`
	Priority   Priority       `json:"priority"`
	RetryCount int            `json:"retry_count"`
}
