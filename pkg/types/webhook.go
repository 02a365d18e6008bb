package types

import "time"

// WebhookEndpoint is an externally registered HTTP target subscribed to a set
// of event types for one tenant. Endpoints are created and edited by admin
// tooling; the pipeline reads them and updates only the aggregate delivery
// statistics after each attempt.
type WebhookEndpoint struct {
	ID       string        `json:"id"`
	URL      string        `json:"url"`
	Secret   string        `json:"-"` // HMAC signing key; empty disables signing
	Events   []string      `json:"events"`
	TenantID string        `json:"tenant_id"`
	IsActive bool          `json:"is_active"`
	Timeout  time.Duration `json:"timeout"`

	DeliveryCount   int64     `json:"delivery_count"`
	FailureCount    int64     `json:"failure_count"`
	LastDeliveryAt  time.Time `json:"last_delivery_at,omitempty"`
	LastFailureAt   time.Time `json:"last_failure_at,omitempty"`
	AvgResponseTime float64   `json:"average_response_time_ms"`
}

// SubscribedTo reports whether the endpoint's event set contains eventType.
func (e *WebhookEndpoint) SubscribedTo(eventType string) bool {
	for _, t := range e.Events {
		if t == eventType {
			return true
		}
	}
	return false
}

// DeliveryStatus is the lifecycle state of one webhook delivery attempt.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryFailed    DeliveryStatus = "FAILED"
)

// WebhookDelivery records one attempted HTTP POST of an event to one endpoint.
// It is created with status PENDING and finalized exactly once to DELIVERED
// or FAILED.
type WebhookDelivery struct {
	ID           string            `json:"id"`
	EndpointID   string            `json:"webhook_endpoint_id"`
	EventType    string            `json:"event_type"`
	Payload      map[string]any    `json:"payload"`
	Headers      map[string]string `json:"headers"`
	Status       DeliveryStatus    `json:"status"`
	ResponseCode int               `json:"response_code,omitempty"`
	ResponseBody string            `json:"response_body,omitempty"`
	ResponseTime time.Duration     `json:"response_time"`
	DeliveredAt  time.Time         `json:"delivered_at,omitempty"`
	TenantID     string            `json:"tenant_id"`
}
