package store

import (
	"context"
	"errors"
	"time"

	"github.com/wegroup/pulse/pkg/types"
)

// ErrNotFound is returned when a lookup targets a row that does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence boundary of the pipeline.
//
// Implementations must be safe for concurrent use. Callers treat every error
// as a persistence failure to be logged; the in-memory pipeline keeps
// operating on its last good state and never propagates store errors to the
// original producer.
type Store interface {
	// InsertMetric persists one immutable metric point.
	InsertMetric(ctx context.Context, m *types.Metric) error

	// QueryMetrics returns a tenant's points for one metric name within
	// [from, to], oldest first. An empty name matches all metrics.
	QueryMetrics(ctx context.Context, tenantID, name string, from, to time.Time) ([]*types.Metric, error)

	// ListActiveRules returns every alert rule with IsActive set.
	ListActiveRules(ctx context.Context) ([]*types.AlertRule, error)

	// UpsertRule creates or replaces a rule by ID, preserving the stored
	// LastTriggeredAt and TriggerCount on replace.
	UpsertRule(ctx context.Context, r *types.AlertRule) error

	// MarkRuleTriggered records a firing: sets LastTriggeredAt and
	// increments TriggerCount.
	MarkRuleTriggered(ctx context.Context, ruleID string, at time.Time) error

	// CreateIncident persists a new alert incident.
	CreateIncident(ctx context.Context, inc *types.AlertIncident) error

	// ListIncidents returns a tenant's most recent incidents, newest first,
	// capped at limit. An empty tenantID matches all tenants.
	ListIncidents(ctx context.Context, tenantID string, limit int) ([]*types.AlertIncident, error)

	// ListEndpoints returns the active webhook endpoints for tenantID whose
	// event set contains eventType. An empty eventType matches all endpoints.
	ListEndpoints(ctx context.Context, tenantID, eventType string) ([]*types.WebhookEndpoint, error)

	// UpsertEndpoint creates or replaces an endpoint by ID, preserving the
	// stored delivery statistics on replace.
	UpsertEndpoint(ctx context.Context, ep *types.WebhookEndpoint) error

	// CreateDelivery persists a delivery attempt in its initial PENDING state.
	CreateDelivery(ctx context.Context, d *types.WebhookDelivery) error

	// FinalizeDelivery records the terminal outcome of a delivery: status,
	// response code/body, and latency.
	FinalizeDelivery(ctx context.Context, d *types.WebhookDelivery) error

	// RecordEndpointResult updates an endpoint's aggregate counters after one
	// delivery attempt: delivery/failure count, last delivery/failure time,
	// and the cumulative average response time.
	RecordEndpointResult(ctx context.Context, endpointID string, delivered bool, responseTime time.Duration, at time.Time) error

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}
