package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wegroup/pulse/pkg/types"
)

// Postgres implements Store on top of a pgx connection pool. It is selected
// with `store.driver: postgres` and expects the schema in db/schema.sql.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to connString and verifies the connection.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) InsertMetric(ctx context.Context, m *types.Metric) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO system_metrics (name, value, type, unit, component, tags, tenant_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.Name, m.Value, string(m.Type), m.Unit, m.Component, m.Tags, m.TenantID, m.Timestamp)
	if err != nil {
		return fmt.Errorf("store: insert metric: %w", err)
	}
	return nil
}

func (s *Postgres) QueryMetrics(ctx context.Context, tenantID, name string, from, to time.Time) ([]*types.Metric, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, value, type, unit, component, tags, tenant_id, recorded_at
		FROM system_metrics
		WHERE tenant_id = $1
		  AND ($2 = '' OR name = $2)
		  AND recorded_at BETWEEN $3 AND $4
		ORDER BY recorded_at`,
		tenantID, name, from, to)
	if err != nil {
		return nil, fmt.Errorf("store: query metrics: %w", err)
	}
	defer rows.Close()

	var out []*types.Metric
	for rows.Next() {
		var m types.Metric
		var typ string
		if err := rows.Scan(&m.Name, &m.Value, &typ, &m.Unit, &m.Component, &m.Tags, &m.TenantID, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan metric: %w", err)
		}
		m.Type = types.MetricType(typ)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *Postgres) ListActiveRules(ctx context.Context) ([]*types.AlertRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, metric_query, threshold, operator, severity, cooldown_seconds,
		       last_triggered_at, trigger_count, COALESCE(tenant_id, ''), is_active
		FROM alert_rules
		WHERE is_active
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list active rules: %w", err)
	}
	defer rows.Close()

	var out []*types.AlertRule
	for rows.Next() {
		var r types.AlertRule
		var op, sev string
		var cooldownSec int64
		var last *time.Time
		if err := rows.Scan(&r.ID, &r.Name, &r.MetricQuery, &r.Threshold, &op, &sev,
			&cooldownSec, &last, &r.TriggerCount, &r.TenantID, &r.IsActive); err != nil {
			return nil, fmt.Errorf("store: scan rule: %w", err)
		}
		r.Operator = types.Operator(op)
		r.Severity = types.Severity(sev)
		r.Cooldown = time.Duration(cooldownSec) * time.Second
		if last != nil {
			r.LastTriggeredAt = *last
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *Postgres) UpsertRule(ctx context.Context, r *types.AlertRule) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alert_rules (id, name, metric_query, threshold, operator, severity,
		                         cooldown_seconds, tenant_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			metric_query = EXCLUDED.metric_query,
			threshold = EXCLUDED.threshold,
			operator = EXCLUDED.operator,
			severity = EXCLUDED.severity,
			cooldown_seconds = EXCLUDED.cooldown_seconds,
			tenant_id = EXCLUDED.tenant_id,
			is_active = EXCLUDED.is_active`,
		r.ID, r.Name, r.MetricQuery, r.Threshold, string(r.Operator), string(r.Severity),
		int64(r.Cooldown/time.Second), r.TenantID, r.IsActive)
	if err != nil {
		return fmt.Errorf("store: upsert rule: %w", err)
	}
	return nil
}

func (s *Postgres) MarkRuleTriggered(ctx context.Context, ruleID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE alert_rules
		SET last_triggered_at = $2, trigger_count = trigger_count + 1
		WHERE id = $1`,
		ruleID, at)
	if err != nil {
		return fmt.Errorf("store: mark rule triggered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) CreateIncident(ctx context.Context, inc *types.AlertIncident) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alert_incidents (id, rule_id, title, description, severity,
		                             trigger_value, threshold_value, metric_context,
		                             tenant_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		inc.ID, inc.RuleID, inc.Title, inc.Description, string(inc.Severity),
		inc.TriggerValue, inc.ThresholdValue, inc.MetricContext,
		inc.TenantID, inc.Status, inc.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create incident: %w", err)
	}
	return nil
}

func (s *Postgres) ListIncidents(ctx context.Context, tenantID string, limit int) ([]*types.AlertIncident, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, rule_id, title, description, severity, trigger_value, threshold_value,
		       metric_context, tenant_id, status, created_at
		FROM alert_incidents
		WHERE $1 = '' OR tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list incidents: %w", err)
	}
	defer rows.Close()

	var out []*types.AlertIncident
	for rows.Next() {
		var inc types.AlertIncident
		var sev string
		if err := rows.Scan(&inc.ID, &inc.RuleID, &inc.Title, &inc.Description, &sev,
			&inc.TriggerValue, &inc.ThresholdValue, &inc.MetricContext,
			&inc.TenantID, &inc.Status, &inc.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan incident: %w", err)
		}
		inc.Severity = types.Severity(sev)
		out = append(out, &inc)
	}
	return out, rows.Err()
}

func (s *Postgres) ListEndpoints(ctx context.Context, tenantID, eventType string) ([]*types.WebhookEndpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, url, COALESCE(secret, ''), events, tenant_id, is_active, timeout_ms,
		       delivery_count, failure_count, last_delivery_at, last_failure_at,
		       average_response_time_ms
		FROM webhook_endpoints
		WHERE is_active AND tenant_id = $1 AND ($2 = '' OR events @> ARRAY[$2])
		ORDER BY id`,
		tenantID, eventType)
	if err != nil {
		return nil, fmt.Errorf("store: list endpoints: %w", err)
	}
	defer rows.Close()

	var out []*types.WebhookEndpoint
	for rows.Next() {
		var ep types.WebhookEndpoint
		var timeoutMs int64
		var lastDel, lastFail *time.Time
		if err := rows.Scan(&ep.ID, &ep.URL, &ep.Secret, &ep.Events, &ep.TenantID,
			&ep.IsActive, &timeoutMs, &ep.DeliveryCount, &ep.FailureCount,
			&lastDel, &lastFail, &ep.AvgResponseTime); err != nil {
			return nil, fmt.Errorf("store: scan endpoint: %w", err)
		}
		ep.Timeout = time.Duration(timeoutMs) * time.Millisecond
		if lastDel != nil {
			ep.LastDeliveryAt = *lastDel
		}
		if lastFail != nil {
			ep.LastFailureAt = *lastFail
		}
		out = append(out, &ep)
	}
	return out, rows.Err()
}

func (s *Postgres) UpsertEndpoint(ctx context.Context, ep *types.WebhookEndpoint) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_endpoints (id, url, secret, events, tenant_id, is_active, timeout_ms)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url,
			secret = EXCLUDED.secret,
			events = EXCLUDED.events,
			tenant_id = EXCLUDED.tenant_id,
			is_active = EXCLUDED.is_active,
			timeout_ms = EXCLUDED.timeout_ms`,
		ep.ID, ep.URL, ep.Secret, ep.Events, ep.TenantID, ep.IsActive,
		int64(ep.Timeout/time.Millisecond))
	if err != nil {
		return fmt.Errorf("store: upsert endpoint: %w", err)
	}
	return nil
}

func (s *Postgres) CreateDelivery(ctx context.Context, d *types.WebhookDelivery) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_deliveries (id, webhook_endpoint_id, event_type, payload,
		                                headers, status, tenant_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.EndpointID, d.EventType, d.Payload, d.Headers, string(d.Status), d.TenantID)
	if err != nil {
		return fmt.Errorf("store: create delivery: %w", err)
	}
	return nil
}

func (s *Postgres) FinalizeDelivery(ctx context.Context, d *types.WebhookDelivery) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = $2, response_code = $3, response_body = $4,
		    response_time_ms = $5, delivered_at = $6
		WHERE id = $1`,
		d.ID, string(d.Status), d.ResponseCode, d.ResponseBody,
		d.ResponseTime.Milliseconds(), d.DeliveredAt)
	if err != nil {
		return fmt.Errorf("store: finalize delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) RecordEndpointResult(ctx context.Context, endpointID string, delivered bool, responseTime time.Duration, at time.Time) error {
	// Single statement so concurrent deliveries to the same endpoint cannot
	// lose counter increments. The average is cumulative over all attempts.
	var stmt string
	if delivered {
		stmt = `
		UPDATE webhook_endpoints
		SET delivery_count = delivery_count + 1,
		    last_delivery_at = $2,
		    average_response_time_ms = average_response_time_ms
		        + ($3 - average_response_time_ms) / (delivery_count + failure_count + 1)
		WHERE id = $1`
	} else {
		stmt = `
		UPDATE webhook_endpoints
		SET failure_count = failure_count + 1,
		    last_failure_at = $2,
		    average_response_time_ms = average_response_time_ms
		        + ($3 - average_response_time_ms) / (delivery_count + failure_count + 1)
		WHERE id = $1`
	}
	tag, err := s.pool.Exec(ctx, stmt, endpointID, at, float64(responseTime.Milliseconds()))
	if err != nil {
		return fmt.Errorf("store: record endpoint result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

// IsNotFound reports whether err is a missing-row error from either driver.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}
