package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wegroup/pulse/internal/metrics"
	"github.com/wegroup/pulse/internal/store"
	"github.com/wegroup/pulse/pkg/types"
)

// Publisher is the slice of the event bus the evaluator needs to raise alert
// events.
type Publisher interface {
	Publish(evType, source, tenantID string, payload map[string]any, priority types.Priority) string
}

// Evaluator matches incoming metric points against the cached rules.
type Evaluator struct {
	cache *Cache
	store store.Store
	bus   Publisher
	now   func() time.Time // injectable for deterministic cooldown tests
}

// NewEvaluator wires an Evaluator to the rule cache, incident store, and bus.
func NewEvaluator(cache *Cache, st store.Store, bus Publisher) *Evaluator {
	return &Evaluator{
		cache: cache,
		store: st,
		bus:   bus,
		now:   time.Now,
	}
}

// Evaluate runs every applicable cached rule against m. A rule fires when its
// threshold condition holds and its cooldown window has elapsed; firing
// creates one incident and publishes one alert event. Evaluation errors on a
// single rule are logged and never block the remaining rules or the caller.
func (e *Evaluator) Evaluate(ctx context.Context, tenantID string, m *types.Metric) {
	for _, rule := range e.cache.Rules() {
		if !Applicable(rule, m, tenantID) {
			continue
		}
		fired, err := Compare(m.Value, rule.Threshold, rule.Operator)
		if err != nil {
			slog.Error("alert: rule evaluation failed", "rule", rule.ID, "metric", m.Name, "err", err)
			continue
		}
		if !fired {
			continue
		}
		now := e.now()
		if !e.cache.CooldownElapsed(rule, now) {
			continue
		}
		e.fire(ctx, rule, tenantID, m, now)
	}
}

// fire creates the incident, advances the rule's cooldown state, and raises
// the alert event on the bus.
func (e *Evaluator) fire(ctx context.Context, rule *types.AlertRule, tenantID string, m *types.Metric, now time.Time) {
	inc := &types.AlertIncident{
		ID:     uuid.NewString(),
		RuleID: rule.ID,
		Title:  fmt.Sprintf("%s Alert Triggered", rule.Name),
		Description: fmt.Sprintf("Metric %s reported %g, which satisfies %s %g",
			m.Name, m.Value, rule.Operator, rule.Threshold),
		Severity:       rule.Severity,
		TriggerValue:   m.Value,
		ThresholdValue: rule.Threshold,
		MetricContext: map[string]any{
			"metric":    m.Name,
			"component": m.Component,
			"unit":      m.Unit,
			"tags":      m.Tags,
		},
		TenantID:  tenantID,
		Status:    types.IncidentStatusOpen,
		CreatedAt: now,
	}
	if err := e.store.CreateIncident(ctx, inc); err != nil {
		// The alert event still goes out; losing the incident row must not
		// silence the notification path.
		slog.Error("alert: persist incident", "rule", rule.ID, "err", err)
	}

	e.cache.MarkTriggered(ctx, rule, now)

	priority := types.PriorityHigh
	if rule.Severity == types.SeverityCritical {
		priority = types.PriorityCritical
	}
	e.bus.Publish(types.EventAlertTriggered, "alert-evaluator", tenantID, map[string]any{
		"incident_id": inc.ID,
		"metric":      m.Name,
		"value":       m.Value,
		"threshold":   rule.Threshold,
		"component":   m.Component,
	}, priority)

	metrics.AlertsFired.WithLabelValues(string(rule.Severity)).Inc()
	slog.Warn("alert: rule fired",
		"rule", rule.Name,
		"metric", m.Name,
		"value", m.Value,
		"threshold", rule.Threshold,
		"severity", rule.Severity,
		"incident_id", inc.ID,
	)
}
