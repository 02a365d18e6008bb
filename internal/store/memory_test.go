package store

import (
	"context"
	"testing"
	"time"

	"github.com/wegroup/pulse/pkg/types"
)

var base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func point(name, tenant string, value float64, at time.Time) *types.Metric {
	return &types.Metric{
		Name:      name,
		Value:     value,
		Type:      types.MetricGauge,
		TenantID:  tenant,
		Timestamp: at,
	}
}

func TestQueryMetrics_FiltersAndOrders(t *testing.T) {
	s := NewMemory(0)
	ctx := context.Background()

	for _, m := range []*types.Metric{
		point("cpu_usage", "t1", 80, base.Add(2*time.Minute)),
		point("cpu_usage", "t1", 70, base.Add(time.Minute)),
		point("cpu_usage", "t2", 99, base.Add(time.Minute)), // other tenant
		point("mem_usage", "t1", 50, base.Add(time.Minute)), // other metric
		point("cpu_usage", "t1", 60, base.Add(time.Hour)),   // outside window
	} {
		if err := s.InsertMetric(ctx, m); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := s.QueryMetrics(ctx, "t1", "cpu_usage", base, base.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("points: got %d, want 2", len(got))
	}
	if got[0].Value != 70 || got[1].Value != 80 {
		t.Errorf("order: got %v then %v, want oldest first", got[0].Value, got[1].Value)
	}
}

func TestQueryMetrics_EmptyNameMatchesAll(t *testing.T) {
	s := NewMemory(0)
	ctx := context.Background()
	s.InsertMetric(ctx, point("cpu_usage", "t1", 1, base)) //nolint:errcheck
	s.InsertMetric(ctx, point("mem_usage", "t1", 2, base)) //nolint:errcheck

	got, err := s.QueryMetrics(ctx, "t1", "", base.Add(-time.Minute), base.Add(time.Minute))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("points: got %d, want 2", len(got))
	}
}

func TestInsertMetric_CopiesInput(t *testing.T) {
	s := NewMemory(0)
	ctx := context.Background()
	m := point("cpu_usage", "t1", 10, base)
	s.InsertMetric(ctx, m) //nolint:errcheck

	m.Value = 999 // caller mutates after insert

	got, _ := s.QueryMetrics(ctx, "t1", "cpu_usage", base.Add(-time.Minute), base.Add(time.Minute))
	if got[0].Value != 10 {
		t.Errorf("stored point followed caller mutation: got %v", got[0].Value)
	}
}

func TestUpsertRule_PreservesTriggerState(t *testing.T) {
	s := NewMemory(0)
	ctx := context.Background()

	rule := &types.AlertRule{ID: "r1", Name: "R1", MetricQuery: "cpu_usage", Threshold: 90, IsActive: true}
	if err := s.UpsertRule(ctx, rule); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.MarkRuleTriggered(ctx, "r1", base); err != nil {
		t.Fatalf("mark triggered: %v", err)
	}

	// Re-seeding the rule (config reload) must not reset the trigger state.
	rule.Threshold = 95
	if err := s.UpsertRule(ctx, rule); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	rules, _ := s.ListActiveRules(ctx)
	if len(rules) != 1 {
		t.Fatalf("rules: got %d, want 1", len(rules))
	}
	if rules[0].Threshold != 95 {
		t.Errorf("threshold not updated: got %v", rules[0].Threshold)
	}
	if rules[0].TriggerCount != 1 || !rules[0].LastTriggeredAt.Equal(base) {
		t.Errorf("trigger state lost: count=%d last=%v", rules[0].TriggerCount, rules[0].LastTriggeredAt)
	}
}

func TestMarkRuleTriggered_UnknownRule(t *testing.T) {
	s := NewMemory(0)
	if err := s.MarkRuleTriggered(context.Background(), "nope", base); err != ErrNotFound {
		t.Errorf("err: got %v, want ErrNotFound", err)
	}
}

func TestListActiveRules_ExcludesInactive(t *testing.T) {
	s := NewMemory(0)
	ctx := context.Background()
	s.UpsertRule(ctx, &types.AlertRule{ID: "on", IsActive: true})   //nolint:errcheck
	s.UpsertRule(ctx, &types.AlertRule{ID: "off", IsActive: false}) //nolint:errcheck

	rules, _ := s.ListActiveRules(ctx)
	if len(rules) != 1 || rules[0].ID != "on" {
		t.Errorf("rules: got %v", rules)
	}
}

func TestListIncidents_NewestFirstWithLimit(t *testing.T) {
	s := NewMemory(0)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		s.CreateIncident(ctx, &types.AlertIncident{ID: id, TenantID: "t1"}) //nolint:errcheck
	}

	incs, _ := s.ListIncidents(ctx, "t1", 2)
	if len(incs) != 2 || incs[0].ID != "c" || incs[1].ID != "b" {
		t.Errorf("incidents: got %v", incs)
	}
}

func TestListEndpoints_EventTypeFilter(t *testing.T) {
	s := NewMemory(0)
	ctx := context.Background()
	s.UpsertEndpoint(ctx, &types.WebhookEndpoint{ //nolint:errcheck
		ID: "alerts-only", TenantID: "t1", IsActive: true,
		Events: []string{"alert.triggered"},
	})
	s.UpsertEndpoint(ctx, &types.WebhookEndpoint{ //nolint:errcheck
		ID: "everything", TenantID: "t1", IsActive: true,
		Events: []string{"alert.triggered", "decision.created"},
	})
	s.UpsertEndpoint(ctx, &types.WebhookEndpoint{ //nolint:errcheck
		ID: "inactive", TenantID: "t1", IsActive: false,
		Events: []string{"alert.triggered"},
	})

	eps, _ := s.ListEndpoints(ctx, "t1", "decision.created")
	if len(eps) != 1 || eps[0].ID != "everything" {
		t.Errorf("filtered endpoints: got %v", eps)
	}

	all, _ := s.ListEndpoints(ctx, "t1", "")
	if len(all) != 2 {
		t.Errorf("wildcard endpoints: got %d, want 2", len(all))
	}
}

func TestRecordEndpointResult_CumulativeAverage(t *testing.T) {
	s := NewMemory(0)
	ctx := context.Background()
	s.UpsertEndpoint(ctx, &types.WebhookEndpoint{ //nolint:errcheck
		ID: "ep1", TenantID: "t1", IsActive: true, Events: []string{"alert.triggered"},
	})

	if err := s.RecordEndpointResult(ctx, "ep1", true, 100*time.Millisecond, base); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordEndpointResult(ctx, "ep1", false, 200*time.Millisecond, base.Add(time.Minute)); err != nil {
		t.Fatalf("record: %v", err)
	}

	ep, ok := s.GetEndpoint("ep1")
	if !ok {
		t.Fatal("endpoint missing")
	}
	if ep.DeliveryCount != 1 || ep.FailureCount != 1 {
		t.Errorf("counters: deliveries=%d failures=%d", ep.DeliveryCount, ep.FailureCount)
	}
	// Average over both attempts, not the latest sample.
	if ep.AvgResponseTime != 150 {
		t.Errorf("avg response time: got %v, want 150", ep.AvgResponseTime)
	}
	if !ep.LastDeliveryAt.Equal(base) || !ep.LastFailureAt.Equal(base.Add(time.Minute)) {
		t.Errorf("timestamps: delivery=%v failure=%v", ep.LastDeliveryAt, ep.LastFailureAt)
	}
}

func TestFinalizeDelivery(t *testing.T) {
	s := NewMemory(0)
	ctx := context.Background()

	d := &types.WebhookDelivery{ID: "d1", EndpointID: "ep1", Status: types.DeliveryPending}
	if err := s.CreateDelivery(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}

	d.Status = types.DeliveryDelivered
	d.ResponseCode = 200
	d.ResponseTime = 42
	d.DeliveredAt = base
	if err := s.FinalizeDelivery(ctx, d); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	got, ok := s.GetDelivery("d1")
	if !ok {
		t.Fatal("delivery missing")
	}
	if got.Status != types.DeliveryDelivered || got.ResponseCode != 200 {
		t.Errorf("delivery: got %+v", got)
	}

	if err := s.FinalizeDelivery(ctx, &types.WebhookDelivery{ID: "nope"}); err != ErrNotFound {
		t.Errorf("finalize unknown: got %v, want ErrNotFound", err)
	}
}

func TestEvict_RemovesStalePoints(t *testing.T) {
	s := NewMemory(10 * time.Minute)
	ctx := context.Background()
	s.InsertMetric(ctx, point("cpu_usage", "t1", 1, base.Add(-time.Hour))) //nolint:errcheck
	s.InsertMetric(ctx, point("cpu_usage", "t1", 2, base))                 //nolint:errcheck

	if n := s.Evict(base.Add(time.Minute)); n != 1 {
		t.Errorf("evicted: got %d, want 1", n)
	}
	if s.MetricCount() != 1 {
		t.Errorf("remaining: got %d, want 1", s.MetricCount())
	}
}

func TestEvict_DisabledWithoutTTL(t *testing.T) {
	s := NewMemory(0)
	ctx := context.Background()
	s.InsertMetric(ctx, point("cpu_usage", "t1", 1, base.Add(-24*time.Hour))) //nolint:errcheck

	if n := s.Evict(base); n != 0 {
		t.Errorf("evicted: got %d, want 0", n)
	}
}
