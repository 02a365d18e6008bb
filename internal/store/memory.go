package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/wegroup/pulse/pkg/types"
)

// Memory is a thread-safe in-memory Store. It is the default driver and the
// backing store used throughout the test suite. A background goroutine (Run)
// periodically evicts metric points older than the configured TTL so an
// unbounded metric stream cannot grow the heap forever.
type Memory struct {
	mu        sync.RWMutex
	metrics   []*types.Metric
	rules     map[string]*types.AlertRule
	incidents []*types.AlertIncident
	endpoints map[string]*types.WebhookEndpoint
	delivs    map[string]*types.WebhookDelivery

	metricTTL time.Duration
	now       func() time.Time // injectable for deterministic tests
}

// NewMemory creates a Memory store that retains metric points for metricTTL.
// A non-positive TTL disables eviction.
func NewMemory(metricTTL time.Duration) *Memory {
	return &Memory{
		rules:     make(map[string]*types.AlertRule),
		endpoints: make(map[string]*types.WebhookEndpoint),
		delivs:    make(map[string]*types.WebhookDelivery),
		metricTTL: metricTTL,
		now:       time.Now,
	}
}

func (s *Memory) InsertMetric(ctx context.Context, m *types.Metric) error {
	cp := *m
	s.mu.Lock()
	s.metrics = append(s.metrics, &cp)
	s.mu.Unlock()
	return nil
}

func (s *Memory) QueryMetrics(ctx context.Context, tenantID, name string, from, to time.Time) ([]*types.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Metric
	for _, m := range s.metrics {
		if m.TenantID != tenantID {
			continue
		}
		if name != "" && m.Name != name {
			continue
		}
		if m.Timestamp.Before(from) || m.Timestamp.After(to) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Memory) ListActiveRules(ctx context.Context) ([]*types.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.AlertRule, 0, len(s.rules))
	for _, r := range s.rules {
		if !r.IsActive {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Memory) UpsertRule(ctx context.Context, r *types.AlertRule) error {
	cp := *r
	s.mu.Lock()
	if prev, ok := s.rules[r.ID]; ok {
		cp.LastTriggeredAt = prev.LastTriggeredAt
		cp.TriggerCount = prev.TriggerCount
	}
	s.rules[r.ID] = &cp
	s.mu.Unlock()
	return nil
}

func (s *Memory) MarkRuleTriggered(ctx context.Context, ruleID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	if !ok {
		return ErrNotFound
	}
	r.LastTriggeredAt = at
	r.TriggerCount++
	return nil
}

func (s *Memory) CreateIncident(ctx context.Context, inc *types.AlertIncident) error {
	cp := *inc
	s.mu.Lock()
	s.incidents = append(s.incidents, &cp)
	s.mu.Unlock()
	return nil
}

func (s *Memory) ListIncidents(ctx context.Context, tenantID string, limit int) ([]*types.AlertIncident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.AlertIncident
	for i := len(s.incidents) - 1; i >= 0; i-- {
		inc := s.incidents[i]
		if tenantID != "" && inc.TenantID != tenantID {
			continue
		}
		cp := *inc
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Memory) ListEndpoints(ctx context.Context, tenantID, eventType string) ([]*types.WebhookEndpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.WebhookEndpoint
	for _, ep := range s.endpoints {
		if !ep.IsActive || ep.TenantID != tenantID {
			continue
		}
		if eventType != "" && !ep.SubscribedTo(eventType) {
			continue
		}
		cp := *ep
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Memory) UpsertEndpoint(ctx context.Context, ep *types.WebhookEndpoint) error {
	cp := *ep
	s.mu.Lock()
	if prev, ok := s.endpoints[ep.ID]; ok {
		cp.DeliveryCount = prev.DeliveryCount
		cp.FailureCount = prev.FailureCount
		cp.LastDeliveryAt = prev.LastDeliveryAt
		cp.LastFailureAt = prev.LastFailureAt
		cp.AvgResponseTime = prev.AvgResponseTime
	}
	s.endpoints[ep.ID] = &cp
	s.mu.Unlock()
	return nil
}

func (s *Memory) CreateDelivery(ctx context.Context, d *types.WebhookDelivery) error {
	cp := *d
	s.mu.Lock()
	s.delivs[d.ID] = &cp
	s.mu.Unlock()
	return nil
}

func (s *Memory) FinalizeDelivery(ctx context.Context, d *types.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.delivs[d.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Status = d.Status
	stored.ResponseCode = d.ResponseCode
	stored.ResponseBody = d.ResponseBody
	stored.ResponseTime = d.ResponseTime
	stored.DeliveredAt = d.DeliveredAt
	return nil
}

func (s *Memory) RecordEndpointResult(ctx context.Context, endpointID string, delivered bool, responseTime time.Duration, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.endpoints[endpointID]
	if !ok {
		return ErrNotFound
	}
	if delivered {
		ep.DeliveryCount++
		ep.LastDeliveryAt = at
	} else {
		ep.FailureCount++
		ep.LastFailureAt = at
	}
	// Cumulative average over all attempts, successful or not. The original
	// implementation overwrote the average with the latest sample.
	n := ep.DeliveryCount + ep.FailureCount
	rt := float64(responseTime.Milliseconds())
	ep.AvgResponseTime = ep.AvgResponseTime + (rt-ep.AvgResponseTime)/float64(n)
	return nil
}

func (s *Memory) Ping(ctx context.Context) error { return nil }

func (s *Memory) Close() error { return nil }

// GetDelivery returns a copy of the delivery with the given ID. Used by tests
// and diagnostics; not part of the Store interface.
func (s *Memory) GetDelivery(id string) (*types.WebhookDelivery, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.delivs[id]
	if !ok {
		return nil, false
	}
	cp := *d
	return &cp, true
}

// GetEndpoint returns a copy of the endpoint with the given ID, including its
// current aggregate statistics.
func (s *Memory) GetEndpoint(id string) (*types.WebhookEndpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, ok := s.endpoints[id]
	if !ok {
		return nil, false
	}
	cp := *ep
	return &cp, true
}

// MetricCount returns the number of metric points currently held, including
// points that are stale but not yet evicted.
func (s *Memory) MetricCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metrics)
}

// Evict removes metric points older than now minus the TTL. It returns the
// number of points removed.
func (s *Memory) Evict(now time.Time) int {
	if s.metricTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-s.metricTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.metrics[:0]
	removed := 0
	for _, m := range s.metrics {
		if m.Timestamp.After(cutoff) {
			kept = append(kept, m)
		} else {
			removed++
		}
	}
	s.metrics = kept
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// interval (minimum 1 second) so stale points are removed promptly. Run
// blocks until ctx is cancelled and is a no-op when eviction is disabled.
func (s *Memory) Run(ctx context.Context) {
	if s.metricTTL <= 0 {
		return
	}
	interval := s.metricTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale metric points", "count", n)
			}
		}
	}
}
