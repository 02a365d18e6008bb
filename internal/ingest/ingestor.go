package ingest

import (
	"context"
	"log/slog"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/wegroup/pulse/internal/metrics"
	"github.com/wegroup/pulse/internal/store"
	"github.com/wegroup/pulse/pkg/types"
)

// Evaluator is the slice of the alert engine the ingestor calls for every
// accepted point.
type Evaluator interface {
	Evaluate(ctx context.Context, tenantID string, m *types.Metric)
}

// Ingestor records metric points. Safe for concurrent use.
type Ingestor struct {
	store store.Store
	eval  Evaluator
	now   func() time.Time

	// collecting guards the system sampling pass so overlapping runs never
	// interleave. Compare-and-swap, not a plain flag: RecordSystemMetrics
	// may be called from both the sampler tick and ad-hoc callers.
	collecting atomic.Bool
}

// New creates an Ingestor persisting to st and evaluating through eval.
// A nil eval disables alerting (used by tools that only backfill metrics).
func New(st store.Store, eval Evaluator) *Ingestor {
	return &Ingestor{store: st, eval: eval, now: time.Now}
}

// RecordMetric persists one point and synchronously evaluates alert rules
// against it. A persistence failure is logged and the point is discarded;
// it never surfaces to the caller and skips evaluation, since an unpersisted
// point cannot back an incident investigation.
func (i *Ingestor) RecordMetric(ctx context.Context, tenantID string, m *types.Metric) {
	if m.Timestamp.IsZero() {
		m.Timestamp = i.now()
	}
	m.TenantID = tenantID

	if err := i.store.InsertMetric(ctx, m); err != nil {
		slog.Error("ingest: persist metric", "metric", m.Name, "tenant", tenantID, "err", err)
		return
	}
	metrics.MetricsIngested.Inc()

	if i.eval != nil {
		i.eval.Evaluate(ctx, tenantID, m)
	}
}

// RecordAPIMetrics composes the standard points for one handled HTTP request:
// a latency timer, a request counter, and an error counter when the response
// status is 400 or above.
func (i *Ingestor) RecordAPIMetrics(ctx context.Context, tenantID, endpoint, method string, status int, elapsed time.Duration) {
	tags := map[string]string{
		"endpoint": endpoint,
		"method":   method,
		"status":   strconv.Itoa(status),
	}

	i.RecordMetric(ctx, tenantID, &types.Metric{
		Name:      "api_response_time",
		Value:     float64(elapsed.Milliseconds()),
		Type:      types.MetricTimer,
		Unit:      "ms",
		Component: "api",
		Tags:      tags,
	})
	i.RecordMetric(ctx, tenantID, &types.Metric{
		Name:      "api_request_count",
		Value:     1,
		Type:      types.MetricCounter,
		Component: "api",
		Tags:      tags,
	})
	if status >= 400 {
		i.RecordMetric(ctx, tenantID, &types.Metric{
			Name:      "api_error_count",
			Value:     1,
			Type:      types.MetricCounter,
			Component: "api",
			Tags:      tags,
		})
	}
}

// RecordSystemMetrics samples the Go runtime and records one gauge per
// dimension. If a previous sampling pass is still running the call is a
// no-op, so a slow store cannot stack up overlapping passes.
func (i *Ingestor) RecordSystemMetrics(ctx context.Context, tenantID string) {
	if !i.collecting.CompareAndSwap(false, true) {
		slog.Debug("ingest: system sampling already in progress, skipping")
		return
	}
	defer i.collecting.Store(false)

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	samples := []*types.Metric{
		{Name: "go_goroutines", Value: float64(runtime.NumGoroutine()), Type: types.MetricGauge, Component: "runtime"},
		{Name: "go_heap_alloc_bytes", Value: float64(ms.HeapAlloc), Type: types.MetricGauge, Unit: "bytes", Component: "runtime"},
		{Name: "go_heap_objects", Value: float64(ms.HeapObjects), Type: types.MetricGauge, Component: "runtime"},
		{Name: "go_gc_cycles", Value: float64(ms.NumGC), Type: types.MetricCounter, Component: "runtime"},
	}
	for _, m := range samples {
		i.RecordMetric(ctx, tenantID, m)
	}
}
