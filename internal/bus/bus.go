package bus

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wegroup/pulse/internal/metrics"
	"github.com/wegroup/pulse/pkg/types"
)

const (
	// DefaultTick is the drain loop period.
	DefaultTick = 100 * time.Millisecond

	// DefaultQueueSize bounds the pending queue. When the queue is full the
	// incoming event is shed: Publish logs the drop and returns the event ID
	// without enqueueing. Shedding the newcomer (rather than evicting a
	// queued event) keeps already-accepted work stable under overload.
	DefaultQueueSize = 1024

	// maxRetries is how many times a failed event is rescheduled before it
	// is dropped for good.
	maxRetries = 3
)

// Handler processes one event. Handlers are fire-and-forget: a returned error
// (or panic) is logged and never retried, and does not affect sibling
// handlers or webhook delivery for the same event.
type Handler func(ctx context.Context, ev *types.Event) error

// Dispatcher forwards a fully-handled event to externally registered webhook
// endpoints. A returned error marks the whole processing step as failed and
// triggers the bus retry path.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev *types.Event) error
}

// Options tune a Bus. The zero value selects all defaults.
type Options struct {
	Tick      time.Duration
	QueueSize int

	// RetryUnit scales the exponential backoff: a retry with count n is
	// rescheduled after 2^n * RetryUnit. Production uses the default of one
	// second (2s, 4s, 8s); tests shrink it to avoid sleeping.
	RetryUnit time.Duration
}

// Bus is the single-process event bus. Construct one per process with New and
// start its drain loop with Run; there are no package-level singletons.
type Bus struct {
	dispatcher Dispatcher
	tick       time.Duration
	capacity   int
	retryUnit  time.Duration
	now        func() time.Time

	mu    sync.Mutex
	queue []*types.Event

	hmu      sync.RWMutex
	handlers map[string][]Handler

	processed atomic.Int64
	shed      atomic.Int64
	dropped   atomic.Int64
}

// New creates a Bus that forwards processed events to d. A nil Dispatcher is
// valid: events are fanned out to subscribers only.
func New(d Dispatcher, opts Options) *Bus {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.RetryUnit <= 0 {
		opts.RetryUnit = time.Second
	}
	return &Bus{
		dispatcher: d,
		tick:       opts.Tick,
		capacity:   opts.QueueSize,
		retryUnit:  opts.RetryUnit,
		now:        time.Now,
		handlers:   make(map[string][]Handler),
	}
}

// Publish constructs an Event and places it on the pending queue, keeping the
// queue sorted by priority (critical > high > medium > low; equal priorities
// keep their relative order). It returns the new event's ID immediately and
// never fails on behalf of downstream processing: when the queue is full the
// event is shed and only a log line and counter record the loss.
func (b *Bus) Publish(evType, source, tenantID string, payload map[string]any, priority types.Priority) string {
	if !priority.Valid() {
		priority = types.PriorityMedium
	}
	ev := &types.Event{
		ID:        uuid.NewString(),
		Type:      evType,
		Source:    source,
		TenantID:  tenantID,
		Payload:   payload,
		Timestamp: b.now(),
		Priority:  priority,
	}
	if b.enqueue(ev) {
		metrics.EventsPublished.WithLabelValues(string(priority)).Inc()
	}
	return ev.ID
}

// Subscribe registers a handler for an event type. Multiple handlers per type
// are permitted and run independently.
func (b *Bus) Subscribe(evType string, h Handler) {
	b.hmu.Lock()
	b.handlers[evType] = append(b.handlers[evType], h)
	b.hmu.Unlock()
}

// Run starts the drain loop: every tick the entire current queue is processed
// in priority order. Run blocks until ctx is cancelled. A single goroutine
// owns all dequeueing, so drain passes can never overlap.
func (b *Bus) Run(ctx context.Context) {
	t := time.NewTicker(b.tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.drainOnce(ctx)
		}
	}
}

// QueueDepth returns the number of events currently pending.
func (b *Bus) QueueDepth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Capacity returns the configured queue bound.
func (b *Bus) Capacity() int { return b.capacity }

// Stats returns lifetime counters: processed, shed on overflow, and dropped
// after exhausting retries.
func (b *Bus) Stats() (processed, shed, dropped int64) {
	return b.processed.Load(), b.shed.Load(), b.dropped.Load()
}

func (b *Bus) enqueue(ev *types.Event) bool {
	b.mu.Lock()
	if len(b.queue) >= b.capacity {
		b.mu.Unlock()
		b.shed.Add(1)
		metrics.EventsShed.Inc()
		slog.Warn("bus: queue full, shedding event",
			"event_id", ev.ID,
			"type", ev.Type,
			"priority", ev.Priority,
			"capacity", b.capacity,
		)
		return false
	}
	b.queue = append(b.queue, ev)
	sort.SliceStable(b.queue, func(i, j int) bool {
		return b.queue[i].Priority.Rank() > b.queue[j].Priority.Rank()
	})
	metrics.QueueDepth.Set(float64(len(b.queue)))
	b.mu.Unlock()
	return true
}

// drainOnce takes everything currently queued and processes it in order.
// Events published while a drain is in flight land on the fresh queue and
// wait for the next tick.
func (b *Bus) drainOnce(ctx context.Context) {
	b.mu.Lock()
	batch := b.queue
	b.queue = nil
	metrics.QueueDepth.Set(0)
	b.mu.Unlock()

	for _, ev := range batch {
		b.process(ctx, ev)
	}
}

// process runs all subscribed handlers concurrently, then forwards the event
// to the webhook dispatcher. Handler failures are isolated and final;
// dispatcher failures fail the whole processing step and trigger a retry.
func (b *Bus) process(ctx context.Context, ev *types.Event) {
	b.hmu.RLock()
	hs := b.handlers[ev.Type]
	b.hmu.RUnlock()

	var wg sync.WaitGroup
	for _, h := range hs {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					metrics.HandlerErrors.WithLabelValues(ev.Type).Inc()
					slog.Error("bus: handler panicked", "event_id", ev.ID, "type", ev.Type, "panic", r)
				}
			}()
			if err := h(ctx, ev); err != nil {
				metrics.HandlerErrors.WithLabelValues(ev.Type).Inc()
				slog.Error("bus: handler failed", "event_id", ev.ID, "type", ev.Type, "err", err)
			}
		}(h)
	}
	wg.Wait()

	if b.dispatcher != nil {
		if err := b.dispatcher.Dispatch(ctx, ev); err != nil {
			b.scheduleRetry(ev, err)
			return
		}
	}
	b.processed.Add(1)
	metrics.EventsProcessed.Inc()
}

// scheduleRetry re-enqueues ev after 2^retryCount * retryUnit, or drops it
// once the retry budget is spent. Dropped events are accepted data loss;
// there is no dead-letter persistence.
func (b *Bus) scheduleRetry(ev *types.Event, cause error) {
	ev.RetryCount++
	if ev.RetryCount > maxRetries {
		b.dropped.Add(1)
		metrics.EventsDropped.Inc()
		slog.Error("bus: dropping event after max retries",
			"event_id", ev.ID,
			"type", ev.Type,
			"retries", maxRetries,
			"err", cause,
		)
		return
	}

	delay := time.Duration(1<<uint(ev.RetryCount)) * b.retryUnit
	metrics.EventRetries.Inc()
	slog.Warn("bus: event processing failed, retry scheduled",
		"event_id", ev.ID,
		"type", ev.Type,
		"retry", ev.RetryCount,
		"delay", delay,
		"err", cause,
	)
	time.AfterFunc(delay, func() { b.enqueue(ev) })
}
