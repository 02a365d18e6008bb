package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wegroup/pulse/pkg/types"
)

// recordingDispatcher captures the order events reach the dispatch step and
// can be told to fail every attempt.
type recordingDispatcher struct {
	mu          sync.Mutex
	events      []*types.Event
	retryCounts []int // RetryCount as seen at dispatch time
	fail        bool
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, ev *types.Event) error {
	d.mu.Lock()
	d.events = append(d.events, ev)
	d.retryCounts = append(d.retryCounts, ev.RetryCount)
	d.mu.Unlock()
	if d.fail {
		return errors.New("dispatch down")
	}
	return nil
}

func (d *recordingDispatcher) order() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.events))
	for i, ev := range d.events {
		out[i] = string(ev.Priority)
	}
	return out
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

func TestPublish_PriorityOrdering(t *testing.T) {
	d := &recordingDispatcher{}
	b := New(d, Options{})

	for _, p := range []types.Priority{
		types.PriorityLow, types.PriorityCritical, types.PriorityMedium, types.PriorityHigh,
	} {
		b.Publish("order.test", "test", "t1", nil, p)
	}

	b.drainOnce(context.Background())

	want := []string{"critical", "high", "medium", "low"}
	got := d.order()
	if len(got) != len(want) {
		t.Fatalf("processed %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPublish_InvalidPriorityDefaultsToMedium(t *testing.T) {
	d := &recordingDispatcher{}
	b := New(d, Options{})

	b.Publish("x", "test", "t1", nil, types.Priority("urgent"))
	b.drainOnce(context.Background())

	if got := d.order(); len(got) != 1 || got[0] != "medium" {
		t.Fatalf("priority: got %v, want [medium]", got)
	}
}

func TestSubscribe_HandlerIsolation(t *testing.T) {
	b := New(&recordingDispatcher{}, Options{})

	var second atomic.Int64
	b.Subscribe("iso.test", func(ctx context.Context, ev *types.Event) error {
		return errors.New("boom")
	})
	b.Subscribe("iso.test", func(ctx context.Context, ev *types.Event) error {
		second.Add(1)
		return nil
	})

	b.Publish("iso.test", "test", "t1", nil, types.PriorityMedium)
	b.drainOnce(context.Background())

	if got := second.Load(); got != 1 {
		t.Errorf("second handler ran %d times, want 1", got)
	}
	if depth := b.QueueDepth(); depth != 0 {
		t.Errorf("queue depth after handler error: got %d, want 0 (handler errors never reschedule)", depth)
	}
	if processed, _, _ := b.Stats(); processed != 1 {
		t.Errorf("processed: got %d, want 1", processed)
	}
}

func TestSubscribe_HandlerPanicIsolated(t *testing.T) {
	b := New(nil, Options{})

	var second atomic.Int64
	b.Subscribe("panic.test", func(ctx context.Context, ev *types.Event) error {
		panic("handler exploded")
	})
	b.Subscribe("panic.test", func(ctx context.Context, ev *types.Event) error {
		second.Add(1)
		return nil
	})

	b.Publish("panic.test", "test", "t1", nil, types.PriorityHigh)
	b.drainOnce(context.Background())

	if got := second.Load(); got != 1 {
		t.Errorf("second handler ran %d times, want 1", got)
	}
}

// waitForDepth polls until the queue holds want events or the deadline passes.
func waitForDepth(t *testing.T, b *Bus, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.QueueDepth() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("queue depth never reached %d (currently %d)", want, b.QueueDepth())
}

func TestRetryBackoff_DropsAfterThirdRetry(t *testing.T) {
	d := &recordingDispatcher{fail: true}
	b := New(d, Options{RetryUnit: 2 * time.Millisecond})

	b.Publish("retry.test", "test", "t1", nil, types.PriorityMedium)
	ctx := context.Background()

	// Initial attempt plus three retries, each re-entering the queue after
	// 2^n * unit.
	for attempt := 1; attempt <= 3; attempt++ {
		b.drainOnce(ctx)
		if got := d.count(); got != attempt {
			t.Fatalf("after drain %d: %d dispatch attempts, want %d", attempt, got, attempt)
		}
		waitForDepth(t, b, 1)

		depth := b.QueueDepth()
		if depth != 1 {
			t.Fatalf("retry %d not rescheduled: depth %d", attempt, depth)
		}
	}

	// Third retry: fails again and the event is dropped for good.
	b.drainOnce(ctx)
	if got := d.count(); got != 4 {
		t.Fatalf("total attempts: got %d, want 4", got)
	}

	rc := d.retryCounts[len(d.retryCounts)-1]
	if rc != 3 {
		t.Errorf("final retry count: got %d, want 3", rc)
	}

	// No further reschedule.
	time.Sleep(50 * time.Millisecond)
	if depth := b.QueueDepth(); depth != 0 {
		t.Errorf("queue depth after drop: got %d, want 0", depth)
	}
	if _, _, dropped := b.Stats(); dropped != 1 {
		t.Errorf("dropped: got %d, want 1", dropped)
	}
}

func TestRetryBackoff_CountsAscend(t *testing.T) {
	d := &recordingDispatcher{fail: true}
	b := New(d, Options{RetryUnit: 2 * time.Millisecond})

	b.Publish("retry.count", "test", "t1", nil, types.PriorityMedium)
	ctx := context.Background()

	wantCounts := []int{0, 1, 2, 3}
	for i := range wantCounts {
		b.drainOnce(ctx)
		if got := d.retryCounts[i]; got != wantCounts[i] {
			t.Errorf("attempt %d: retry count got %d, want %d", i, got, wantCounts[i])
		}
		if i < len(wantCounts)-1 {
			waitForDepth(t, b, 1)
		}
	}
}

func TestPublish_ShedsWhenFull(t *testing.T) {
	b := New(nil, Options{QueueSize: 2})

	b.Publish("full", "test", "t1", nil, types.PriorityLow)
	b.Publish("full", "test", "t1", nil, types.PriorityLow)
	id := b.Publish("full", "test", "t1", nil, types.PriorityCritical)

	if id == "" {
		t.Error("Publish must return an event ID even when shedding")
	}
	if depth := b.QueueDepth(); depth != 2 {
		t.Errorf("queue depth: got %d, want 2", depth)
	}
	if _, shed, _ := b.Stats(); shed != 1 {
		t.Errorf("shed: got %d, want 1", shed)
	}
}

func TestRun_DrainsOnTick(t *testing.T) {
	d := &recordingDispatcher{}
	b := New(d, Options{Tick: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Publish("tick.test", "test", "t1", nil, types.PriorityMedium)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d.count() == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("event was not processed by the drain loop (attempts: %d)", d.count())
}
