package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wegroup/pulse/internal/store"
	"github.com/wegroup/pulse/pkg/types"
)

// Cache holds the active alert rules in memory. It is loaded once at startup
// and refreshed explicitly (Refresh) or periodically (Run) so rule edits reach
// evaluation without a process restart. When a refresh fails the cache keeps
// serving its last good snapshot.
type Cache struct {
	store store.Store

	mu        sync.RWMutex
	rules     []*types.AlertRule
	refreshed time.Time
}

// NewCache creates an empty Cache reading from st. Call Refresh to load.
func NewCache(st store.Store) *Cache {
	return &Cache{store: st}
}

// Refresh replaces the cached snapshot with the store's current set of active
// rules. On error the previous snapshot stays in place.
func (c *Cache) Refresh(ctx context.Context) error {
	rules, err := c.store.ListActiveRules(ctx)
	if err != nil {
		slog.Error("alert: rule refresh failed, keeping previous snapshot", "err", err)
		return err
	}
	c.mu.Lock()
	c.rules = rules
	c.refreshed = time.Now()
	c.mu.Unlock()
	slog.Info("alert: rule cache refreshed", "rules", len(rules))
	return nil
}

// Rules returns the current snapshot. The returned slice must not be
// modified; rule firing state is updated through MarkTriggered.
func (c *Cache) Rules() []*types.AlertRule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rules
}

// Len returns the number of cached rules.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rules)
}

// CooldownElapsed reports whether rule may fire at now. A rule that has never
// triggered always passes.
func (c *Cache) CooldownElapsed(rule *types.AlertRule, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if rule.LastTriggeredAt.IsZero() {
		return true
	}
	return now.Sub(rule.LastTriggeredAt) > rule.Cooldown
}

// MarkTriggered records a firing on the cached rule and persists it. A
// persistence failure is logged; the in-memory state still advances so the
// cooldown window holds for this process.
func (c *Cache) MarkTriggered(ctx context.Context, rule *types.AlertRule, now time.Time) {
	c.mu.Lock()
	rule.LastTriggeredAt = now
	rule.TriggerCount++
	c.mu.Unlock()

	if err := c.store.MarkRuleTriggered(ctx, rule.ID, now); err != nil {
		slog.Error("alert: persist rule trigger", "rule", rule.ID, "err", err)
	}
}

// Run refreshes the cache every interval until ctx is cancelled. An interval
// of zero disables periodic refresh, preserving the load-once behavior.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = c.Refresh(ctx) // already logged
		}
	}
}
