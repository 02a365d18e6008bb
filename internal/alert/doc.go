// Package alert implements the threshold alerting engine: an in-memory cache
// of active rules with explicit refresh, and an evaluator that matches metric
// points against rules, enforces per-rule cooldown, creates incidents, and
// publishes alert events back onto the bus.
package alert
