package api

import (
	"context"
	"fmt"
)

// DiagnosticHint is one human-readable insight about the pipeline's health,
// written in plain English for an operator who is not reading the code.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label (<= 5 words).
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

// computeDiagnostics derives operator-facing hints from live pipeline state.
func (h *Handler) computeDiagnostics(ctx context.Context) []DiagnosticHint {
	var hints []DiagnosticHint

	if err := h.store.Ping(ctx); err != nil {
		hints = append(hints, DiagnosticHint{
			Key:   "store_unreachable",
			Level: "critical",
			Title: "Store unreachable",
			Detail: fmt.Sprintf(
				"The persistence store is not answering (%v). Metrics and incidents "+
					"recorded right now are being lost. Check the database connection "+
					"and credentials; the pipeline keeps running on its last good state "+
					"but nothing new is durable until this recovers.", err),
		})
	}

	depth, capacity := h.bus.QueueDepth(), h.bus.Capacity()
	if capacity > 0 {
		fill := float64(depth) / float64(capacity) * 100
		if fill >= 80 {
			v := fill
			hints = append(hints, DiagnosticHint{
				Key:   "queue_filling",
				Level: "warning",
				Title: "Event queue filling up",
				Detail: fmt.Sprintf(
					"The event queue is %.0f%% full (%d of %d). If it fills completely, "+
						"newly published events will be shed. This usually means webhook "+
						"endpoints are slow or failing and events are piling up behind "+
						"their retries.", fill, depth, capacity),
				Value: &v,
			})
		}
	}

	processed, shed, dropped := h.bus.Stats()
	if shed > 0 {
		v := float64(shed)
		hints = append(hints, DiagnosticHint{
			Key:   "events_shed",
			Level: "warning",
			Title: "Events shed on overflow",
			Detail: fmt.Sprintf(
				"%d event(s) have been rejected because the queue was full. Those "+
					"events were never processed and no webhooks were sent for them. "+
					"Consider raising bus.queue_size or investigating what made the "+
					"queue back up.", shed),
			Value: &v,
		})
	}
	if dropped > 0 {
		v := float64(dropped)
		hints = append(hints, DiagnosticHint{
			Key:   "events_dropped",
			Level: "warning",
			Title: "Events dropped after retries",
			Detail: fmt.Sprintf(
				"%d event(s) exhausted their retry budget and were discarded. "+
					"Each of these failed webhook delivery four times. Check the "+
					"delivery history of your endpoints for the failing receiver.", dropped),
			Value: &v,
		})
	}

	if len(h.rules.Rules()) == 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "no_rules",
			Level: "info",
			Title: "No alert rules",
			Detail: "No active alert rules are loaded, so incoming metrics are " +
				"stored but nothing will ever fire an alert. Add rules under " +
				"alerts.rules in the config file or insert them into the store.",
		})
	}

	if len(hints) == 0 {
		v := float64(processed)
		hints = append(hints, DiagnosticHint{
			Key:   "all_clear",
			Level: "ok",
			Title: "Pipeline healthy",
			Detail: fmt.Sprintf(
				"Store reachable, queue has headroom, and %d event(s) have been "+
					"processed since startup.", processed),
			Value: &v,
		})
	}

	return hints
}
