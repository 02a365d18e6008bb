// Package metrics exposes Prometheus instrumentation for the pipeline itself.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_events_published_total",
		Help: "Total number of events accepted onto the pending queue, by priority.",
	}, []string{"priority"})

	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_events_processed_total",
		Help: "Total number of events fully processed by the drain loop.",
	})

	EventsShed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_events_shed_total",
		Help: "Total number of events dropped because the pending queue was full.",
	})

	EventRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_event_retries_total",
		Help: "Total number of event processing retries scheduled with backoff.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_events_dropped_total",
		Help: "Total number of events abandoned after exhausting all retries.",
	})

	HandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_handler_errors_total",
		Help: "Total number of subscriber handler failures, by event type.",
	}, []string{"event_type"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_queue_depth",
		Help: "Current number of events waiting on the pending queue.",
	})

	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_webhook_deliveries_total",
		Help: "Total number of finalized webhook deliveries, by outcome.",
	}, []string{"status"})

	WebhookDeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulse_webhook_delivery_duration_seconds",
		Help:    "Wall-clock latency of webhook delivery attempts.",
		Buckets: prometheus.DefBuckets,
	})

	MetricsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_metrics_ingested_total",
		Help: "Total number of metric points accepted by the ingestor.",
	})

	AlertsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_alerts_fired_total",
		Help: "Total number of alert rule firings, by severity.",
	}, []string{"severity"})
)
