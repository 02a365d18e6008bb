package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wegroup/pulse/internal/metrics"
	"github.com/wegroup/pulse/internal/store"
	"github.com/wegroup/pulse/pkg/types"
)

const (
	// DefaultTimeout bounds a delivery when the endpoint has no timeout of
	// its own.
	DefaultTimeout = 30 * time.Second

	// maxResponseBody caps how much of an endpoint's response is stored on
	// the delivery record.
	maxResponseBody = 2048
)

// Canonical delivery headers.
const (
	HeaderEvent     = "X-WeGroup-Event"
	HeaderDelivery  = "X-WeGroup-Delivery"
	HeaderTimestamp = "X-WeGroup-Timestamp"
	HeaderSignature = "X-WeGroup-Signature"
)

// Dispatcher resolves the webhook endpoints interested in an event and
// performs one signed HTTP delivery per endpoint, concurrently.
type Dispatcher struct {
	store  store.Store
	client *http.Client
	now    func() time.Time // injectable for deterministic tests
}

// New creates a Dispatcher reading endpoints from st. The HTTP client carries
// no global timeout; each request is bounded per endpoint via its context.
func New(st store.Store) *Dispatcher {
	return &Dispatcher{
		store:  st,
		client: &http.Client{},
		now:    time.Now,
	}
}

// Dispatch delivers ev to every active endpoint of its tenant subscribed to
// its type. Deliveries run concurrently, so one endpoint's latency or failure
// never blocks another's, and individual delivery failures are terminal.
// Dispatch returns an error only for an infrastructure failure (the endpoint
// query), which the bus treats as a retryable event-processing failure.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *types.Event) error {
	eps, err := d.store.ListEndpoints(ctx, ev.TenantID, ev.Type)
	if err != nil {
		return fmt.Errorf("webhook: resolve endpoints for %q: %w", ev.Type, err)
	}
	if len(eps) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, ep := range eps {
		wg.Add(1)
		go func(ep *types.WebhookEndpoint) {
			defer wg.Done()
			d.deliver(ctx, ep, ev)
		}(ep)
	}
	wg.Wait()
	return nil
}

// deliver performs one delivery attempt against a single endpoint.
func (d *Dispatcher) deliver(ctx context.Context, ep *types.WebhookEndpoint, ev *types.Event) {
	deliveryID := uuid.NewString()

	payloadJSON, err := json.Marshal(ev.Payload)
	if err != nil {
		slog.Error("webhook: marshal payload", "event_id", ev.ID, "endpoint", ep.ID, "err", err)
		return
	}

	headers := map[string]string{
		"Content-Type":  "application/json",
		HeaderEvent:     ev.Type,
		HeaderDelivery:  deliveryID,
		HeaderTimestamp: ev.Timestamp.UTC().Format(time.RFC3339),
	}
	if ep.Secret != "" {
		headers[HeaderSignature] = Sign(ep.Secret, payloadJSON)
	}

	rec := &types.WebhookDelivery{
		ID:         deliveryID,
		EndpointID: ep.ID,
		EventType:  ev.Type,
		Payload:    ev.Payload,
		Headers:    headers,
		Status:     types.DeliveryPending,
		TenantID:   ev.TenantID,
	}
	if err := d.store.CreateDelivery(ctx, rec); err != nil {
		// Persistence trouble must not stop the delivery itself.
		slog.Error("webhook: create delivery record", "delivery_id", deliveryID, "err", err)
	}

	body, err := json.Marshal(map[string]any{
		"event":       ev.Type,
		"data":        ev.Payload,
		"timestamp":   ev.Timestamp.UTC().Format(time.RFC3339),
		"delivery_id": deliveryID,
	})
	if err != nil {
		slog.Error("webhook: marshal body", "delivery_id", deliveryID, "err", err)
		return
	}

	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	code, respBody, err := d.post(reqCtx, ep.URL, headers, body)
	elapsed := time.Since(start)

	rec.ResponseCode = code
	rec.ResponseBody = respBody
	rec.ResponseTime = elapsed
	rec.DeliveredAt = d.now()

	delivered := err == nil && code >= 200 && code < 300
	if delivered {
		rec.Status = types.DeliveryDelivered
	} else {
		rec.Status = types.DeliveryFailed
		if err != nil {
			rec.ResponseBody = err.Error()
		}
	}

	if ferr := d.store.FinalizeDelivery(ctx, rec); ferr != nil {
		slog.Error("webhook: finalize delivery record", "delivery_id", deliveryID, "err", ferr)
	}
	if serr := d.store.RecordEndpointResult(ctx, ep.ID, delivered, elapsed, rec.DeliveredAt); serr != nil {
		slog.Error("webhook: update endpoint stats", "endpoint", ep.ID, "err", serr)
	}

	metrics.WebhookDeliveries.WithLabelValues(string(rec.Status)).Inc()
	metrics.WebhookDeliveryDuration.Observe(elapsed.Seconds())

	if delivered {
		slog.Debug("webhook: delivered",
			"delivery_id", deliveryID,
			"endpoint", ep.ID,
			"event", ev.Type,
			"code", code,
			"elapsed", elapsed,
		)
	} else {
		slog.Warn("webhook: delivery failed",
			"delivery_id", deliveryID,
			"endpoint", ep.ID,
			"event", ev.Type,
			"code", code,
			"err", err,
		)
	}
}

// post sends the request and returns the status code and a truncated response
// body. A code of 0 means the request never produced a response.
func (d *Dispatcher) post(ctx context.Context, url string, headers map[string]string, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	return resp.StatusCode, string(b), nil
}

// Sign computes the delivery signature for a payload:
// "sha256=" + hex(HMAC-SHA256(secret, payload)).
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
