package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/wegroup/pulse/internal/store"
	"github.com/wegroup/pulse/pkg/types"
)

const defaultIncidentLimit = 50

// EventBus is the slice of the bus the API publishes through.
type EventBus interface {
	Publish(evType, source, tenantID string, payload map[string]any, priority types.Priority) string
	QueueDepth() int
	Capacity() int
	Stats() (processed, shed, dropped int64)
}

// MetricRecorder is the slice of the ingestor the API records through.
type MetricRecorder interface {
	RecordMetric(ctx context.Context, tenantID string, m *types.Metric)
}

// RuleSource exposes the currently cached alert rules.
type RuleSource interface {
	Rules() []*types.AlertRule
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store store.Store
	bus   EventBus
	rec   MetricRecorder
	rules RuleSource
	mux   *http.ServeMux
}

// New creates a Handler wired to its collaborators and registers all routes.
func New(st store.Store, b EventBus, rec MetricRecorder, rules RuleSource) http.Handler {
	h := &Handler{store: st, bus: b, rec: rec, rules: rules, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/events", h.publishEvent)
	h.mux.HandleFunc("/api/v1/metrics", h.recordMetric)
	h.mux.HandleFunc("/api/v1/incidents", h.listIncidents)
	h.mux.HandleFunc("/api/v1/rules", h.listRules)
	h.mux.HandleFunc("/api/v1/endpoints", h.listEndpoints)
	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/diagnostics", h.diagnostics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// publishEvent handles POST /api/v1/events and places the event on the bus.
// Acceptance is decoupled from processing: a 202 means queued, not handled.
func (h *Handler) publishEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req publishEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if req.Type == "" {
		jsonErr(w, http.StatusBadRequest, "type is required")
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}

	id := h.bus.Publish(req.Type, req.Source, req.TenantID, req.Payload, req.Priority)
	jsonResp(w, http.StatusAccepted, publishEventResponse{EventID: id})
}

// recordMetric handles POST /api/v1/metrics.
func (h *Handler) recordMetric(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req recordMetricRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if req.Name == "" {
		jsonErr(w, http.StatusBadRequest, "name is required")
		return
	}

	m := &types.Metric{
		Name:      req.Name,
		Value:     req.Value,
		Type:      req.Type,
		Unit:      req.Unit,
		Component: req.Component,
		Tags:      req.Tags,
	}
	if m.Type == "" {
		m.Type = types.MetricGauge
	}
	if req.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, "timestamp must be RFC3339")
			return
		}
		m.Timestamp = ts
	}

	h.rec.RecordMetric(r.Context(), req.TenantID, m)
	w.WriteHeader(http.StatusAccepted)
}

// listIncidents handles GET /api/v1/incidents?tenant=&limit=.
func (h *Handler) listIncidents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := defaultIncidentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	incs, err := h.store.ListIncidents(r.Context(), r.URL.Query().Get("tenant"), limit)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "list incidents: "+err.Error())
		return
	}

	out := make([]incidentResponse, 0, len(incs))
	for _, inc := range incs {
		resp := incidentResponse{
			ID:          inc.ID,
			RuleID:      inc.RuleID,
			Title:       inc.Title,
			Description: inc.Description,
			Severity:    string(inc.Severity),
			MetricValue: inc.TriggerValue,
			Threshold:   inc.ThresholdValue,
			TenantID:    inc.TenantID,
			Status:      inc.Status,
			CreatedAt:   inc.CreatedAt.UTC().Format(time.RFC3339),
		}
		if c, ok := inc.MetricContext["component"].(string); ok {
			resp.Component = c
		}
		out = append(out, resp)
	}
	jsonResp(w, http.StatusOK, out)
}

// listRules handles GET /api/v1/rules and reads from the rule cache, not the
// store, so the response reflects exactly what the evaluator is enforcing.
func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rules := h.rules.Rules()
	out := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		resp := ruleResponse{
			ID:           rule.ID,
			Name:         rule.Name,
			MetricQuery:  rule.MetricQuery,
			Threshold:    rule.Threshold,
			Operator:     string(rule.Operator),
			Severity:     string(rule.Severity),
			Cooldown:     rule.Cooldown.String(),
			TenantID:     rule.TenantID,
			TriggerCount: rule.TriggerCount,
		}
		if !rule.LastTriggeredAt.IsZero() {
			resp.LastTriggeredAt = rule.LastTriggeredAt.UTC().Format(time.RFC3339)
		}
		out = append(out, resp)
	}
	jsonResp(w, http.StatusOK, out)
}

// listEndpoints handles GET /api/v1/endpoints?tenant=.
func (h *Handler) listEndpoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	eps, err := h.store.ListEndpoints(r.Context(), r.URL.Query().Get("tenant"), "")
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "list endpoints: "+err.Error())
		return
	}

	out := make([]endpointResponse, 0, len(eps))
	for _, ep := range eps {
		resp := endpointResponse{
			ID:              ep.ID,
			URL:             ep.URL,
			Events:          ep.Events,
			TenantID:        ep.TenantID,
			DeliveryCount:   ep.DeliveryCount,
			FailureCount:    ep.FailureCount,
			AvgResponseTime: ep.AvgResponseTime,
		}
		if !ep.LastDeliveryAt.IsZero() {
			resp.LastDeliveryAt = ep.LastDeliveryAt.UTC().Format(time.RFC3339)
		}
		if !ep.LastFailureAt.IsZero() {
			resp.LastFailureAt = ep.LastFailureAt.UTC().Format(time.RFC3339)
		}
		out = append(out, resp)
	}
	jsonResp(w, http.StatusOK, out)
}

// health handles GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := healthResponse{
		Status:     "ok",
		Store:      "ok",
		QueueDepth: h.bus.QueueDepth(),
		QueueCap:   h.bus.Capacity(),
		RuleCount:  len(h.rules.Rules()),
	}
	if err := h.store.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Store = "unreachable"
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	jsonResp(w, code, resp)
}

// diagnostics handles GET /api/v1/diagnostics.
func (h *Handler) diagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jsonResp(w, http.StatusOK, diagnosticsResponse{
		Hints:       h.computeDiagnostics(r.Context()),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
