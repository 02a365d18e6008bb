package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wegroup/pulse/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	p := writeConfig(t, `server: {}
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", cfg.Server.HTTPPort, DefaultHTTPPort)
	}
	if cfg.Bus.Tick != DefaultBusTick {
		t.Errorf("bus.tick: got %v, want %v", cfg.Bus.Tick, DefaultBusTick)
	}
	if cfg.Bus.QueueSize != DefaultQueueSize {
		t.Errorf("bus.queue_size: got %d, want %d", cfg.Bus.QueueSize, DefaultQueueSize)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("store.driver: got %q, want memory", cfg.Store.Driver)
	}
	if cfg.Store.MetricTTL != DefaultMetricTTL {
		t.Errorf("store.metric_ttl: got %v, want %v", cfg.Store.MetricTTL, DefaultMetricTTL)
	}
	if cfg.Webhooks.DefaultTimeout != DefaultWebhookTimeout {
		t.Errorf("webhooks.default_timeout: got %v, want %v", cfg.Webhooks.DefaultTimeout, DefaultWebhookTimeout)
	}
	if cfg.Sampler.Interval != DefaultSamplerInterval {
		t.Errorf("sampler.interval: got %v, want %v", cfg.Sampler.Interval, DefaultSamplerInterval)
	}
}

func TestLoad_Full(t *testing.T) {
	p := writeConfig(t, `server:
  http_port: 9091
  auth:
    mode: apikey
    key_env: MY_KEY
    header: x-pulse-key
bus:
  tick: 50ms
  queue_size: 256
store:
  driver: postgres
  dsn_env: PULSE_DSN
alerts:
  refresh_interval: 30s
  rules:
    - id: rule-latency
      name: High API Latency
      metric_query: api_response_time
      threshold: 500
      operator: GREATER_THAN
      severity: CRITICAL
      cooldown: 10m
webhooks:
  default_timeout: 5s
  endpoints:
    - id: ep-ops
      url: https://hooks.example.com/pulse
      events: [alert.triggered]
sampler:
  enabled: true
  interval: 30s
  targets:
    - id: gateway
      endpoint: http://gateway:9100/metrics
      families: [http_requests_total]
  cert_probes:
    - https://api.example.com
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 9091 {
		t.Errorf("http_port: got %d, want 9091", cfg.Server.HTTPPort)
	}
	if cfg.Server.Auth.EffectiveHeader() != "x-pulse-key" {
		t.Errorf("header: got %q, want x-pulse-key", cfg.Server.Auth.EffectiveHeader())
	}
	if cfg.Bus.Tick != 50*time.Millisecond {
		t.Errorf("bus.tick: got %v, want 50ms", cfg.Bus.Tick)
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("store.driver: got %q, want postgres", cfg.Store.Driver)
	}
	if len(cfg.Alerts.Rules) != 1 {
		t.Fatalf("rules: got %d, want 1", len(cfg.Alerts.Rules))
	}
	rule := cfg.Alerts.Rules[0].Rule()
	if rule.Operator != types.OpGreaterThan || rule.Severity != types.SeverityCritical {
		t.Errorf("rule: got op=%s sev=%s", rule.Operator, rule.Severity)
	}
	if rule.Cooldown != 10*time.Minute {
		t.Errorf("rule.cooldown: got %v, want 10m", rule.Cooldown)
	}
	if !rule.IsActive {
		t.Error("rule should default to active")
	}
	if len(cfg.Sampler.CertProbes) != 1 {
		t.Errorf("cert_probes: got %d, want 1", len(cfg.Sampler.CertProbes))
	}
}

func TestLoad_RuleDefaults(t *testing.T) {
	p := writeConfig(t, `alerts:
  rules:
    - id: r1
      name: R1
      metric_query: cpu_usage
      threshold: 90
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rule := cfg.Alerts.Rules[0].Rule()
	if rule.Operator != types.OpGreaterThan {
		t.Errorf("operator: got %s, want GREATER_THAN", rule.Operator)
	}
	if rule.Severity != types.SeverityWarning {
		t.Errorf("severity: got %s, want WARNING", rule.Severity)
	}
	if rule.Cooldown != DefaultRuleCooldown {
		t.Errorf("cooldown: got %v, want %v", rule.Cooldown, DefaultRuleCooldown)
	}
}

func TestLoad_SecretResolution(t *testing.T) {
	t.Setenv("TEST_HOOK_SECRET", "s3cret")
	p := writeConfig(t, `webhooks:
  endpoints:
    - id: ep1
      url: https://hooks.example.com/x
      secret_env: TEST_HOOK_SECRET
      events: [alert.triggered]
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ep := cfg.Webhooks.Endpoints[0].Endpoint(cfg.Webhooks.DefaultTimeout)
	if ep.Secret != "s3cret" {
		t.Errorf("secret: got %q, want s3cret", ep.Secret)
	}
	if ep.Timeout != DefaultWebhookTimeout {
		t.Errorf("timeout: got %v, want default %v", ep.Timeout, DefaultWebhookTimeout)
	}
}

func TestLoad_UnknownOperator(t *testing.T) {
	p := writeConfig(t, `alerts:
  rules:
    - id: r1
      name: R1
      metric_query: q
      operator: ABOVE
`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for unknown operator, got nil")
	}
}

func TestLoad_PostgresRequiresDSNEnv(t *testing.T) {
	p := writeConfig(t, `store:
  driver: postgres
`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for postgres driver without dsn_env, got nil")
	}
}

func TestLoad_EndpointRequiresEvents(t *testing.T) {
	p := writeConfig(t, `webhooks:
  endpoints:
    - id: ep1
      url: https://hooks.example.com/x
`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for endpoint without events, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
