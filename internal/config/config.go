package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wegroup/pulse/pkg/types"
)

// Default values for the pulsed configuration.
const (
	DefaultHTTPPort        = 8080
	DefaultBusTick         = 100 * time.Millisecond
	DefaultQueueSize       = 1024
	DefaultMetricTTL       = 24 * time.Hour
	DefaultRefreshInterval = time.Minute
	DefaultWebhookTimeout  = 30 * time.Second
	DefaultSamplerInterval = 15 * time.Second
	DefaultSamplerTenant   = "system"
	DefaultRuleCooldown    = 15 * time.Minute
)

// Config is the root of the pulsed configuration file.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Bus      BusConfig      `yaml:"bus"`
	Store    StoreConfig    `yaml:"store"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
	Sampler  SamplerConfig  `yaml:"sampler"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, metrics endpoint, and WebSocket
	// hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures API client authentication.
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig controls client authentication for the HTTP API.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable holding the expected
	// API key. Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header the key is read from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// BusConfig tunes the event bus.
type BusConfig struct {
	// Tick is the drain loop period (default 100ms).
	Tick time.Duration `yaml:"tick"`

	// QueueSize bounds the pending queue; events published while the queue
	// is full are shed (default 1024).
	QueueSize int `yaml:"queue_size"`
}

// StoreConfig selects and configures the persistence driver.
type StoreConfig struct {
	// Driver is one of: memory | postgres.
	Driver string `yaml:"driver"`

	// DSNEnv is the name of the environment variable holding the postgres
	// connection string. Used when Driver == "postgres".
	DSNEnv string `yaml:"dsn_env"`

	// MetricTTL is how long the memory driver retains metric points
	// (default 24h; zero disables eviction).
	MetricTTL time.Duration `yaml:"metric_ttl"`
}

// DSN returns the postgres connection string resolved from the environment.
func (s StoreConfig) DSN() string {
	if s.DSNEnv == "" {
		return ""
	}
	return os.Getenv(s.DSNEnv)
}

// AlertsConfig holds the rule cache refresh interval and seed rules.
type AlertsConfig struct {
	// RefreshInterval is how often the rule cache re-reads the store.
	// Zero disables periodic refresh (rules then load once at startup and
	// on config reload only).
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// Rules are upserted into the store at startup and on config reload.
	// Rules created by admin tooling directly in the store are unaffected.
	Rules []RuleConfig `yaml:"rules"`
}

// RuleConfig defines one seeded threshold alert rule.
type RuleConfig struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	MetricQuery string         `yaml:"metric_query"`
	Threshold   float64        `yaml:"threshold"`
	Operator    types.Operator `yaml:"operator"`
	Severity    types.Severity `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration (default 15m).
	Cooldown time.Duration `yaml:"cooldown"`

	// TenantID scopes the rule to one tenant; empty means global.
	TenantID string `yaml:"tenant_id"`

	// Disabled excludes the rule from evaluation without deleting it.
	Disabled bool `yaml:"disabled"`
}

// Rule converts the config entry into the domain type, filling defaults.
func (r RuleConfig) Rule() *types.AlertRule {
	rule := &types.AlertRule{
		ID:          r.ID,
		Name:        r.Name,
		MetricQuery: r.MetricQuery,
		Threshold:   r.Threshold,
		Operator:    r.Operator,
		Severity:    r.Severity,
		Cooldown:    r.Cooldown,
		TenantID:    r.TenantID,
		IsActive:    !r.Disabled,
	}
	if rule.Operator == "" {
		rule.Operator = types.OpGreaterThan
	}
	if rule.Severity == "" {
		rule.Severity = types.SeverityWarning
	}
	if rule.Cooldown <= 0 {
		rule.Cooldown = DefaultRuleCooldown
	}
	return rule
}

// WebhooksConfig holds delivery defaults and seeded endpoints.
type WebhooksConfig struct {
	// DefaultTimeout bounds a delivery when an endpoint sets no timeout
	// of its own (default 30s).
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// Endpoints are upserted into the store at startup and on config reload.
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// EndpointConfig defines one seeded webhook endpoint.
type EndpointConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`

	// SecretEnv is the name of the environment variable holding the HMAC
	// signing secret; empty disables signing for this endpoint.
	SecretEnv string `yaml:"secret_env"`

	// Events is the set of event types delivered to this endpoint.
	Events []string `yaml:"events"`

	TenantID string        `yaml:"tenant_id"`
	Timeout  time.Duration `yaml:"timeout"`
	Disabled bool          `yaml:"disabled"`
}

// Secret returns the signing secret resolved from the environment.
func (e EndpointConfig) Secret() string {
	if e.SecretEnv == "" {
		return ""
	}
	return os.Getenv(e.SecretEnv)
}

// Endpoint converts the config entry into the domain type, applying the
// given default timeout.
func (e EndpointConfig) Endpoint(defaultTimeout time.Duration) *types.WebhookEndpoint {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &types.WebhookEndpoint{
		ID:       e.ID,
		URL:      e.URL,
		Secret:   e.Secret(),
		Events:   e.Events,
		TenantID: e.TenantID,
		IsActive: !e.Disabled,
		Timeout:  timeout,
	}
}

// SamplerConfig controls the periodic system/remote sampling loop.
type SamplerConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval is the sampling period (default 15s).
	Interval time.Duration `yaml:"interval"`

	// Tenant is the tenant ID runtime and probe samples are recorded under
	// (default "system").
	Tenant string `yaml:"tenant"`

	// Targets are Prometheus-format endpoints scraped each interval.
	Targets []TargetConfig `yaml:"targets"`

	// CertProbes are HTTPS URLs whose TLS certificate expiry is sampled
	// each interval as a tls_cert_days_left gauge.
	CertProbes []string `yaml:"cert_probes"`
}

// TargetConfig defines one scraped Prometheus exposition endpoint.
type TargetConfig struct {
	// ID names the target; it becomes the component of recorded points.
	ID string `yaml:"id"`

	// Endpoint is the /metrics URL to scrape.
	Endpoint string `yaml:"endpoint"`

	// Tenant overrides the sampler tenant for this target.
	Tenant string `yaml:"tenant"`

	// Families selects which metric families to record. Empty records none;
	// scraping everything a target exposes is never what you want.
	Families []string `yaml:"families"`
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
		},
		Bus: BusConfig{
			Tick:      DefaultBusTick,
			QueueSize: DefaultQueueSize,
		},
		Store: StoreConfig{
			Driver:    "memory",
			MetricTTL: DefaultMetricTTL,
		},
		Alerts: AlertsConfig{
			RefreshInterval: DefaultRefreshInterval,
		},
		Webhooks: WebhooksConfig{
			DefaultTimeout: DefaultWebhookTimeout,
		},
		Sampler: SamplerConfig{
			Interval: DefaultSamplerInterval,
			Tenant:   DefaultSamplerTenant,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	if cfg.Bus.Tick <= 0 {
		return fmt.Errorf("bus.tick must be positive")
	}
	if cfg.Bus.QueueSize <= 0 {
		return fmt.Errorf("bus.queue_size must be positive")
	}
	switch cfg.Store.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("store.driver %q unknown: want memory|postgres", cfg.Store.Driver)
	}
	if cfg.Store.Driver == "postgres" && cfg.Store.DSNEnv == "" {
		return fmt.Errorf("store.dsn_env is required with the postgres driver")
	}
	if cfg.Store.MetricTTL < 0 {
		return fmt.Errorf("store.metric_ttl must not be negative")
	}
	for i, r := range cfg.Alerts.Rules {
		if r.ID == "" || r.Name == "" || r.MetricQuery == "" {
			return fmt.Errorf("alerts.rules[%d]: id, name, and metric_query are required", i)
		}
		if op := r.Rule().Operator; !validOperator(op) {
			return fmt.Errorf("alerts.rules[%d]: operator %q unknown", i, op)
		}
		if sev := r.Rule().Severity; !validSeverity(sev) {
			return fmt.Errorf("alerts.rules[%d]: severity %q unknown", i, sev)
		}
	}
	for i, e := range cfg.Webhooks.Endpoints {
		if e.ID == "" || e.URL == "" {
			return fmt.Errorf("webhooks.endpoints[%d]: id and url are required", i)
		}
		if len(e.Events) == 0 {
			return fmt.Errorf("webhooks.endpoints[%d]: at least one event type is required", i)
		}
	}
	if cfg.Sampler.Enabled && cfg.Sampler.Interval <= 0 {
		return fmt.Errorf("sampler.interval must be positive")
	}
	for i, tg := range cfg.Sampler.Targets {
		if tg.ID == "" || tg.Endpoint == "" {
			return fmt.Errorf("sampler.targets[%d]: id and endpoint are required", i)
		}
	}
	return nil
}

func validOperator(op types.Operator) bool {
	switch op {
	case types.OpGreaterThan, types.OpLessThan, types.OpEquals, types.OpNotEquals,
		types.OpGreaterThanOrEqual, types.OpLessThanOrEqual:
		return true
	}
	return false
}

func validSeverity(s types.Severity) bool {
	switch s {
	case types.SeverityInfo, types.SeverityWarning, types.SeverityCritical:
		return true
	}
	return false
}
