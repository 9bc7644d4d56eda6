package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr         string          `yaml:"listen_addr" env:"AUTOPAY_LISTEN_ADDR"`
	DevToken           string          `yaml:"dev_token" env:"AUTOPAY_DEV_TOKEN"`
	Timezone           string          `yaml:"timezone" env:"AUTOPAY_TIMEZONE"`
	DB                 DBConfig        `yaml:"db"`
	AuditPath          string          `yaml:"audit_path" env:"AUTOPAY_AUDIT_PATH"`
	PolicyDir          string          `yaml:"policy_dir" env:"AUTOPAY_POLICY_DIR"`
	CustomPoliciesPath string          `yaml:"custom_policies_path" env:"AUTOPAY_CUSTOM_POLICIES_PATH"`
	Payments           PaymentsConfig  `yaml:"payments"`
	Agent              AgentConfig     `yaml:"agent"`
	Webhook            WebhookConfig   `yaml:"webhook"`
	Redis              RedisConfig     `yaml:"redis"`
	RateLimit          RateLimitConfig `yaml:"rate_limit"`
	Tenants            []TenantConfig  `yaml:"tenants"`
}

// DBConfig selects a SQL ledger. An empty driver keeps the JSON audit file.
type DBConfig struct {
	Driver string `yaml:"driver" env:"AUTOPAY_DB_DRIVER"`
	DSN    string `yaml:"dsn" env:"AUTOPAY_DB_DSN"`
}

type PaymentsConfig struct {
	MCPURL       string `yaml:"mcp_url" env:"LOCUS_MCP_URL"`
	TokenURL     string `yaml:"token_url" env:"LOCUS_TOKEN_URL"`
	ClientID     string `yaml:"client_id" env:"LOCUS_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"LOCUS_CLIENT_SECRET"`
	ServerName   string `yaml:"server_name" env:"LOCUS_SERVER_NAME"`
	Currency     string `yaml:"currency" env:"LOCUS_CURRENCY"`
	Chain        string `yaml:"chain" env:"LOCUS_CHAIN"`
	Network      string `yaml:"network" env:"LOCUS_NETWORK"`
}

type AgentConfig struct {
	ResponsesURL string        `yaml:"responses_url" env:"AUTOPAY_AGENT_URL"`
	APIKey       string        `yaml:"api_key" env:"OPENAI_API_KEY"`
	Model        string        `yaml:"model" env:"AUTOPAY_AGENT_MODEL"`
	Timeout      time.Duration `yaml:"timeout" env:"AUTOPAY_AGENT_TIMEOUT"`
}

// Enabled reports whether a model consult is configured.
func (a AgentConfig) Enabled() bool {
	return a.APIKey != "" && a.Model != ""
}

type WebhookConfig struct {
	Enabled  bool          `yaml:"enabled" env:"AUTOPAY_WEBHOOK_ENABLED"`
	URL      string        `yaml:"url" env:"AUTOPAY_WEBHOOK_URL"`
	Secret   string        `yaml:"secret" env:"AUTOPAY_WEBHOOK_SECRET"`
	Interval time.Duration `yaml:"interval" env:"AUTOPAY_WEBHOOK_INTERVAL"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"AUTOPAY_REDIS_ADDR"`
	Password string        `yaml:"password" env:"AUTOPAY_REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"AUTOPAY_REDIS_DB"`
	TTL      time.Duration `yaml:"ttl" env:"AUTOPAY_REDIS_TTL"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" env:"AUTOPAY_RATE_LIMIT_RPS"`
	Burst int     `yaml:"burst" env:"AUTOPAY_RATE_LIMIT_BURST"`
}

// TenantConfig carries per-organization limits and payment credentials.
type TenantConfig struct {
	ID             string            `yaml:"id"`
	APIToken       string            `yaml:"api_token"`
	DefaultContact string            `yaml:"default_contact"`
	PerTxnMax      *float64          `yaml:"per_txn_max"`
	DailyMax       *float64          `yaml:"daily_max"`
	Payments       TenantCredentials `yaml:"payments"`
}

// TenantCredentials point a tenant at its own payment provider account.
type TenantCredentials struct {
	MCPURL       string `yaml:"mcp_url"`
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays set variables onto cfg. A nil environ reads the process
// environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	return nil
}

// WithDefaults fills the values a bare deployment needs.
func (c Config) WithDefaults() Config {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.AuditPath == "" && c.DB.Driver == "" {
		c.AuditPath = "audit-log.json"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.Webhook.Interval <= 0 {
		c.Webhook.Interval = 5 * time.Second
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = time.Minute
	}
	if c.Agent.Timeout <= 0 {
		c.Agent.Timeout = 60 * time.Second
	}
	return c
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}

	switch c.DB.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("db.driver must be sqlite or postgres, got %q", c.DB.Driver)
	}
	if c.DB.Driver != "" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required when db.driver is set")
	}
	if c.DB.Driver == "" && c.AuditPath == "" {
		return fmt.Errorf("audit_path is required without db.driver")
	}

	if c.Webhook.Enabled {
		if c.Webhook.URL == "" || c.Webhook.Secret == "" {
			return fmt.Errorf("webhook.url and webhook.secret are required when webhook.enabled=true")
		}
		if c.DB.Driver == "" {
			return fmt.Errorf("webhook.enabled requires db.driver")
		}
	}

	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must be >= 0")
	}

	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}

	seen := make(map[string]bool, len(c.Tenants))
	tokens := map[string]bool{c.DevToken: c.DevToken != ""}
	for _, t := range c.Tenants {
		if t.ID == "" {
			return fmt.Errorf("tenants[].id is required")
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate tenant %q", t.ID)
		}
		seen[t.ID] = true
		if t.APIToken != "" {
			if tokens[t.APIToken] {
				return fmt.Errorf("tenant %q: api_token is already in use", t.ID)
			}
			tokens[t.APIToken] = true
		}
	}
	return nil
}
