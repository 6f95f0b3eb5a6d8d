package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/tournevent/cdek/pkg/cdek"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	WebhookPath string `envconfig:"WEBHOOK_PATH" default:"/webhook"`

	// CDEK
	Account     string        `envconfig:"CDEK_ACCOUNT"`
	Password    string        `envconfig:"CDEK_PASSWORD"`
	GrantType   string        `envconfig:"CDEK_GRANT_TYPE" default:"client_credentials"`
	BaseURL     string        `envconfig:"CDEK_BASE_URL"`
	Sandbox     bool          `envconfig:"CDEK_SANDBOX" default:"false"`
	Timeout     time.Duration `envconfig:"CDEK_TIMEOUT" default:"30s"`
	RetryMax    int           `envconfig:"CDEK_RETRY_MAX" default:"0"`
	TokenLeeway time.Duration `envconfig:"CDEK_TOKEN_LEEWAY" default:"0s"`

	// Redis token store
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// NATS webhook forwarding
	NATSURL           string `envconfig:"NATS_URL"`
	NATSSubjectPrefix string `envconfig:"NATS_SUBJECT_PREFIX" default:"cdek.webhook"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"cdek-bridge"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// APIBaseURL returns the configured base URL, falling back to the sandbox or
// production host.
func (c *Config) APIBaseURL() string {
	switch {
	case c.BaseURL != "":
		return c.BaseURL
	case c.Sandbox:
		return cdek.SandboxURL
	default:
		return cdek.ProductionURL
	}
}

// Client returns the CDEK client configuration. The token store is wired
// separately.
func (c *Config) Client() cdek.Config {
	return cdek.Config{
		Account:     c.Account,
		Password:    c.Password,
		GrantType:   c.GrantType,
		BaseURL:     c.APIBaseURL(),
		Timeout:     c.Timeout,
		RetryMax:    c.RetryMax,
		TokenLeeway: c.TokenLeeway,
	}
}

// Attributes returns OpenTelemetry resource attributes for this
// configuration. Service name and version are set by the tracer.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("cdek.base_url", c.APIBaseURL()),
		attribute.Bool("cdek.sandbox", c.Sandbox),
		attribute.Bool("redis.enabled", c.RedisAddr != ""),
		attribute.Bool("nats.enabled", c.NATSURL != ""),
	}
}
