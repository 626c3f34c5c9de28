// Package config loads the gateway service configuration from YAML with a
// small set of environment overrides for deploy-time secrets.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level gateway configuration.
type Config struct {
	ListenAddress string        `yaml:"listen"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	IdleTimeout   time.Duration `yaml:"idleTimeout"`
	Environment   string        `yaml:"environment"`

	DatabasePath string `yaml:"databasePath"`

	Auth          AuthConfig          `yaml:"auth"`
	CORS          CORSConfig          `yaml:"cors"`
	RateLimits    []RateLimitConfig   `yaml:"rateLimits"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
	Policies      PolicyConfig        `yaml:"policies"`
	Processors    ProcessorsConfig    `yaml:"processors"`
	Notifications NotificationConfig  `yaml:"notifications"`
	Billing       BillingConfig       `yaml:"billing"`
}

// AuthConfig mirrors the JWT middleware knobs.
type AuthConfig struct {
	Enabled        bool          `yaml:"enabled"`
	HMACSecret     string        `yaml:"hmacSecret"`
	Issuer         string        `yaml:"issuer"`
	Audience       string        `yaml:"audience"`
	ScopeClaim     string        `yaml:"scopeClaim"`
	OptionalPaths  []string      `yaml:"optionalPaths"`
	AllowAnonymous bool          `yaml:"allowAnonymous"`
	ClockSkew      time.Duration `yaml:"clockSkew"`
}

// CORSConfig controls cross-origin access for browser clients.
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled"`
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowedMethods   []string `yaml:"allowedMethods"`
	AllowedHeaders   []string `yaml:"allowedHeaders"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

// RateLimitConfig throttles one route group.
type RateLimitConfig struct {
	ID            string  `yaml:"id"`
	RatePerSecond float64 `yaml:"ratePerSecond"`
	Burst         int     `yaml:"burst"`
}

// ObservabilityConfig controls metrics and tracing.
type ObservabilityConfig struct {
	ServiceName   string `yaml:"serviceName"`
	MetricsPrefix string `yaml:"metricsPrefix"`
	Metrics       bool   `yaml:"metrics"`
	Tracing       bool   `yaml:"tracing"`
	LogRequests   bool   `yaml:"logRequests"`
	OTLPEndpoint  string `yaml:"otlpEndpoint"`
	OTLPInsecure  bool   `yaml:"otlpInsecure"`
}

// LoggingConfig controls the optional rotated log file.
type LoggingConfig struct {
	FilePath   string `yaml:"filePath"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// PolicyConfig points at the business policy files. Empty paths fall back to
// compiled-in defaults.
type PolicyConfig struct {
	LoyaltyPolicyPath    string `yaml:"loyaltyPolicyPath"`
	CommissionPolicyPath string `yaml:"commissionPolicyPath"`
	RewardCatalogPath    string `yaml:"rewardCatalogPath"`
}

// ProcessorsConfig configures the payment rails. Rails without credentials
// are not registered; the manual processor always remains as fallback.
type ProcessorsConfig struct {
	Stripe StripeConfig `yaml:"stripe"`
	PayPal PayPalConfig `yaml:"paypal"`
}

type StripeConfig struct {
	SecretKey string   `yaml:"secretKey"`
	BaseURL   string   `yaml:"baseURL"`
	Methods   []string `yaml:"methods"`
}

type PayPalConfig struct {
	ClientID     string   `yaml:"clientID"`
	ClientSecret string   `yaml:"clientSecret"`
	BaseURL      string   `yaml:"baseURL"`
	Methods      []string `yaml:"methods"`
}

// NotificationConfig sizes the delivery queue. With a webhook URL configured
// notifications leave the process as signed webhooks; otherwise they are
// logged.
type NotificationConfig struct {
	QueueCapacity int           `yaml:"queueCapacity"`
	HistoryLimit  int           `yaml:"historyLimit"`
	TTL           time.Duration `yaml:"ttl"`
	WebhookURL    string        `yaml:"webhookURL"`
	WebhookSecret string        `yaml:"webhookSecret"`
}

// BillingConfig controls the deferred-cancellation tick.
type BillingConfig struct {
	TickInterval time.Duration `yaml:"tickInterval"`
}

// Load reads the YAML file at path, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = ":8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "payward.db"
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = "payward-gateway"
	}
	if c.Observability.MetricsPrefix == "" {
		c.Observability.MetricsPrefix = "payward_gateway"
	}
	if c.Notifications.QueueCapacity <= 0 {
		c.Notifications.QueueCapacity = 1024
	}
	if c.Notifications.TTL <= 0 {
		c.Notifications.TTL = time.Hour
	}
	if c.Billing.TickInterval <= 0 {
		c.Billing.TickInterval = time.Hour
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PAYWARD_LISTEN"); v != "" {
		c.ListenAddress = v
	}
	if v := os.Getenv("PAYWARD_DATABASE"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("PAYWARD_JWT_SECRET"); v != "" {
		c.Auth.HMACSecret = v
	}
	if v := os.Getenv("PAYWARD_STRIPE_SECRET_KEY"); v != "" {
		c.Processors.Stripe.SecretKey = v
	}
	if v := os.Getenv("PAYWARD_PAYPAL_CLIENT_ID"); v != "" {
		c.Processors.PayPal.ClientID = v
	}
	if v := os.Getenv("PAYWARD_PAYPAL_CLIENT_SECRET"); v != "" {
		c.Processors.PayPal.ClientSecret = v
	}
	if v := os.Getenv("PAYWARD_OTLP_ENDPOINT"); v != "" {
		c.Observability.OTLPEndpoint = v
	}
	if v := os.Getenv("PAYWARD_WEBHOOK_SECRET"); v != "" {
		c.Notifications.WebhookSecret = v
	}
}

func (c *Config) validate() error {
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.HMACSecret) == "" {
		return fmt.Errorf("config: auth enabled without hmacSecret")
	}
	for _, limit := range c.RateLimits {
		if strings.TrimSpace(limit.ID) == "" {
			return fmt.Errorf("config: rate limit entry missing id")
		}
	}
	if strings.TrimSpace(c.Notifications.WebhookURL) != "" && strings.TrimSpace(c.Notifications.WebhookSecret) == "" {
		return fmt.Errorf("config: webhook url configured without secret")
	}
	return nil
}
