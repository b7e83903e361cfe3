package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"80"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Shipment flow
	DefaultProvider string `envconfig:"DEFAULT_PROVIDER" default:"delivery-sim"`

	// Callback retry
	RetryMaxAttempts     int `envconfig:"RETRY_MAX_ATTEMPTS" default:"5"`
	RetryBackoffSeconds  int `envconfig:"RETRY_BACKOFF_SECONDS" default:"60"`
	RetryBatchSize       int `envconfig:"RETRY_BATCH_SIZE" default:"10"`
	RetryIntervalSeconds int `envconfig:"RETRY_INTERVAL_SECONDS" default:"30"`

	// Delivery simulator provider
	DeliverySimEnabled       bool   `envconfig:"DELIVERYSIM_ENABLED" default:"true"`
	DeliverySimBaseURL       string `envconfig:"DELIVERYSIM_BASE_URL" default:"http://localhost:8000"`
	DeliverySimAPIKey        string `envconfig:"DELIVERYSIM_API_KEY"`
	DeliverySimCallbackToken string `envconfig:"DELIVERYSIM_CALLBACK_TOKEN"`
	DeliverySimUseMock       bool   `envconfig:"DELIVERYSIM_USE_MOCK" default:"false"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"true"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"sendparcel"`
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

// RetryInterval returns the sweep interval as a duration.
func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalSeconds) * time.Second
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.String("default.provider", c.DefaultProvider),
		attribute.Bool("deliverysim.enabled", c.DeliverySimEnabled),
	}
}
