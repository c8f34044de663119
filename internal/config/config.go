// internal/config/config.go
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"webhook-bridge/internal/delivery"
	"webhook-bridge/internal/model"
	"webhook-bridge/internal/render"
)

const envPrefix = "BRIDGE"

type Config struct {
	RabbitMQ struct {
		URL          string `yaml:"url" envconfig:"URL" validate:"required"`
		EventsQueue  string `yaml:"events_queue" envconfig:"EVENTS_QUEUE" validate:"required"`
		RepliesQueue string `yaml:"replies_queue" envconfig:"REPLIES_QUEUE" validate:"required"`
	} `yaml:"rabbitmq" envconfig:"RABBITMQ"`

	Database struct {
		Driver string `yaml:"driver" envconfig:"DRIVER" validate:"oneof=postgres sqlite"`
		URL    string `yaml:"url" envconfig:"URL" validate:"required"`
	} `yaml:"database" envconfig:"DATABASE"`

	Redis struct {
		URL      string        `yaml:"url" envconfig:"URL"`
		DedupTTL time.Duration `yaml:"dedup_ttl" envconfig:"DEDUP_TTL" validate:"gte=0"`
	} `yaml:"redis" envconfig:"REDIS"`

	Workers int `yaml:"workers" envconfig:"WORKERS" validate:"gte=1"`

	HTTP struct {
		Addr string `yaml:"addr" envconfig:"ADDR" validate:"required"`
	} `yaml:"http" envconfig:"HTTP"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret" envconfig:"JWT_SECRET"`
	} `yaml:"auth" envconfig:"AUTH"`

	Bot struct {
		UserID        string `yaml:"user_id" envconfig:"USER_ID" validate:"required"`
		CommandPrefix string `yaml:"command_prefix" envconfig:"COMMAND_PREFIX" validate:"required"`
	} `yaml:"bot" envconfig:"BOT"`

	Log struct {
		Level  string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=text json"`
	} `yaml:"log" envconfig:"LOG"`

	Webhook `yaml:",inline"`
}

// Webhook holds the forwarding policy. The keys sit at the top level of the file.
type Webhook struct {
	Timeout            int            `yaml:"webhook_timeout" envconfig:"WEBHOOK_TIMEOUT" validate:"gt=0"`
	MaxRetries         int            `yaml:"max_webhook_retries" envconfig:"MAX_WEBHOOK_RETRIES" validate:"gte=0,lte=16"`
	UserAgent          string         `yaml:"webhook_user_agent" envconfig:"WEBHOOK_USER_AGENT" validate:"required"`
	MessageTemplate    model.Template `yaml:"message_data_template" ignored:"true" validate:"required,min=1"`
	CustomFields       map[string]any `yaml:"custom_fields" ignored:"true"`
	ResponseTemplate   string         `yaml:"response_template" envconfig:"RESPONSE_TEMPLATE"`
	IncludeEmptyFields bool           `yaml:"include_empty_fields" envconfig:"INCLUDE_EMPTY_FIELDS"`
	BackoffUnit        time.Duration  `yaml:"backoff_unit" envconfig:"BACKOFF_UNIT" validate:"gt=0"`
}

var validate = validator.New()

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	cfg := &Config{}
	cfg.RabbitMQ.EventsQueue = "bridge_events"
	cfg.RabbitMQ.RepliesQueue = "bridge_replies"
	cfg.Database.Driver = "postgres"
	cfg.Redis.DedupTTL = 10 * time.Minute
	cfg.Workers = 4
	cfg.HTTP.Addr = ":8080"
	cfg.Bot.CommandPrefix = "!webhook"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Webhook = Webhook{
		Timeout:          30,
		MaxRetries:       3,
		UserAgent:        "Maubot-Webhook-Plugin/1.0",
		MessageTemplate:  render.DefaultTemplate(),
		CustomFields:     map[string]any{},
		ResponseTemplate: "🤖 **Webhook Response:** {response}",
		BackoffUnit:      time.Second,
	}
	return cfg
}

// LoadConfig reads the YAML file over the defaults, applies a .env file if present and
// BRIDGE_* environment overrides, then validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	// yaml merges into non-nil maps; these must replace the defaults instead.
	cfg.Webhook.MessageTemplate = nil
	cfg.Webhook.CustomFields = nil

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Webhook.MessageTemplate == nil {
		cfg.Webhook.MessageTemplate = render.DefaultTemplate()
	}
	if cfg.Webhook.CustomFields == nil {
		cfg.Webhook.CustomFields = map[string]any{}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Delivery converts the webhook keys into the delivery engine policy.
func (w Webhook) Delivery() delivery.Config {
	return delivery.Config{
		Timeout:          time.Duration(w.Timeout) * time.Second,
		MaxRetries:       w.MaxRetries,
		UserAgent:        w.UserAgent,
		ResponseTemplate: w.ResponseTemplate,
		BackoffUnit:      w.BackoffUnit,
	}
}

// NewLogger builds the process logger selected by log.level and log.format.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
