// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Worker roles selected by MODE.
const (
	ModeConsumer = "consumer"
	ModeFiller   = "filler"
)

// Config holds all worker configuration parsed from environment variables.
type Config struct {
	Mode    string `env:"MODE,required"`
	NodeID  string `env:"NODE_ID,required"`
	NodeGPU string `env:"NODE_GPU,required"`

	RabbitMQHost      string `env:"RABBITMQ_HOST,required"`
	RabbitMQQueue     string `env:"RABBITMQ_QUEUE,required"`
	RabbitMQQueueSize int    `env:"RABBITMQ_QUEUE_SIZE,required"`
	RabbitMQUser      string `env:"RABBITMQ_DEFAULT_USER,required"`
	RabbitMQPass      string `env:"RABBITMQ_DEFAULT_PASS,required"`
	RabbitMQVHost     string `env:"RABBITMQ_DEFAULT_VHOST" envDefault:"/"`

	PostgresHost     string `env:"SUPABASE_POSTGRES_HOST,required"`
	PostgresPort     int    `env:"SUPABASE_POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"SUPABASE_POSTGRES_USER,required"`
	PostgresPassword string `env:"SUPABASE_POSTGRES_PASSWORD,required"`
	PostgresDB       string `env:"SUPABASE_POSTGRES_DB,required"`

	// Consumer-only collaborators; see Validate.
	SupabaseURL   string `env:"SUPABASE_URL"`
	SupabaseKey   string `env:"SUPABASE_KEY"`
	OpenAIKey     string `env:"OPENAI_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	GeneratorURL  string `env:"GENERATOR_URL" envDefault:"http://localhost:5000"`

	// JobDiscardThresholdMin is the queued-age ceiling in minutes; older jobs
	// are reaped instead of published.
	JobDiscardThresholdMin int    `env:"JOB_DISCARD_THRESHOLD" envDefault:"1440"`
	LoggingLevel           string `env:"LOGGING_LEVEL" envDefault:"info"`

	FillPollPeriod time.Duration `env:"FILL_POLL_PERIOD" envDefault:"10s"`
	PublishPause   time.Duration `env:"PUBLISH_PAUSE" envDefault:"2s"`
	ReconnectDelay time.Duration `env:"RECONNECT_DELAY" envDefault:"5s"`

	MetricsAddr    string `env:"METRICS_ADDR" envDefault:":9090"`
	PluginCacheDir string `env:"PLUGIN_CACHE_DIR" envDefault:"./lora_cache"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"imagegen-dispatch"`
}

// Load parses environment variables into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the cross-field rules env tags cannot express.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeConsumer, ModeFiller:
	default:
		return fmt.Errorf("op=config.Validate: MODE must be %q or %q, got %q", ModeConsumer, ModeFiller, c.Mode)
	}
	if c.RabbitMQQueueSize <= 0 {
		return fmt.Errorf("op=config.Validate: RABBITMQ_QUEUE_SIZE must be positive, got %d", c.RabbitMQQueueSize)
	}
	if c.JobDiscardThresholdMin <= 0 {
		return fmt.Errorf("op=config.Validate: JOB_DISCARD_THRESHOLD must be positive, got %d", c.JobDiscardThresholdMin)
	}
	if c.IsConsumer() {
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("op=config.Validate: SUPABASE_URL and SUPABASE_KEY are required in consumer mode")
		}
		if c.OpenAIKey == "" {
			return fmt.Errorf("op=config.Validate: OPENAI_KEY is required in consumer mode")
		}
	}
	return nil
}

// IsConsumer reports whether the worker runs the consumer role.
func (c Config) IsConsumer() bool { return c.Mode == ModeConsumer }

// IsFiller reports whether the worker runs the filler role.
func (c Config) IsFiller() bool { return c.Mode == ModeFiller }

// DiscardThreshold returns the TTL as a duration.
func (c Config) DiscardThreshold() time.Duration {
	return time.Duration(c.JobDiscardThresholdMin) * time.Minute
}

// PostgresDSN builds the pgx connection URL from the SUPABASE_POSTGRES_*
// parts. Credentials are URL-escaped.
func (c Config) PostgresDSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   c.PostgresDB,
	}
	return u.String()
}

// BrokerURL builds the AMQP connection URL. The vhost travels separately in
// the dial config, so the path stays empty here. RABBITMQ_HOST may carry an
// explicit port; 5672 is assumed otherwise.
func (c Config) BrokerURL() string {
	host := c.RabbitMQHost
	if !strings.Contains(host, ":") {
		host += ":5672"
	}
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.RabbitMQUser, c.RabbitMQPass),
		Host:   host,
	}
	return u.String()
}
