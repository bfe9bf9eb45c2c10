package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"server"`
	Postgres  PostgresConfig  `yaml:"postgres" envconfig:"postgres"`
	Redis     RedisConfig     `yaml:"redis" envconfig:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka" envconfig:"kafka"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq" envconfig:"rabbitmq"`
	RateLimit RateLimitConfig `yaml:"ratelimit" envconfig:"ratelimit"`
	Outbox    OutboxConfig    `yaml:"outbox" envconfig:"outbox"`
	Rebuild   RebuildConfig   `yaml:"rebuild" envconfig:"rebuild"`
	Log       LogConfig       `yaml:"log" envconfig:"log"`
}

type ServerConfig struct {
	Port           int    `yaml:"port" envconfig:"port"`
	InternalSecret string `yaml:"internal_secret" envconfig:"internal_secret"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn" envconfig:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"addr"`
	Password string `yaml:"password" envconfig:"password"`
	DB       int    `yaml:"db" envconfig:"db"`
}

// KafkaConfig configures agenda change notifications. An empty broker list
// disables publishing.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" envconfig:"brokers"`
	Topic   string   `yaml:"topic" envconfig:"topic"`
}

type RabbitMQConfig struct {
	URL      string   `yaml:"url" envconfig:"url"`
	Exchange string   `yaml:"exchange" envconfig:"exchange"`
	Queue    string   `yaml:"queue" envconfig:"queue"`
	Bindings []string `yaml:"bindings" envconfig:"bindings"`
	Prefetch int      `yaml:"prefetch" envconfig:"prefetch"`
	DLXName  string   `yaml:"dlx_name" envconfig:"dlx_name"`
	DLXQueue string   `yaml:"dlx_queue" envconfig:"dlx_queue"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps" envconfig:"rps"`
	Burst int `yaml:"burst" envconfig:"burst"`
}

type OutboxConfig struct {
	Batch       int           `yaml:"batch" envconfig:"batch"`
	Interval    time.Duration `yaml:"interval" envconfig:"interval"`
	MaxAttempts int           `yaml:"max_attempts" envconfig:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay" envconfig:"retry_delay"`
}

type RebuildConfig struct {
	BatchSize int           `yaml:"batch_size" envconfig:"batch_size"`
	LockTTL   time.Duration `yaml:"lock_ttl" envconfig:"lock_ttl"`
}

type LogConfig struct {
	Level string `yaml:"level" envconfig:"level"`
}

// EnvPrefix prefixes every environment override, e.g. AGENDA_POSTGRES_DSN.
const EnvPrefix = "AGENDA"

// Load reads the yaml file at path, then applies AGENDA_* environment
// overrides and defaults. A missing file is not an error when the
// environment provides everything required.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "agenda.item.changed"
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "agenda.exchange"
	}
	if c.RabbitMQ.Queue == "" {
		c.RabbitMQ.Queue = "agenda.materialize"
	}
	if len(c.RabbitMQ.Bindings) == 0 {
		c.RabbitMQ.Bindings = []string{"event.*", "tournament.*", "reservation.*", "booking.*", "soft_block.*", "hard_block.*", "match_slot.*"}
	}
	if c.RabbitMQ.Prefetch <= 0 {
		c.RabbitMQ.Prefetch = 8
	}
	if c.RateLimit.RPS <= 0 {
		c.RateLimit.RPS = 20
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 40
	}
	if c.Outbox.Batch <= 0 {
		c.Outbox.Batch = 5
	}
	if c.Outbox.Interval <= 0 {
		c.Outbox.Interval = time.Second
	}
	if c.Outbox.MaxAttempts <= 0 {
		c.Outbox.MaxAttempts = 5
	}
	if c.Outbox.RetryDelay <= 0 {
		c.Outbox.RetryDelay = 5 * time.Minute
	}
	if c.Rebuild.BatchSize <= 0 {
		c.Rebuild.BatchSize = 500
	}
	if c.Rebuild.LockTTL <= 0 {
		c.Rebuild.LockTTL = 30 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports settings that have no usable default.
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return errors.New("config: postgres.dsn is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	return nil
}
