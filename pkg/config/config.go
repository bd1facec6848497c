package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures the full runtime configuration for the bridge process.
// Downstream service credentials live in their own document (see
// internal/services); this covers only how the process itself runs.
type Config struct {
	App      AppConfig
	HTTP     HTTPConfig
	Store    StoreConfig
	Services ServicesConfig
	Kafka    KafkaConfig
	Archive  ArchiveConfig
	Tracing  TracingConfig
}

type AppConfig struct {
	Name        string `env:"APP_NAME" envDefault:"flixbridge"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	Version     string `env:"APP_VERSION" envDefault:"0.1.0"`
	LogLevel    string `env:"APP_LOG_LEVEL" envDefault:"info"`
}

type HTTPConfig struct {
	Addr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	MaxBodyBytes int64         `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`
}

type StoreConfig struct {
	Path string `env:"EVENTLOG_PATH" envDefault:"./data/events"`
}

type ServicesConfig struct {
	Path string `env:"SERVICES_CONFIG_PATH" envDefault:"./config.json"`
}

type KafkaConfig struct {
	Enabled          bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	Brokers          []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	EventsTopic      string        `env:"KAFKA_EVENTS_TOPIC" envDefault:"flixbridge.events"`
	Retries          int           `env:"KAFKA_RETRIES" envDefault:"3"`
	CompressionCodec string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
	BatchSize        int           `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	BatchTimeout     time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"1s"`
}

type ArchiveConfig struct {
	Enabled   bool   `env:"ARCHIVE_ENABLED" envDefault:"false"`
	Provider  string `env:"ARCHIVE_PROVIDER" envDefault:"minio"`
	Endpoint  string `env:"ARCHIVE_ENDPOINT" envDefault:"localhost:9000"`
	Region    string `env:"ARCHIVE_REGION" envDefault:"us-east-1"`
	Bucket    string `env:"ARCHIVE_BUCKET" envDefault:"flixbridge-audit"`
	AccessKey string `env:"ARCHIVE_ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey string `env:"ARCHIVE_SECRET_KEY" envDefault:"minioadmin"`
	UseSSL    bool   `env:"ARCHIVE_USE_SSL" envDefault:"false"`
}

type TracingConfig struct {
	Endpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	Insecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio  float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
	ResourceAttr string  `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:"service.namespace=flixbridge"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Development reports whether the process runs in a development environment.
func (c *Config) Development() bool {
	return c.App.Environment == "development"
}
