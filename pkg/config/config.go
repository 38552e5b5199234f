package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures the full runtime configuration for the tour pipeline.
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	Kafka     KafkaConfig
	Storage   StorageConfig
	Pipeline  PipelineConfig
	Webhook   WebhookConfig
	Tracing   TracingConfig
	Metrics   MetricsConfig
	Migration MigrationConfig
}

type AppConfig struct {
	Name        string `env:"APP_NAME" envDefault:"tourpipe"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	Version     string `env:"APP_VERSION" envDefault:"0.1.0"`
	LogLevel    string `env:"APP_LOG_LEVEL" envDefault:"info"`
}

type HTTPConfig struct {
	Addr          string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout   time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout  time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"6m"`
	IdleTimeout   time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	InvokeTimeout time.Duration `env:"HTTP_INVOKE_TIMEOUT" envDefault:"5m"`
	MaxBodyBytes  int64         `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`
}

type KafkaConfig struct {
	Brokers          []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	AlertTopic       string        `env:"KAFKA_ALERT_TOPIC"`
	EventsTopic      string        `env:"KAFKA_EVENTS_TOPIC"`
	EventsGroup      string        `env:"KAFKA_EVENTS_GROUP" envDefault:"tourpipe-ingestion"`
	Retries          int           `env:"KAFKA_RETRIES" envDefault:"3"`
	CompressionCodec string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
	BatchSize        int           `env:"KAFKA_BATCH_SIZE" envDefault:"1"`
	BatchTimeout     time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"100ms"`
}

type StorageConfig struct {
	Provider  string `env:"STORAGE_PROVIDER" envDefault:"minio"`
	Endpoint  string `env:"STORAGE_ENDPOINT" envDefault:"localhost:9000"`
	Region    string `env:"STORAGE_REGION" envDefault:"us-east-1"`
	Bucket    string `env:"STORAGE_BUCKET" envDefault:"tours"`
	AccessKey string `env:"STORAGE_ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey string `env:"STORAGE_SECRET_KEY" envDefault:"minioadmin"`
	UseSSL    bool   `env:"STORAGE_USE_SSL" envDefault:"false"`
}

// PipelineConfig holds the object layout and limits shared by every workflow.
type PipelineConfig struct {
	IncomingPrefix    string        `env:"PIPELINE_INCOMING_PREFIX" envDefault:"uploads/"`
	ToursPrefix       string        `env:"PIPELINE_TOURS_PREFIX" envDefault:"tours/"`
	ProcessedPrefix   string        `env:"PIPELINE_PROCESSED_PREFIX" envDefault:"processed/"`
	FailedPrefix      string        `env:"PIPELINE_FAILED_PREFIX" envDefault:"failed/"`
	ArchivePrefix     string        `env:"PIPELINE_ARCHIVE_PREFIX" envDefault:"archive/"`
	ArchiveExtension  string        `env:"PIPELINE_ARCHIVE_EXTENSION" envDefault:".zip"`
	NestedMarker      string        `env:"PIPELINE_NESTED_MARKER" envDefault:"Web.zip"`
	NestedRoot        string        `env:"PIPELINE_NESTED_ROOT" envDefault:"Web/"`
	PublicBasePath    string        `env:"PIPELINE_PUBLIC_BASE_PATH" envDefault:"/h3panos/"`
	TrackingScriptURL string        `env:"PIPELINE_TRACKING_SCRIPT_URL" envDefault:"/h3panos/tracking.js"`
	MetadataObject    string        `env:"PIPELINE_METADATA_OBJECT" envDefault:"tour-metadata.json"`
	MaxArchiveBytes   int64         `env:"PIPELINE_MAX_ARCHIVE_BYTES" envDefault:"2147483648"`
	MaxExtractedBytes int64         `env:"PIPELINE_MAX_EXTRACTED_BYTES" envDefault:"4294967296"`
	PublishWorkers    int           `env:"PIPELINE_PUBLISH_WORKERS" envDefault:"1"`
	DownloadAttempts  uint          `env:"PIPELINE_DOWNLOAD_ATTEMPTS" envDefault:"3"`
	RetryBackoff      time.Duration `env:"PIPELINE_RETRY_BACKOFF" envDefault:"500ms"`
}

type WebhookConfig struct {
	URL     string        `env:"WEBHOOK_URL"`
	Timeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"30s"`
}

type TracingConfig struct {
	Endpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio  float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
	ResourceAttr string  `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:"service.namespace=tourpipe"`
}

type MetricsConfig struct {
	Addr      string `env:"METRICS_ADDR" envDefault:":9102"`
	Namespace string `env:"METRICS_NAMESPACE" envDefault:"tourpipe"`
}

type MigrationConfig struct {
	LegacyPrefix string `env:"MIGRATION_LEGACY_PREFIX" envDefault:"legacy/"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPipeline returns the pipeline layout with every envDefault applied.
func DefaultPipeline() PipelineConfig {
	var p PipelineConfig
	// Only defaults are declared, so parsing an empty environment cannot fail.
	_ = env.ParseWithOptions(&p, env.Options{Environment: map[string]string{}})
	return p
}
