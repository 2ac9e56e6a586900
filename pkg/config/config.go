// Package config provides configuration for the sentinel pipeline.
//
// This package has no I/O dependencies. Loading from file, environment and
// flags happens in internal/ioconfig; the structs here carry the loaded
// values and validate them.
//
// Precedence (highest to lowest): CLI flags > SENTINEL_* env vars >
// sentinel.yaml > built-in defaults.
package config

import (
	"fmt"
	"net/url"
	"runtime"
)

// Source names for initial and stream ingestion.
const (
	SourceAWSS3    = "AWS_S3"
	SourceAWSSQS   = "AWS_SQS"
	SourceLocalSQS = "LOCAL_SQS"
	SourceLocalCSV = "LOCAL_CSV"
	SourceFakeData = "FAKE_DATA"
	SourceAWSRDS   = "AWS_RDS"
	SourceLocalRDS = "LOCAL_RDS"
)

// Config is the complete process configuration.
type Config struct {
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	// Pipeline contains buffer and chunk settings.
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`

	// Sources selects and configures the record sources.
	Sources SourcesConfig `mapstructure:"sources" yaml:"sources"`

	// Messaging configures the alert notification facade.
	Messaging MessagingConfig `mapstructure:"messaging" yaml:"messaging"`

	Log LogConfig `mapstructure:"log" yaml:"log"`

	// CountryConfigFile points at the country YAML (forms, data types,
	// rules, links, locations).
	CountryConfigFile string `mapstructure:"country_config" yaml:"country_config"`

	// ConfigDirectory holds the catalogue, links and location files the
	// country config references by relative path.
	ConfigDirectory string `mapstructure:"config_directory" yaml:"config_directory"`

	// DataDirectory holds local CSV snapshots for the LOCAL_CSV source.
	DataDirectory string `mapstructure:"data_directory" yaml:"data_directory"`

	// JobsNumber is the number of concurrent source producers.
	JobsNumber int `mapstructure:"jobs_number" yaml:"jobs_number"`
}

// DatabaseConfig contains PostgreSQL connection parameters. URL, when set,
// wins over the discrete fields.
type DatabaseConfig struct {
	// URL is a complete postgres:// connection string (DATABASE_URL).
	URL string `mapstructure:"url" yaml:"url"`

	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`

	// SSLMode is one of disable, require, verify-ca, verify-full.
	SSLMode string `mapstructure:"ssl_mode" yaml:"ssl_mode"`

	// BatchSize caps rows per INSERT statement in the persistence
	// writer. Postgres allows 65535 parameters per query; the writer
	// additionally divides by the column count.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
}

// DSN returns the connection string.
func (d *DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User), url.QueryEscape(d.Password),
		d.Host, d.Port, d.Database, d.SSLMode)
}

// PipelineConfig tunes the ingestion buffer and chunking.
type PipelineConfig struct {
	// BufferSize bounds the ingestion buffer.
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size"`

	// ChunkSize caps records drained per pipeline task.
	ChunkSize int `mapstructure:"chunk_size" yaml:"chunk_size"`

	// DrainIntervalSeconds is how often the consumer wakes to drain a
	// partially filled buffer.
	DrainIntervalSeconds int `mapstructure:"drain_interval_seconds" yaml:"drain_interval_seconds"`
}

// SourcesConfig selects the initial and stream sources.
type SourcesConfig struct {
	// Initial is one of AWS_S3, LOCAL_CSV, FAKE_DATA, AWS_RDS, LOCAL_RDS.
	Initial string `mapstructure:"initial" yaml:"initial"`

	// PersistentURL is the postgres:// connection string of a previous
	// deployment, read by the AWS_RDS and LOCAL_RDS initial sources
	// (PERSISTENT_DATABASE_URL).
	PersistentURL string `mapstructure:"persistent_database_url" yaml:"persistent_database_url"`

	// Stream is one of AWS_S3, AWS_SQS, LOCAL_SQS, FAKE_DATA.
	Stream string `mapstructure:"stream" yaml:"stream"`

	S3Bucket            string `mapstructure:"s3_bucket" yaml:"s3_bucket"`
	S3Prefix            string `mapstructure:"s3_prefix" yaml:"s3_prefix"`
	S3PollSeconds       int    `mapstructure:"s3_poll_seconds" yaml:"s3_poll_seconds"`
	SQSQueueURL         string `mapstructure:"sqs_queue_url" yaml:"sqs_queue_url"`
	FakeIntervalSeconds int    `mapstructure:"fake_interval_seconds" yaml:"fake_interval_seconds"`
	FakePerInterval     int    `mapstructure:"fake_per_interval" yaml:"fake_per_interval"`
}

// MessagingConfig configures the alert notification facade.
type MessagingConfig struct {
	// URL of the messaging facade; empty disables delivery.
	URL string `mapstructure:"url" yaml:"url"`

	// TopicPrefix scopes topics per deployment.
	TopicPrefix string `mapstructure:"topic_prefix" yaml:"topic_prefix"`

	// Sender is the from address.
	Sender string `mapstructure:"sender" yaml:"sender"`

	// Silent suppresses all outgoing notifications.
	Silent bool `mapstructure:"silent" yaml:"silent"`

	// StartDate suppresses notifications for alerts dated on or before
	// it (YYYY-MM-DD).
	StartDate string `mapstructure:"start_date" yaml:"start_date"`
}

// LogConfig provides typical settings for application logs.
type LogConfig struct {
	// Format can be 'json' or 'text'.
	Format string `mapstructure:"format" yaml:"format"`
	// Level of logging -- 'error', 'warn', 'info', 'debug'.
	Level string `mapstructure:"level" yaml:"level"`
	// Destination can be a log file path, STDERR or STDOUT.
	Destination string `mapstructure:"destination" yaml:"destination"`
}

// New creates a Config with sensible default values. The returned config
// is always valid.
func New() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:      "localhost",
			Port:      5432,
			User:      "postgres",
			Password:  "postgres",
			Database:  "sentinel",
			SSLMode:   "disable",
			BatchSize: 5000,
		},
		Pipeline: PipelineConfig{
			BufferSize:           1000,
			ChunkSize:            5000,
			DrainIntervalSeconds: 5,
		},
		Sources: SourcesConfig{
			Initial:             SourceFakeData,
			Stream:              SourceFakeData,
			S3PollSeconds:       60,
			FakeIntervalSeconds: 10,
			FakePerInterval:     20,
		},
		Log: LogConfig{
			Format:      "json",
			Level:       "info",
			Destination: "stderr",
		},
		ConfigDirectory: "config",
		DataDirectory:   "data",
		JobsNumber:      runtime.NumCPU(),
	}
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func (c *Config) Validate() error {
	if c.Pipeline.BufferSize < 1 {
		return ValidationError("pipeline.buffer_size must be positive")
	}
	if c.Pipeline.ChunkSize < 1 {
		return ValidationError("pipeline.chunk_size must be positive")
	}
	if c.Database.BatchSize < 1 {
		return ValidationError("database.batch_size must be positive")
	}
	switch c.Sources.Initial {
	case SourceAWSRDS, SourceLocalRDS:
		if c.Sources.PersistentURL == "" {
			return ValidationError(
				"sources.persistent_database_url is required for " +
					c.Sources.Initial)
		}
	case SourceAWSS3, SourceLocalCSV, SourceFakeData, "":
	default:
		return ValidationError("unknown initial source " + c.Sources.Initial)
	}
	switch c.Sources.Stream {
	case SourceAWSS3, SourceAWSSQS, SourceLocalSQS, SourceFakeData, "":
	default:
		return ValidationError("unknown stream source " + c.Sources.Stream)
	}
	if c.CountryConfigFile == "" {
		return ValidationError("country_config is required")
	}
	return nil
}
