// Package ioconfig loads configuration from files, environment and flags.
// It is an impure package; the configuration structs live in pkg/config.
package ioconfig

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openepi/sentinel/pkg/config"
)

// LoadResult contains the loaded configuration and where it came from.
type LoadResult struct {
	Config     *config.Config
	SourcePath string // config file used, empty when running on defaults
	Source     string // "file", "defaults" or "defaults+env"
}

// Load reads the process configuration. Precedence: flags > SENTINEL_*
// env vars > sentinel.yaml > defaults. An empty configPath searches
// ./sentinel.yaml; a missing default file is not an error.
func Load(configPath string) (*LoadResult, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix("SENTINEL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Defaults must be registered before reading so AutomaticEnv knows
	// which keys to check.
	defaults := config.New()
	v.SetDefault("database.url", defaults.Database.URL)
	v.SetDefault("database.host", defaults.Database.Host)
	v.SetDefault("database.port", defaults.Database.Port)
	v.SetDefault("database.user", defaults.Database.User)
	v.SetDefault("database.password", defaults.Database.Password)
	v.SetDefault("database.database", defaults.Database.Database)
	v.SetDefault("database.ssl_mode", defaults.Database.SSLMode)
	v.SetDefault("database.batch_size", defaults.Database.BatchSize)
	v.SetDefault("pipeline.buffer_size", defaults.Pipeline.BufferSize)
	v.SetDefault("pipeline.chunk_size", defaults.Pipeline.ChunkSize)
	v.SetDefault("pipeline.drain_interval_seconds", defaults.Pipeline.DrainIntervalSeconds)
	v.SetDefault("sources.initial", defaults.Sources.Initial)
	v.SetDefault("sources.persistent_database_url", defaults.Sources.PersistentURL)
	v.SetDefault("sources.stream", defaults.Sources.Stream)
	v.SetDefault("sources.s3_bucket", defaults.Sources.S3Bucket)
	v.SetDefault("sources.s3_prefix", defaults.Sources.S3Prefix)
	v.SetDefault("sources.s3_poll_seconds", defaults.Sources.S3PollSeconds)
	v.SetDefault("sources.sqs_queue_url", defaults.Sources.SQSQueueURL)
	v.SetDefault("sources.fake_interval_seconds", defaults.Sources.FakeIntervalSeconds)
	v.SetDefault("sources.fake_per_interval", defaults.Sources.FakePerInterval)
	v.SetDefault("messaging.url", defaults.Messaging.URL)
	v.SetDefault("messaging.topic_prefix", defaults.Messaging.TopicPrefix)
	v.SetDefault("messaging.sender", defaults.Messaging.Sender)
	v.SetDefault("messaging.silent", defaults.Messaging.Silent)
	v.SetDefault("messaging.start_date", defaults.Messaging.StartDate)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.destination", defaults.Log.Destination)
	v.SetDefault("country_config", defaults.CountryConfigFile)
	v.SetDefault("config_directory", defaults.ConfigDirectory)
	v.SetDefault("data_directory", defaults.DataDirectory)
	v.SetDefault("jobs_number", defaults.JobsNumber)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		if _, err := os.Stat("sentinel.yaml"); err == nil {
			v.SetConfigFile("sentinel.yaml")
		}
	}

	configFileRead := false
	usedConfigPath := ""
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if configPath != "" {
				return nil, NewLoadError(configPath, err)
			}
		} else if configPath != "" || v.ConfigFileUsed() != "" {
			return nil, NewLoadError(v.ConfigFileUsed(), err)
		}
	} else {
		configFileRead = true
		usedConfigPath = v.ConfigFileUsed()
	}

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, NewLoadError(usedConfigPath, err)
	}

	source := "defaults"
	if configFileRead {
		source = "file"
	} else if hasEnvVars() {
		source = "defaults+env"
	}

	return &LoadResult{
		Config:     &cfg,
		SourcePath: usedConfigPath,
		Source:     source,
	}, nil
}

func hasEnvVars() bool {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "SENTINEL_") {
			return true
		}
	}
	return false
}

// BindFlags overrides config values with flags the user set. Flags win
// over every other source.
func BindFlags(cmd *cobra.Command, cfg *config.Config) (*config.Config, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, NewLoadError("flags", err)
	}

	if v.IsSet("database-url") {
		cfg.Database.URL = v.GetString("database-url")
	}
	if v.IsSet("country-config") {
		cfg.CountryConfigFile = v.GetString("country-config")
	}
	if v.IsSet("config-dir") {
		cfg.ConfigDirectory = v.GetString("config-dir")
	}
	if v.IsSet("data-dir") {
		cfg.DataDirectory = v.GetString("data-dir")
	}
	if v.IsSet("jobs") {
		cfg.JobsNumber = v.GetInt("jobs")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
