package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EndpointType represents the type of sink endpoint
type EndpointType string

const (
	EndpointTypeMongoDB EndpointType = "mongodb"
	EndpointTypeStdout  EndpointType = "stdout"
)

// MongoConfig holds source and target store settings. One connection string
// covers both; source and target may live in different databases.
type MongoConfig struct {
	URI              string `mapstructure:"uri" yaml:"uri"`
	Database         string `mapstructure:"database" yaml:"database"`
	SourceCollection string `mapstructure:"source_collection" yaml:"source_collection"`
	TargetDatabase   string `mapstructure:"target_database" yaml:"target_database"`
	TargetCollection string `mapstructure:"target_collection" yaml:"target_collection"`
}

// PipelineConfig holds streaming-mode batching settings.
type PipelineConfig struct {
	// MaxBatchSize forces a flush when the pending queue reaches it.
	MaxBatchSize int `mapstructure:"max_batch_size" yaml:"max_batch_size"`
	// FlushInterval is the target cadence of timer-driven flushes.
	FlushInterval time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`
	// Endpoint selects the sink: mongodb, or stdout for dry runs.
	Endpoint EndpointType `mapstructure:"endpoint" yaml:"endpoint"`
}

// ReindexConfig holds full-reindex settings. The reindex batch size is
// independent of the streaming one and typically smaller.
type ReindexConfig struct {
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
}

// CheckpointConfig holds resume-token persistence settings.
type CheckpointConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// HTTPConfig holds the health/metrics server settings.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// Config is the full service configuration.
type Config struct {
	Mongo      MongoConfig      `mapstructure:"mongo" yaml:"mongo"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline" yaml:"pipeline"`
	Reindex    ReindexConfig    `mapstructure:"reindex" yaml:"reindex"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint" yaml:"checkpoint"`
	HTTP       HTTPConfig       `mapstructure:"http" yaml:"http"`
}

// StreamID identifies this pipeline's feed subscription in checkpoint files
// and logs.
func (c *Config) StreamID() string {
	return fmt.Sprintf("%s.%s", c.Mongo.Database, c.Mongo.SourceCollection)
}

func setDefaults(v *viper.Viper) {
	// The empty default registers the key so AutomaticEnv can fill it.
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "people")
	v.SetDefault("mongo.source_collection", "persons")
	v.SetDefault("mongo.target_database", "")
	v.SetDefault("mongo.target_collection", "persons_anonymized")
	v.SetDefault("pipeline.max_batch_size", 50)
	v.SetDefault("pipeline.flush_interval", 5*time.Second)
	v.SetDefault("pipeline.endpoint", string(EndpointTypeMongoDB))
	v.SetDefault("reindex.batch_size", 100)
	v.SetDefault("checkpoint.path", "data/checkpoint.json")
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")
}

// Load reads configuration from an optional YAML file, overridden by
// MASKPIPE_* environment variables (e.g. MASKPIPE_MONGO_URI).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MASKPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		log.Info().Str("file", path).Msg("Loaded configuration file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if cfg.Mongo.TargetDatabase == "" {
		cfg.Mongo.TargetDatabase = cfg.Mongo.Database
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Mongo.URI == "" {
		return &ConfigurationError{Field: "mongo.uri"}
	}
	if c.Pipeline.MaxBatchSize <= 0 {
		return &ConfigurationError{Field: "pipeline.max_batch_size", Reason: "must be positive"}
	}
	if c.Pipeline.FlushInterval <= 0 {
		return &ConfigurationError{Field: "pipeline.flush_interval", Reason: "must be positive"}
	}
	if c.Reindex.BatchSize <= 0 {
		return &ConfigurationError{Field: "reindex.batch_size", Reason: "must be positive"}
	}
	switch c.Pipeline.Endpoint {
	case EndpointTypeMongoDB, EndpointTypeStdout:
	default:
		return &ConfigurationError{Field: "pipeline.endpoint", Reason: fmt.Sprintf("unknown endpoint type %q", c.Pipeline.Endpoint)}
	}
	return nil
}
