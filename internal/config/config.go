package config

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	DefaultPath        = "configs/config.yaml"
	DefaultMaxInFlight = 8
)

type Config struct {
	Kafka struct {
		Brokers []string `koanf:"brokers"`
		Topic   struct {
			Name       string `koanf:"name"`
			Partitions int    `koanf:"partitions"`
		} `koanf:"topic"`
		OutcomesTopic string `koanf:"outcomes_topic"`
		ConsumerGroup string `koanf:"consumer_group"`
		Retry         struct {
			Max     int `koanf:"max"`
			Backoff int `koanf:"backoff"`
		} `koanf:"retry"`
	} `koanf:"kafka"`
	Opensearch struct {
		URLs               []string `koanf:"urls"`
		Username           string   `koanf:"username"`
		Password           string   `koanf:"password"`
		InsecureSkipVerify bool     `koanf:"insecure_skip_verify"`
		MaxRetries         int      `koanf:"max_retries"`
		MaxInFlight        int      `koanf:"max_in_flight"`
		Index              struct {
			Name          string `koanf:"name"`
			BuffSize      int    `koanf:"buff_size"`
			FlushInterval int    `koanf:"flush_interval"`
		} `koanf:"index"`
	} `koanf:"opensearch"`
	Batch struct {
		Size      int `koanf:"size"`
		TimeoutMs int `koanf:"timeout_ms"`
	} `koanf:"batch"`
	Log struct {
		Level       string `koanf:"level"`
		Development bool   `koanf:"development"`
	} `koanf:"log"`
}

// Load reads the yaml file at path and fills in defaults for anything
// left unset.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if len(c.Opensearch.URLs) == 0 {
		c.Opensearch.URLs = []string{"http://localhost:9200"}
	}
	if c.Opensearch.MaxInFlight <= 0 {
		c.Opensearch.MaxInFlight = DefaultMaxInFlight
	}
	if c.Opensearch.Index.Name == "" {
		c.Opensearch.Index.Name = "test"
	}
	if c.Opensearch.Index.BuffSize <= 0 {
		c.Opensearch.Index.BuffSize = 100
	}
	if c.Opensearch.Index.FlushInterval <= 0 {
		c.Opensearch.Index.FlushInterval = 5
	}
	if c.Batch.Size <= 0 {
		c.Batch.Size = 5
	}
	if c.Batch.TimeoutMs <= 0 {
		c.Batch.TimeoutMs = 10000
	}
	if c.Kafka.ConsumerGroup == "" {
		c.Kafka.ConsumerGroup = "docbatch"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	if c.Opensearch.MaxRetries < 0 {
		return fmt.Errorf("opensearch.max_retries must not be negative")
	}
	if c.Kafka.Retry.Max < 0 || c.Kafka.Retry.Backoff < 0 {
		return fmt.Errorf("kafka.retry values must not be negative")
	}
	return nil
}

func (c *Config) BatchTimeout() time.Duration {
	return time.Duration(c.Batch.TimeoutMs) * time.Millisecond
}

func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Opensearch.Index.FlushInterval) * time.Second
}
