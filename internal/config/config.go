// Package config loads the pool/queue tuning a caller's CLI glue passes into
// mine.NewClient/mine.NewQueue from a YAML file, the way
// griffinskudder-updater's internal/config loads its service config.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ClientConfig mirrors the constructor options mine.NewClient accepts for a
// single credential.
type ClientConfig struct {
	Token        string `yaml:"token"`
	SafetyMargin int    `yaml:"safety_margin"`
	ResumeBuffer int    `yaml:"resume_buffer_ms"`
}

// QueueConfig mirrors the constructor options mine.NewQueue accepts.
type QueueConfig struct {
	MaxPerRequest int `yaml:"max_per_request"`
	MaxTotal      int `yaml:"max_total"`
}

// LoggingConfig controls the default file-backed logger.
type LoggingConfig struct {
	Dir      string `yaml:"dir"`
	FileName string `yaml:"file_name"`
}

// Config is the top-level document a caller's CLI glue loads before building
// Clients and a Queue.
type Config struct {
	Clients []ClientConfig `yaml:"clients"`
	Queue   QueueConfig    `yaml:"queue"`
	Logging LoggingConfig  `yaml:"logging"`
}

// Default returns a Config with the same defaults mine.NewQueue applies on its
// own, except Queue.MaxTotal, which is left zero here and derived from
// MaxPerRequest by Load after parsing, so loading an empty/partial file still
// produces a usable configuration.
func Default() Config {
	return Config{
		Queue: QueueConfig{
			MaxPerRequest: 5,
		},
		Logging: LoggingConfig{
			Dir:      "./logs",
			FileName: "mine.log",
		},
	}
}

// Load reads and parses a YAML config file at path, applying defaults to any
// zero-valued fields, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}

	if cfg.Queue.MaxPerRequest == 0 {
		cfg.Queue.MaxPerRequest = 5
	}
	if cfg.Queue.MaxTotal == 0 {
		cfg.Queue.MaxTotal = cfg.Queue.MaxPerRequest * 1000
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "./logs"
	}
	if cfg.Logging.FileName == "" {
		cfg.Logging.FileName = "mine.log"
	}
	for i := range cfg.Clients {
		if cfg.Clients[i].SafetyMargin == 0 {
			cfg.Clients[i].SafetyMargin = 5
		}
		if cfg.Clients[i].ResumeBuffer == 0 {
			cfg.Clients[i].ResumeBuffer = 2000
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: invalid: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for values the core would otherwise reject or
// silently misbehave on.
func (c Config) Validate() error {
	if len(c.Clients) == 0 {
		return fmt.Errorf("config: at least one client credential is required")
	}
	for i, cl := range c.Clients {
		if cl.Token == "" {
			return fmt.Errorf("config: clients[%d]: token is required", i)
		}
	}
	if c.Queue.MaxPerRequest <= 0 {
		return fmt.Errorf("config: queue.max_per_request must be positive")
	}
	return nil
}
