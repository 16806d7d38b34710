package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration, loaded from YAML.
type Config struct {
	Listen   string        `yaml:"listen"`    // HTTP listen address
	StoreDB  string        `yaml:"store_db"`  // SQLite path for the kv store
	Origin   string        `yaml:"origin"`    // release descriptor endpoint
	Mirrors  []string      `yaml:"mirrors"`   // ordered mirror base URLs
	Cooldown time.Duration `yaml:"cooldown"`  // version-check cooldown window
	LogLevel string        `yaml:"log_level"` // debug | info | warn | error
}

func (c *Config) defaults() {
	if c.Listen == "" {
		c.Listen = ":8090"
	}
	if c.StoreDB == "" {
		c.StoreDB = "db/tagsyringe.db"
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 5 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// loadConfig reads a YAML configuration file and applies defaults.
func loadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.defaults()

	if cfg.Origin == "" {
		return nil, fmt.Errorf("config: origin is required")
	}
	if len(cfg.Mirrors) == 0 {
		return nil, fmt.Errorf("config: at least one mirror is required")
	}
	return &cfg, nil
}
