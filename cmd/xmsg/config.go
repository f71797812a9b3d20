package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/trickstertwo/xmsg/adapter/memory"
)

// Config is the YAML file read by --config.
type Config struct {
	Log   LogConfig   `yaml:"log"`
	Store StoreConfig `yaml:"store"`
	Bus   BusConfig   `yaml:"bus"`
}

type LogConfig struct {
	Console bool `yaml:"console"`
	Caller  bool `yaml:"caller"`
}

// StoreConfig selects a registered store and passes Options to its factory.
type StoreConfig struct {
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options"`
}

type BusConfig struct {
	MaxPending      int `yaml:"max_pending"`
	ObserverWorkers int `yaml:"observer_workers"`
	ObserverBuffer  int `yaml:"observer_buffer"`
}

// loadConfig reads path, expanding ${VAR} references. An empty path yields defaults.
func loadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Store.Name == "" {
		c.Store.Name = memory.StoreName
	}
	if c.Store.Options == nil {
		c.Store.Options = map[string]any{}
	}
}

func (c *Config) validate() error {
	if c.Bus.MaxPending < 0 {
		return fmt.Errorf("bus.max_pending must be >= 0, got %d", c.Bus.MaxPending)
	}
	if c.Bus.ObserverWorkers < 0 || c.Bus.ObserverBuffer < 0 {
		return fmt.Errorf("bus observer pool sizes must be >= 0")
	}
	return nil
}
