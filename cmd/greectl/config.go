package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Jc2k/greeclimate/pkg/gree"
)

// cliConfig holds the optional YAML configuration. Flags override
// anything loaded from the file.
type cliConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	BroadcastAddrs []string      `yaml:"broadcast_addrs"`
	Log            logConfig     `yaml:"log"`
}

type logConfig struct {
	Level string `yaml:"level"`
}

func defaultCLIConfig() *cliConfig {
	return &cliConfig{
		Port:    gree.DevicePort,
		Timeout: 2 * time.Second,
		Log:     logConfig{Level: "info"},
	}
}

// loadConfig returns defaults when path is empty, otherwise defaults
// overlaid with the file's values.
func loadConfig(path string) (*cliConfig, error) {
	cfg := defaultCLIConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
