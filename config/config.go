// Package config loads tuning parameters for the communication core from a
// YAML file and/or environment variables. Environment values take precedence
// over file values; both fall back to defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the communication core.
type Config struct {
	Protocol ProtocolConfig `yaml:"protocol"`
	Agent    AgentConfig    `yaml:"agent"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ProtocolConfig contains protocol tuning.
type ProtocolConfig struct {
	// QueueCapacity bounds the pending-message queue; 0 means unbounded.
	QueueCapacity int `yaml:"queueCapacity"`
}

// AgentConfig contains per-agent defaults.
type AgentConfig struct {
	// ReceiveBufferSize bounds each agent's unhandled-message buffer.
	ReceiveBufferSize int `yaml:"receiveBufferSize"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Protocol: ProtocolConfig{QueueCapacity: 0},
		Agent:    AgentConfig{ReceiveBufferSize: 128},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads configuration from a YAML file, starting from defaults and then
// applying environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadEnv builds configuration from defaults and environment variables only.
// A .env file in the working directory is honored when present.
func LoadEnv() *Config {
	// best effort: running without a .env file is the common case
	_ = godotenv.Load()
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// Save writes the configuration to a YAML file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Protocol.QueueCapacity = getEnvInt("AGENTCOMM_QUEUE_CAPACITY", c.Protocol.QueueCapacity)
	c.Agent.ReceiveBufferSize = getEnvInt("AGENTCOMM_RECEIVE_BUFFER_SIZE", c.Agent.ReceiveBufferSize)
	c.Logging.Level = getEnv("AGENTCOMM_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("AGENTCOMM_LOG_FORMAT", c.Logging.Format)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
