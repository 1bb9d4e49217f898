// Package config handles messengerd configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/messengerd/config.yaml, /etc/messengerd/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "messengerd", "config.yaml"))
	}

	paths = append(paths, "/etc/messengerd/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all messengerd configuration.
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Resolver ResolverConfig `yaml:"resolver"`
	TimeAPI  TimeAPIConfig  `yaml:"time_api"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Reminder ReminderConfig `yaml:"reminder"`
	LogLevel string         `yaml:"log_level"`
}

// ListenConfig defines the webhook server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
	// VerifyToken, when set, must match the X-Verify-Token header on
	// inbound webhook posts. Empty disables the check (local testing).
	VerifyToken string `yaml:"verify_token"`
}

// GeminiConfig defines the answer provider settings.
type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`    // Default: gemini-2.0-flash
	BaseURL string `yaml:"base_url"` // Override for testing; empty = Google API
}

// ResolverConfig bounds the answer resolver's retry behavior.
type ResolverConfig struct {
	// Retries is the number of retries after the first attempt (default 2,
	// i.e. up to 3 attempts total).
	Retries int `yaml:"retries"`
	// AttemptTimeoutSec is the per-attempt timeout in seconds (default 10).
	AttemptTimeoutSec int `yaml:"attempt_timeout_sec"`
	// BackoffSec is the fixed delay between attempts in seconds (default 1).
	BackoffSec int `yaml:"backoff_sec"`
}

// TimeAPIConfig defines the external time source.
type TimeAPIConfig struct {
	// Timezone selects the zone reported by the time API (IANA name).
	Timezone string `yaml:"timezone"` // Default: Asia/Singapore
	// PrimaryURL and FallbackURL override the time endpoints for testing.
	// When empty, worldtimeapi.org and timeapi.io are used.
	PrimaryURL  string `yaml:"primary_url"`
	FallbackURL string `yaml:"fallback_url"`
}

// MQTTConfig defines the outbound delivery bridge. When Broker is empty
// deliveries are logged instead of published.
type MQTTConfig struct {
	Broker      string `yaml:"broker"` // e.g. mqtt://localhost:1883
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"` // Default: messengerd
	DeviceName  string `yaml:"device_name"`  // Default: messengerd
}

// ReminderConfig tunes the background reminder scheduler.
type ReminderConfig struct {
	// TickSec is the scheduler poll interval in seconds (default 60).
	TickSec int `yaml:"tick_sec"`
	// DutyMessage overrides the built-in Monday 07:30 reminder text.
	DutyMessage string `yaml:"duty_message"`
}

// Load reads configuration from a YAML file. Environment variables in
// the file ($VAR or ${VAR}) are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Gemini: GeminiConfig{Model: "gemini-2.0-flash"},
		Resolver: ResolverConfig{
			Retries:           2,
			AttemptTimeoutSec: 10,
			BackoffSec:        1,
		},
		TimeAPI: TimeAPIConfig{Timezone: "Asia/Singapore"},
		MQTT: MQTTConfig{
			TopicPrefix: "messengerd",
			DeviceName:  "messengerd",
		},
		Reminder: ReminderConfig{TickSec: 60},
	}
}

// Validate checks the configuration for values that would misbehave at
// runtime rather than failing loudly at startup.
func (c *Config) Validate() error {
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port out of range: %d", c.Listen.Port)
	}
	if c.Resolver.Retries < 0 {
		return fmt.Errorf("resolver.retries must not be negative: %d", c.Resolver.Retries)
	}
	if c.Resolver.AttemptTimeoutSec <= 0 {
		return fmt.Errorf("resolver.attempt_timeout_sec must be positive: %d", c.Resolver.AttemptTimeoutSec)
	}
	if c.Reminder.TickSec <= 0 {
		return fmt.Errorf("reminder.tick_sec must be positive: %d", c.Reminder.TickSec)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}
