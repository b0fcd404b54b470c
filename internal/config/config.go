// Package config manages the NetWarden application configuration.
// It handles loading, validating, and providing access to configuration
// settings from YAML files. It includes defaults for all settings and
// implements thread-safe access to configuration values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port            int      `yaml:"port"`
		Host            string   `yaml:"host"`
		AllowedOrigins  []string `yaml:"allowedOrigins"`
		ReadTimeout     int      `yaml:"readTimeout"`
		WriteTimeout    int      `yaml:"writeTimeout"`
		ShutdownTimeout int      `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Monitor struct {
		Enabled             bool   `yaml:"enabled"`
		TickInterval        string `yaml:"tickInterval"`
		ProbeTimeout        string `yaml:"probeTimeout"`
		MaxConcurrentProbes int    `yaml:"maxConcurrentProbes"`
		StopTimeout         string `yaml:"stopTimeout"`
	} `yaml:"monitor"`

	Guardrails struct {
		ConfirmThreshold string   `yaml:"confirmThreshold"`
		PendingTTL       string   `yaml:"pendingTtl"`
		BlockedCommands  []string `yaml:"blockedCommands"`
	} `yaml:"guardrails"`

	Database struct {
		Path            string `yaml:"path"`
		JournalMode     string `yaml:"journalMode"`
		SynchronousMode string `yaml:"synchronousMode"`
	} `yaml:"database"`

	Notifications struct {
		WebhookURLs  []string `yaml:"webhookUrls"`
		ShoutrrrURLs []string `yaml:"shoutrrrUrls"`
	} `yaml:"notifications"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	path string
	mu   sync.RWMutex
}

var (
	instance *Config
	once     sync.Once
)

// GetConfig returns the singleton configuration instance
func GetConfig() *Config {
	once.Do(func() {
		instance = &Config{}
		setDefaults(instance)
	})
	return instance
}

// New returns an independent Config populated with defaults. Tests use
// this to avoid sharing the singleton.
func New() *Config {
	c := &Config{}
	setDefaults(c)
	return c
}

// LoadConfig loads configuration from a YAML file
func (c *Config) LoadConfig(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Save path for potential reloading
	c.path = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("configuration file does not exist: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse configuration file: %w", err)
	}

	if dir := filepath.Dir(c.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info().Str("path", path).Msg("Configuration loaded successfully")
	return nil
}

// Reload reloads the configuration from the file
func (c *Config) Reload() error {
	if c.path == "" {
		return errors.New("configuration was not loaded from a file")
	}
	return c.LoadConfig(c.path)
}

// SaveConfig saves the current configuration to a file
func (c *Config) SaveConfig(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	return nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Monitor.TickInterval != "" {
		if _, err := time.ParseDuration(c.Monitor.TickInterval); err != nil {
			return fmt.Errorf("invalid monitor tick interval: %s", c.Monitor.TickInterval)
		}
	}

	if c.Monitor.ProbeTimeout != "" {
		if _, err := time.ParseDuration(c.Monitor.ProbeTimeout); err != nil {
			return fmt.Errorf("invalid probe timeout: %s", c.Monitor.ProbeTimeout)
		}
	}

	if c.Monitor.MaxConcurrentProbes <= 0 {
		return fmt.Errorf("invalid max concurrent probes: %d", c.Monitor.MaxConcurrentProbes)
	}

	switch c.Guardrails.ConfirmThreshold {
	case "info", "low", "medium", "high", "critical":
	default:
		return fmt.Errorf("invalid confirm threshold: %s", c.Guardrails.ConfirmThreshold)
	}

	if c.Guardrails.PendingTTL != "" {
		ttl, err := time.ParseDuration(c.Guardrails.PendingTTL)
		if err != nil || ttl <= 0 {
			return fmt.Errorf("invalid pending action ttl: %s", c.Guardrails.PendingTTL)
		}
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	return nil
}

// GetTickInterval returns the scheduler tick interval as a parsed duration
func (c *Config) GetTickInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, err := time.ParseDuration(c.Monitor.TickInterval)
	if err != nil {
		return time.Second
	}
	return d
}

// GetProbeTimeout returns the probe timeout as a parsed duration
func (c *Config) GetProbeTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, err := time.ParseDuration(c.Monitor.ProbeTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// GetStopTimeout returns the scheduler stop drain timeout
func (c *Config) GetStopTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, err := time.ParseDuration(c.Monitor.StopTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetPendingTTL returns the pending-action time-to-live
func (c *Config) GetPendingTTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, err := time.ParseDuration(c.Guardrails.PendingTTL)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// setDefaults initializes the configuration with default values
func setDefaults(c *Config) {
	// Server defaults
	c.Server.Port = 8080
	c.Server.Host = "127.0.0.1"
	c.Server.AllowedOrigins = []string{"*"}
	c.Server.ReadTimeout = 30
	c.Server.WriteTimeout = 30
	c.Server.ShutdownTimeout = 10

	// Monitor defaults
	c.Monitor.Enabled = true
	c.Monitor.TickInterval = "1s"
	c.Monitor.ProbeTimeout = "5s"
	c.Monitor.MaxConcurrentProbes = 16
	c.Monitor.StopTimeout = "10s"

	// Guardrails defaults: anything medium and above needs confirmation
	c.Guardrails.ConfirmThreshold = "medium"
	c.Guardrails.PendingTTL = "5m"
	c.Guardrails.BlockedCommands = []string{
		"format flash",
		"erase nvram",
		"erase startup",
		"delete running-config",
		"crypto key zeroize",
		"rm -rf /",
	}

	// Database defaults
	c.Database.Path = "./data/netwarden.db"
	c.Database.JournalMode = "WAL"
	c.Database.SynchronousMode = "NORMAL"

	// Logging defaults
	c.Logging.Level = "info"
	c.Logging.Format = "json"
}
