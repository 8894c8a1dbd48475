package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all companion configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Catalog source and hot reload
	Catalog CatalogConfig `yaml:"catalog"`

	// Pipeline tuning
	Triage TriageConfig `yaml:"triage"`

	// Conversation persistence
	Store StoreConfig `yaml:"store"`

	// Free-form response generation for turns that allow it
	Generator GeneratorConfig `yaml:"generator"`

	// Transcript replay
	Replay ReplayConfig `yaml:"replay"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// CatalogConfig selects the catalog file.
type CatalogConfig struct {
	// Path to a catalog YAML file. Empty uses the embedded default catalog.
	Path string `yaml:"path"`
	// Watch reloads the file when it changes (chat sessions only).
	Watch bool `yaml:"watch"`
}

// StoreConfig configures the SQLite conversation store.
type StoreConfig struct {
	// DatabasePath is relative to the data directory unless absolute.
	DatabasePath string `yaml:"database_path"`
}

// ReplayConfig configures transcript replay.
type ReplayConfig struct {
	// Workers bounds how many conversations replay at once. 0 = one per CPU.
	Workers int `yaml:"workers"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "companion",
		Version: "1.0.0",

		Catalog: CatalogConfig{},

		Triage: DefaultTriageConfig(),

		Store: StoreConfig{
			DatabasePath: "companion.db",
		},

		Generator: GeneratorConfig{
			Provider: ProviderNone,
			Model:    "gemini-2.5-flash",
			Timeout:  "20s",
		},

		Replay: ReplayConfig{
			Workers: 4,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("COMPANION_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if path := os.Getenv("COMPANION_CATALOG"); path != "" {
		c.Catalog.Path = path
	}
	if region := os.Getenv("COMPANION_REGION"); region != "" {
		c.Triage.DefaultRegion = strings.ToUpper(strings.TrimSpace(region))
	}
	if v := os.Getenv("COMPANION_DEBUG"); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			c.Logging.DebugMode = true
		case "0", "false", "no", "off":
			c.Logging.DebugMode = false
		}
	}

	// Generator API key
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Generator.APIKey = key
		if c.Generator.Provider == "" || c.Generator.Provider == ProviderNone {
			c.Generator.Provider = ProviderGemini
		}
	}
}

// DatabasePath resolves the store path against dataDir.
func (c *Config) DatabasePath(dataDir string) string {
	p := c.Store.DatabasePath
	if p == "" {
		p = DefaultConfig().Store.DatabasePath
	}
	if p == ":memory:" || filepath.IsAbs(p) || dataDir == "" {
		return p
	}
	return filepath.Join(dataDir, p)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var problems []string

	if err := c.Triage.validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if err := c.Generator.validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Replay.Workers < 0 {
		problems = append(problems, fmt.Sprintf("replay.workers must not be negative (got %d)", c.Replay.Workers))
	}
	if !isValidLevel(c.Logging.Level) {
		problems = append(problems, fmt.Sprintf("invalid logging.level: %s (valid: debug, info, warn, error)", c.Logging.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// parseDuration returns fallback for empty or malformed values.
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
