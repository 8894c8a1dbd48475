package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"companion/internal/conversation"
	"companion/internal/triage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// UNIFIED CONFIG TESTS
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"COMPANION_DB", "COMPANION_CATALOG", "COMPANION_REGION", "COMPANION_DEBUG", "GEMINI_API_KEY"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "companion", cfg.Name)
	assert.Equal(t, ProviderNone, cfg.Generator.Provider)
	assert.False(t, cfg.Generator.Enabled())
	assert.Equal(t, "companion.db", cfg.Store.DatabasePath)
	assert.Equal(t, 8, cfg.Triage.VolatilityWindow)
	assert.Equal(t, 3, cfg.Triage.TrendWindow)
	assert.Equal(t, 15, cfg.Triage.MaterialDelta)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Catalog.Path = "/etc/companion/catalog.yaml"
	cfg.Triage.DefaultRegion = "GB"
	cfg.Triage.QuestionCooldownTurns = 5
	cfg.Logging.Categories = map[string]bool{"store": false}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("triage:\n  default_region: AU\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "AU", cfg.Triage.DefaultRegion)
	assert.Equal(t, 8, cfg.Triage.VolatilityWindow)
	assert.Equal(t, "companion.db", cfg.Store.DatabasePath)
}

func TestLoad_MalformedFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("triage: [not a map"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"gemini without key", func(c *Config) { c.Generator.Provider = ProviderGemini }, false},
		{"gemini with key", func(c *Config) { c.Generator.Provider = ProviderGemini; c.Generator.APIKey = "k" }, true},
		{"unknown provider", func(c *Config) { c.Generator.Provider = "oracle" }, false},
		{"negative window", func(c *Config) { c.Triage.VolatilityWindow = -1 }, false},
		{"trend wider than window", func(c *Config) { c.Triage.TrendWindow = 10 }, false},
		{"lower-case region", func(c *Config) { c.Triage.DefaultRegion = "gb" }, false},
		{"negative workers", func(c *Config) { c.Replay.Workers = -2 }, false},
		{"bad level", func(c *Config) { c.Logging.Level = "chatty" }, false},
		{"zero values use defaults", func(c *Config) { c.Triage = TriageConfig{} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestConfig_PipelineSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Triage.DefaultRegion = "CA"
	cfg.Triage.MaterialDelta = 20

	s := cfg.PipelineSettings()
	assert.Equal(t, conversation.VolatilityPolicy{Window: 8, TrendWindow: 3, MaterialDelta: 20}, s.Volatility)
	assert.Equal(t, conversation.DefaultQuestionCooldown, s.QuestionCooldown)
	assert.Equal(t, "CA", s.DefaultRegion)
	assert.Equal(t, triage.DefaultMaxMessageRunes, s.MaxMessageRunes)
}

func TestConfig_Helpers(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 20*time.Second, cfg.Generator.GetTimeout())
	cfg.Generator.Timeout = "bogus"
	assert.Equal(t, 20*time.Second, cfg.Generator.GetTimeout())
	cfg.Generator.Timeout = "5s"
	assert.Equal(t, 5*time.Second, cfg.Generator.GetTimeout())

	dataDir := filepath.Join("var", "companion")
	assert.Equal(t, filepath.Join(dataDir, "companion.db"), cfg.DatabasePath(dataDir))
	cfg.Store.DatabasePath = ":memory:"
	assert.Equal(t, ":memory:", cfg.DatabasePath(dataDir))
	abs := filepath.Join(t.TempDir(), "x.db")
	cfg.Store.DatabasePath = abs
	assert.Equal(t, abs, cfg.DatabasePath(dataDir))
}

func TestLoggingConfig(t *testing.T) {
	lc := LoggingConfig{Categories: map[string]bool{"store": false}}
	assert.False(t, lc.IsCategoryEnabled("session"), "debug mode off disables everything")

	lc.DebugMode = true
	assert.True(t, lc.IsCategoryEnabled("session"))
	assert.False(t, lc.IsCategoryEnabled("store"))

	lc.Format = "json"
	s := lc.Settings()
	assert.True(t, s.DebugMode)
	assert.True(t, s.JSONFormat)
	assert.Equal(t, map[string]bool{"store": false}, s.Categories)
}
