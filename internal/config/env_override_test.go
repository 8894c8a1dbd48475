package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_Generator(t *testing.T) {
	t.Run("GEMINI_API_KEY sets provider if none", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GEMINI_API_KEY", "gm-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "gm-key", cfg.Generator.APIKey)
		assert.Equal(t, ProviderGemini, cfg.Generator.Provider)
	})

	t.Run("GEMINI_API_KEY sets provider if empty", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GEMINI_API_KEY", "gm-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, ProviderGemini, cfg.Generator.Provider)
	})

	t.Run("GEMINI_API_KEY does not override explicit provider", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GEMINI_API_KEY", "gm-key")

		cfg := &Config{Generator: GeneratorConfig{Provider: "custom"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gm-key", cfg.Generator.APIKey)
		assert.Equal(t, "custom", cfg.Generator.Provider)
	})

	t.Run("empty key leaves config alone", func(t *testing.T) {
		clearEnv(t)

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, DefaultConfig(), cfg)
	})
}

func TestEnvOverrides_Paths_And_Region(t *testing.T) {
	clearEnv(t)
	t.Setenv("COMPANION_DB", "/tmp/test.db")
	t.Setenv("COMPANION_CATALOG", "/etc/catalog.yaml")
	t.Setenv("COMPANION_REGION", " gb ")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "/tmp/test.db", cfg.Store.DatabasePath)
	assert.Equal(t, "/etc/catalog.yaml", cfg.Catalog.Path)
	assert.Equal(t, "GB", cfg.Triage.DefaultRegion)
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverrides_Debug(t *testing.T) {
	tests := []struct {
		value   string
		initial bool
		want    bool
	}{
		{"1", false, true},
		{"true", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
		{"", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("COMPANION_DEBUG", tt.value)

			cfg := DefaultConfig()
			cfg.Logging.DebugMode = tt.initial
			cfg.applyEnvOverrides()

			assert.Equal(t, tt.want, cfg.Logging.DebugMode)
		})
	}
}
