package config

import (
	"fmt"
	"time"
)

// Generator providers.
const (
	ProviderNone   = "none"
	ProviderGemini = "gemini"
)

// ValidProviders lists all supported generator providers.
var ValidProviders = []string{ProviderNone, ProviderGemini}

// GeneratorConfig configures the free-form generator used on turns whose
// template allows it. With provider "none" the rendered template is sent as is.
type GeneratorConfig struct {
	Provider string `yaml:"provider"` // none, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
}

// Enabled reports whether a model-backed generator is configured.
func (g GeneratorConfig) Enabled() bool {
	return g.Provider != "" && g.Provider != ProviderNone
}

// GetTimeout returns the generator timeout as a duration.
func (g GeneratorConfig) GetTimeout() time.Duration {
	return parseDuration(g.Timeout, 20*time.Second)
}

func (g GeneratorConfig) validate() error {
	if g.Provider == "" {
		return nil
	}
	valid := false
	for _, p := range ValidProviders {
		if g.Provider == p {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid generator provider: %s (valid: %v)", g.Provider, ValidProviders)
	}
	if g.Provider == ProviderGemini && g.APIKey == "" {
		return fmt.Errorf("generator provider gemini needs an API key (set GEMINI_API_KEY)")
	}
	return nil
}
