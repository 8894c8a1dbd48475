package config

import (
	"fmt"
	"regexp"

	"companion/internal/conversation"
	"companion/internal/pipeline"
	"companion/internal/triage"
)

// TriageConfig tunes the per-turn pipeline. Zero values fall back to the
// pipeline defaults.
type TriageConfig struct {
	// Volatility tracker window (N samples kept)
	VolatilityWindow int `yaml:"volatility_window"`
	// Trailing samples a monotonic trend needs (k, floored at 3)
	TrendWindow int `yaml:"trend_window"`
	// Minimum score change across the trend window
	MaterialDelta int `yaml:"material_delta"`
	// Turns before the same follow-up question may be asked again
	QuestionCooldownTurns int `yaml:"question_cooldown_turns"`
	// Region used until one is detected in the conversation (ISO code)
	DefaultRegion string `yaml:"default_region"`
	// Messages are truncated to this many runes before classification
	MaxMessageRunes int `yaml:"max_message_runes"`
}

var regionCode = regexp.MustCompile(`^[A-Z]{2}$`)

// DefaultTriageConfig returns the stock tuning.
func DefaultTriageConfig() TriageConfig {
	p := conversation.DefaultVolatilityPolicy()
	return TriageConfig{
		VolatilityWindow:      p.Window,
		TrendWindow:           p.TrendWindow,
		MaterialDelta:         p.MaterialDelta,
		QuestionCooldownTurns: conversation.DefaultQuestionCooldown,
		MaxMessageRunes:       triage.DefaultMaxMessageRunes,
	}
}

func (t TriageConfig) validate() error {
	switch {
	case t.VolatilityWindow < 0:
		return fmt.Errorf("triage.volatility_window must not be negative (got %d)", t.VolatilityWindow)
	case t.TrendWindow < 0:
		return fmt.Errorf("triage.trend_window must not be negative (got %d)", t.TrendWindow)
	case t.VolatilityWindow > 0 && t.TrendWindow > t.VolatilityWindow:
		return fmt.Errorf("triage.trend_window (%d) exceeds volatility_window (%d)", t.TrendWindow, t.VolatilityWindow)
	case t.MaterialDelta < 0:
		return fmt.Errorf("triage.material_delta must not be negative (got %d)", t.MaterialDelta)
	case t.QuestionCooldownTurns < 0:
		return fmt.Errorf("triage.question_cooldown_turns must not be negative (got %d)", t.QuestionCooldownTurns)
	case t.MaxMessageRunes < 0:
		return fmt.Errorf("triage.max_message_runes must not be negative (got %d)", t.MaxMessageRunes)
	case t.DefaultRegion != "" && !regionCode.MatchString(t.DefaultRegion):
		return fmt.Errorf("triage.default_region must be a two-letter upper-case code (got %q)", t.DefaultRegion)
	}
	return nil
}

// PipelineSettings converts the triage section into pipeline settings.
func (c *Config) PipelineSettings() pipeline.Settings {
	t := c.Triage
	return pipeline.Settings{
		Volatility: conversation.VolatilityPolicy{
			Window:        t.VolatilityWindow,
			TrendWindow:   t.TrendWindow,
			MaterialDelta: t.MaterialDelta,
		},
		QuestionCooldown: t.QuestionCooldownTurns,
		DefaultRegion:    t.DefaultRegion,
		MaxMessageRunes:  t.MaxMessageRunes,
	}
}
