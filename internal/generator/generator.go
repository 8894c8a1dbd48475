// Package generator produces the free-form reply for turns whose template
// allows it. Every generated reply passes the same forbidden-phrase guard as
// the catalog templates; anything that fails falls back to the resolved
// template text.
package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"companion/internal/config"
	"companion/internal/conversation"
	"companion/internal/logging"
	"companion/internal/templates"
	"companion/internal/types"
	"companion/internal/usage"
)

// =============================================================================
// GENERATOR INTERFACE
// =============================================================================

// Brief is everything a generator may use to write one reply.
type Brief struct {
	ConversationID string                   `json:"conversationId"`
	TurnIndex      int                      `json:"turnIndex"`
	Message        string                   `json:"message"`
	Category       types.Category           `json:"category"`
	Tier           types.Tier               `json:"tier"`
	Mode           types.Mode               `json:"mode"`
	Facts          conversation.SimpleFacts `json:"facts"`
	Region         string                   `json:"region"`
	// Template is the resolved, guard-checked template text. It is the reply
	// whenever generation is unavailable or unsafe.
	Template string `json:"template"`
	// Forbidden lists the phrases a reply must never contain.
	Forbidden []string `json:"forbidden"`
}

// Generator writes a reply for a brief.
type Generator interface {
	Generate(ctx context.Context, b Brief) (string, error)
	// Name returns the generator name
	Name() string
}

// =============================================================================
// STATIC
// =============================================================================

// Static returns the template text unchanged.
type Static struct{}

// Generate implements Generator.
func (Static) Generate(_ context.Context, b Brief) (string, error) {
	return b.Template, nil
}

// Name implements Generator.
func (Static) Name() string { return "static" }

// =============================================================================
// GUARDED
// =============================================================================

// Fallback reasons reported by Guarded.
const (
	FallbackError     = "error"
	FallbackEmpty     = "empty"
	FallbackForbidden = "forbidden"
	FallbackMarkup    = "placeholder"
)

// Guarded wraps a generator and fails soft: an error, an empty reply, a
// leftover placeholder or a forbidden phrase yields the template text.
type Guarded struct {
	inner   Generator
	timeout time.Duration
	// OnFallback, if set, is called whenever the template text is used
	// instead of the generated reply.
	OnFallback func(b Brief, reason string)
}

// NewGuarded wraps inner. A positive timeout bounds each call.
func NewGuarded(inner Generator, timeout time.Duration) *Guarded {
	return &Guarded{inner: inner, timeout: timeout}
}

// Name implements Generator.
func (g *Guarded) Name() string { return "guarded(" + g.inner.Name() + ")" }

// Generate implements Generator. It never returns an error.
func (g *Guarded) Generate(ctx context.Context, b Brief) (string, error) {
	text, reason := g.generate(ctx, b)
	if t := usage.FromContext(ctx); t != nil {
		t.RecordCall(g.inner.Name(), b.ConversationID, reason)
	}
	if reason != "" {
		logging.GeneratorWarn("Generator %s fell back to template: conversation=%s turn=%d reason=%s",
			g.inner.Name(), b.ConversationID, b.TurnIndex, reason)
		logging.AuditWithConversation(b.ConversationID).GeneratorFallback(b.TurnIndex, reason)
		if g.OnFallback != nil {
			g.OnFallback(b, reason)
		}
		return b.Template, nil
	}
	return text, nil
}

func (g *Guarded) generate(ctx context.Context, b Brief) (string, string) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	timer := logging.StartTimer(logging.CategoryGenerator, "Generate")
	text, err := g.inner.Generate(ctx, b)
	timer.StopWithThreshold(5 * time.Second)
	if err != nil {
		logging.GeneratorWarn("Generator %s failed: %v", g.inner.Name(), err)
		return "", FallbackError
	}

	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return "", FallbackEmpty
	case strings.ContainsAny(text, "{}"):
		return "", FallbackMarkup
	}
	if hits := templates.GuardPhrases(text, b.Forbidden); len(hits) > 0 {
		logging.GeneratorWarn("Generated reply contained forbidden phrases: %v", hits)
		return "", FallbackForbidden
	}
	return text, ""
}

// =============================================================================
// FACTORY
// =============================================================================

// FromConfig builds the configured generator wrapped in Guarded.
func FromConfig(ctx context.Context, cfg config.GeneratorConfig) (*Guarded, error) {
	var inner Generator
	switch cfg.Provider {
	case "", config.ProviderNone:
		inner = Static{}
	case config.ProviderGemini:
		g, err := NewGeminiGenerator(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		inner = g
	default:
		return nil, fmt.Errorf("unknown generator provider: %s", cfg.Provider)
	}
	logging.Generator("Generator configured: %s", inner.Name())
	return NewGuarded(inner, cfg.GetTimeout()), nil
}
