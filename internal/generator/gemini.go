package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"companion/internal/types"
	"companion/internal/usage"

	"google.golang.org/genai"
)

// =============================================================================
// GOOGLE GENAI GENERATOR
// =============================================================================

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// contentGenerator is the slice of genai.Models the generator uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator writes replies with Google's Gemini API.
type GeminiGenerator struct {
	models contentGenerator
	model  string
}

// NewGeminiGenerator creates a Gemini-backed generator.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newGeminiGenerator(client.Models, model), nil
}

func newGeminiGenerator(models contentGenerator, model string) *GeminiGenerator {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiGenerator{models: models, model: model}
}

// Name implements Generator.
func (g *GeminiGenerator) Name() string { return "gemini:" + g.model }

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, b Brief) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(UserPrompt(b), genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemInstruction(b), genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.4),
		MaxOutputTokens:   400,
		CandidateCount:    1,
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	if t := usage.FromContext(ctx); t != nil && resp != nil && resp.UsageMetadata != nil {
		t.RecordTokens(g.Name(), b.ConversationID,
			int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount))
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned")
	}
	return resp.Text(), nil
}

// =============================================================================
// PROMPTS
// =============================================================================

// SystemInstruction states the rules a generated reply must follow,
// including every forbidden phrase.
func SystemInstruction(b Brief) string {
	var sb strings.Builder
	sb.WriteString("You are a gentle companion for people whose pet has died, is dying or is missing.\n")
	sb.WriteString("Write one short reply (at most four sentences) in plain text. No markdown, no lists, no braces.\n")
	sb.WriteString("Reflect what the person said. Do not diagnose, do not give medical or veterinary instructions, ")
	sb.WriteString("and do not promise outcomes.\n")
	sb.WriteString("Keep the meaning of the reference reply; you may rephrase it to fit the message.\n")
	if len(b.Forbidden) > 0 {
		phrases := append([]string(nil), b.Forbidden...)
		sort.Strings(phrases)
		sb.WriteString("Never use any of these phrases, in any form:\n")
		for _, p := range phrases {
			sb.WriteString("- ")
			sb.WriteString(p)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// UserPrompt carries the message and the known context.
func UserPrompt(b Brief) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Category: %s\n", b.Category)
	if b.Mode != "" && b.Mode != types.ModeNormal {
		fmt.Fprintf(&sb, "Conversation mode: %s\n", b.Mode)
	}
	for _, key := range b.Facts.Known() {
		fmt.Fprintf(&sb, "Known %s: %s\n", key, b.Facts.Get(key))
	}
	fmt.Fprintf(&sb, "Reference reply: %s\n", b.Template)
	fmt.Fprintf(&sb, "Message: %s\n", b.Message)
	return sb.String()
}
