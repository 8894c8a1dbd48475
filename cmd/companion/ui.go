package main

import (
	"fmt"
	"strings"

	"companion/internal/pipeline"
	"companion/internal/types"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	badgeBase = lipgloss.NewStyle().Bold(true).Padding(0, 1)

	tierStyles = map[types.Tier]lipgloss.Style{
		types.TierStandard: badgeBase.Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#5F87AF")),
		types.TierMedium:   badgeBase.Foreground(lipgloss.Color("#000000")).Background(lipgloss.Color("#FFD75F")),
		types.TierHigh:     badgeBase.Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#D7875F")),
		types.TierCritical: badgeBase.Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#D70000")),
	}

	modeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#87AFD7")).Italic(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#D70000")).Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAF5F")).Bold(true)
	headingStyle = lipgloss.NewStyle().Bold(true).Underline(true)

	replyStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5F87AF")).
			Padding(0, 1)
)

func tierBadge(t types.Tier) string {
	style, ok := tierStyles[t]
	if !ok {
		style = badgeBase
	}
	return style.Render(string(t))
}

// statusLine summarises a turn on one line.
func statusLine(out pipeline.Output) string {
	parts := []string{
		tierBadge(out.Tier),
		string(out.Analysis.Category),
		modeStyle.Render("mode:" + string(out.Mode)),
	}
	if out.RequiresEscalation {
		parts = append(parts, warnStyle.Render("ESCALATE"))
	}
	if out.IsPostCrisis {
		parts = append(parts, mutedStyle.Render("post-crisis"))
	}
	if len(out.GuardsTriggered) > 0 {
		parts = append(parts, mutedStyle.Render("guards:"+strings.Join(out.GuardsTriggered, ",")))
	}
	return strings.Join(parts, " ")
}

// directives lists the UI directives that are on.
func directives(ui pipeline.UIDirectives) []string {
	var out []string
	if ui.ShowHotlineCta {
		out = append(out, "hotline")
	}
	if ui.RequiresConfirmation {
		out = append(out, "confirm-safety")
	}
	if ui.ShowLowCognitionLayout {
		out = append(out, "low-cognition")
	}
	if ui.ShowEmergencyVetCta {
		out = append(out, "emergency-vet")
	}
	if ui.ShowScamWarning {
		out = append(out, "scam-warning")
	}
	if ui.ShowWaitingRoom {
		out = append(out, "waiting-room")
	}
	return out
}

// =============================================================================
// MARKDOWN
// =============================================================================

// newRenderer returns a glamour renderer, or nil when styling is unavailable.
func newRenderer(width int) *glamour.TermRenderer {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

// renderReply renders reply text as markdown, falling back to a bordered box.
func renderReply(r *glamour.TermRenderer, text string) (rendered string) {
	if r == nil {
		return replyStyle.Render(text)
	}
	defer func() {
		if rec := recover(); rec != nil {
			rendered = replyStyle.Render(text)
		}
	}()
	out, err := r.Render(text)
	if err != nil {
		return replyStyle.Render(text)
	}
	return strings.TrimRight(out, "\n")
}

func heading(format string, args ...interface{}) string {
	return headingStyle.Render(fmt.Sprintf(format, args...))
}
