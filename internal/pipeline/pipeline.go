// Package pipeline runs one conversation turn end to end: normalize, classify,
// guard, resolve a category, update the conversation state, check the mode
// transition and render the response.
//
// Process is a pure function of its Input and the Pipeline's immutable
// catalog and settings. It performs no I/O, never returns an error and never
// panics to its caller; the host persists the returned state between turns.
package pipeline

import (
	"fmt"

	"companion/internal/catalog"
	"companion/internal/conversation"
	"companion/internal/templates"
	"companion/internal/triage"
	"companion/internal/types"
)

// Guards added by the pipeline itself.
const (
	GuardRecovered            = "pipeline:recovered"
	GuardVolatilityEscalating = "volatility:escalating"
	GuardSafetyHeld           = "safety:held"
)

// Settings are the tunable knobs of a pipeline. They are fixed for the
// lifetime of a Pipeline.
type Settings struct {
	Volatility       conversation.VolatilityPolicy `json:"volatility"`
	QuestionCooldown int                           `json:"questionCooldown"`
	// DefaultRegion is used until a region is detected; empty uses the
	// catalog default.
	DefaultRegion   string `json:"defaultRegion"`
	MaxMessageRunes int    `json:"maxMessageRunes"`
}

// DefaultSettings returns the stock tuning.
func DefaultSettings() Settings {
	return Settings{
		Volatility:       conversation.DefaultVolatilityPolicy(),
		QuestionCooldown: conversation.DefaultQuestionCooldown,
		MaxMessageRunes:  triage.DefaultMaxMessageRunes,
	}
}

func (s Settings) normalized() Settings {
	def := DefaultSettings()
	if s.Volatility == (conversation.VolatilityPolicy{}) {
		s.Volatility = def.Volatility
	}
	if s.QuestionCooldown <= 0 {
		s.QuestionCooldown = def.QuestionCooldown
	}
	if s.MaxMessageRunes <= 0 {
		s.MaxMessageRunes = def.MaxMessageRunes
	}
	return s
}

// Input is everything one turn depends on.
type Input struct {
	Message         string                         `json:"message"`
	Facts           conversation.SimpleFacts       `json:"facts"`
	Ledger          conversation.IntentLedger      `json:"intentLedger"`
	Tracker         conversation.VolatilityTracker `json:"volatilityTracker"`
	CurrentMode     types.Mode                     `json:"currentMode"`
	CrisisConfirmed bool                           `json:"crisisConfirmed"`
	IsPostCrisis    bool                           `json:"isPostCrisis"`
	// RequestedMode is a host-initiated mode change, such as a counselor
	// queue moving the user into the waiting room.
	RequestedMode types.Mode `json:"requestedMode,omitempty"`
}

// UIDirectives tell the chat surface how to present the turn.
type UIDirectives struct {
	ShowHotlineCta         bool `json:"showHotlineCta"`
	ShowLowCognitionLayout bool `json:"showLowCognitionLayout"`
	RequiresConfirmation   bool `json:"requiresConfirmation"`
	ShowEmergencyVetCta    bool `json:"showEmergencyVetCta"`
	ShowScamWarning        bool `json:"showScamWarning"`
	ShowWaitingRoom        bool `json:"showWaitingRoom"`
}

// Output is the full result of one turn, including the new state values.
type Output struct {
	TurnIndex          int                     `json:"turnIndex"`
	Analysis           triage.ResponseAnalysis `json:"analysis"`
	Tier               types.Tier              `json:"tier"`
	RequiresEscalation bool                    `json:"requiresEscalation"`

	Mode                types.Mode `json:"mode"`
	PreviousMode        types.Mode `json:"previousMode"`
	ProposedMode        types.Mode `json:"proposedMode"`
	ModeTransitionLegal bool       `json:"modeTransitionLegal"`
	// IsPostCrisis is sticky: once a conversation has been in post_crisis it
	// stays flagged.
	IsPostCrisis bool `json:"isPostCrisis"`

	UI UIDirectives `json:"ui"`

	Facts             conversation.SimpleFacts       `json:"facts"`
	VolatilityTracker conversation.VolatilityTracker `json:"volatilityTracker"`
	IntentLedger      conversation.IntentLedger      `json:"intentLedger"`

	GuardsTriggered []string `json:"guardsTriggered"`

	ResponseTemplate       string               `json:"responseTemplate"`
	RequiresModelCall      bool                 `json:"requiresModelCall"`
	NextQuestion           types.QuestionIntent `json:"nextQuestion,omitempty"`
	NextQuestionText       string               `json:"nextQuestionText,omitempty"`
	Region                 string               `json:"region"`
	UnresolvedPlaceholders []string             `json:"unresolvedPlaceholders"`
	UsedFallback           bool                 `json:"usedFallback"`
	CatalogVersion         string               `json:"catalogVersion"`
}

// Next builds the following turn's input from this turn's state. Crisis
// confirmation and requested modes are per-turn and start cleared.
func (o Output) Next(message string) Input {
	return Input{
		Message:      message,
		Facts:        o.Facts,
		Ledger:       o.IntentLedger,
		Tracker:      o.VolatilityTracker,
		CurrentMode:  o.Mode,
		IsPostCrisis: o.IsPostCrisis,
	}
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithGuardSet replaces the catalog-built disambiguation guards.
func WithGuardSet(gs *triage.GuardSet) Option {
	return func(p *Pipeline) { p.classifier = p.classifier.WithGuards(gs) }
}

// Pipeline is immutable after New and safe for concurrent use; independent
// conversations only need independent state values.
type Pipeline struct {
	cat        *catalog.Catalog
	settings   Settings
	classifier *triage.Classifier
	resolver   *templates.Resolver
	extractor  *conversation.Extractor
}

// New builds a pipeline over a validated catalog. It refuses a catalog whose
// fallbacks do not render cleanly for every hotline region, since a failing
// fallback leaves no safe response.
func New(cat *catalog.Catalog, settings Settings, opts ...Option) (*Pipeline, error) {
	if cat == nil {
		return nil, fmt.Errorf("pipeline: catalog is nil")
	}
	if bad := templates.Audit(cat).FallbackViolations(); len(bad) > 0 {
		return nil, fmt.Errorf("pipeline: catalog fallbacks fail the template guard: %v", bad)
	}
	settings = settings.normalized()
	p := &Pipeline{
		cat:        cat,
		settings:   settings,
		classifier: triage.NewClassifier(cat, settings.MaxMessageRunes),
		resolver:   templates.NewResolver(cat),
		extractor:  conversation.NewExtractor(cat.Vocabulary()),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Catalog returns the catalog the pipeline was built with.
func (p *Pipeline) Catalog() *catalog.Catalog { return p.cat }

// Settings returns the normalized settings.
func (p *Pipeline) Settings() Settings { return p.settings }

// NewState returns the empty state a conversation starts with.
func NewState() Input {
	return Input{
		Ledger:      conversation.NewIntentLedger(),
		Tracker:     conversation.NewVolatilityTracker(),
		CurrentMode: types.ModeNormal,
	}
}

// Process runs one turn. It never panics: an internal failure yields a
// general turn that shows the crisis fallback and the hotline CTA.
func (p *Pipeline) Process(in Input) (out Output) {
	defer func() {
		if r := recover(); r != nil {
			out = p.recovered(in)
		}
	}()
	return p.process(in)
}

func (p *Pipeline) process(in Input) Output {
	current := in.CurrentMode
	if !current.Valid() {
		current = types.ModeNormal
	}
	turn := in.Tracker.Turns

	// Classify.
	text := triage.Normalize(in.Message, p.settings.MaxMessageRunes)
	signals := p.classifier.ClassifyNormalized(text)
	analysis := triage.AnalysisFrom(signals)
	category := analysis.Category
	tier := triage.TierFor(category)
	escalate := analysis.RequiresEscalation
	guards := append([]string{}, signals.GuardsTriggered...)

	// Facts and region.
	extracted := p.extractor.Extract(text, category)
	if region, ok := templates.DetectRegion(text, p.cat.Regions()); ok {
		extracted.Region = region
	}
	facts := conversation.MergeFacts(in.Facts, extracted)
	regionHint := facts.Region
	if regionHint == "" {
		regionHint = p.settings.DefaultRegion
	}
	region := p.resolver.Region(regionHint)

	// Mode.
	proposed := conversation.ProposeMode(current, category, in.CrisisConfirmed, in.RequestedMode)
	transition := conversation.CheckTransition(current, proposed)
	mode := transition.Mode

	// Never step down while the user is held in safety.
	safetyHeld := (mode == types.ModeSafety || mode == types.ModeWaitingRoom) && !in.CrisisConfirmed
	if safetyHeld {
		tier = types.MaxTier(tier, types.TierHigh)
		escalate = true
	}

	// Volatility.
	score := conversation.TurnScore(tier, len(analysis.DetectedMarkers))
	tracker := conversation.UpdateVolatility(in.Tracker, score, tier, p.settings.Volatility)
	if tracker.Trend == types.TrendEscalating && tier.Rank() >= types.TierMedium.Rank() {
		escalate = true
		guards = append(guards, GuardVolatilityEscalating)
	}

	// Ledger and next question.
	ledger := conversation.UpdateFromFacts(in.Ledger, facts)
	var next types.QuestionIntent
	var nextText string
	if q, ok := conversation.NextQuestion(ledger, p.cat.FollowUps(category), facts, turn, p.settings.QuestionCooldown); ok {
		if prompt, ok := p.resolver.Question(q, region, facts.PetName); ok {
			next, nextText = q, prompt
			ledger = conversation.RecordAsked(ledger, q, turn)
		}
	}

	// Response.
	var rendered templates.Rendered
	if safetyHeld && !category.IsCrisis() {
		rendered = p.resolver.Fallback(true, region, facts.PetName)
		guards = append(guards, GuardSafetyHeld)
	} else {
		rendered = p.resolver.Render(templates.Request{
			Category: category,
			Region:   region,
			PetName:  facts.PetName,
			Escalate: escalate,
		})
	}
	guards = append(guards, rendered.Violations...)

	ui := UIDirectives{
		ShowHotlineCta: escalate || in.IsPostCrisis ||
			mode == types.ModeSafety || mode == types.ModeWaitingRoom || mode == types.ModePostCrisis,
		ShowLowCognitionLayout: category == types.CategoryParalysis || category == types.CategoryNeurodivergent ||
			category == types.CategoryMDD || tier == types.TierCritical || tracker.Trend == types.TrendVolatile,
		RequiresConfirmation: (category.IsCrisis() || mode == types.ModeSafety) &&
			!in.CrisisConfirmed && facts.UserSafety != conversation.SafetySafe,
		ShowEmergencyVetCta: category == types.CategoryEmergency,
		ShowScamWarning:     category == types.CategoryScam,
		ShowWaitingRoom:     mode == types.ModeWaitingRoom,
	}

	return Output{
		TurnIndex:              turn,
		Analysis:               analysis,
		Tier:                   tier,
		RequiresEscalation:     escalate,
		Mode:                   mode,
		PreviousMode:           transition.Previous,
		ProposedMode:           transition.Proposed,
		ModeTransitionLegal:    transition.Legal,
		IsPostCrisis:           in.IsPostCrisis || mode == types.ModePostCrisis,
		UI:                     ui,
		Facts:                  facts,
		VolatilityTracker:      tracker,
		IntentLedger:           ledger,
		GuardsTriggered:        guards,
		ResponseTemplate:       rendered.Text,
		RequiresModelCall:      rendered.Generative && !rendered.UsedFallback && !escalate,
		NextQuestion:           next,
		NextQuestionText:       nextText,
		Region:                 region,
		UnresolvedPlaceholders: rendered.Unresolved,
		UsedFallback:           rendered.UsedFallback,
		CatalogVersion:         p.cat.Version(),
	}
}

// recovered builds the output for a turn whose processing panicked. State is
// returned unchanged so the turn can be retried.
func (p *Pipeline) recovered(in Input) Output {
	mode := in.CurrentMode
	if !mode.Valid() {
		mode = types.ModeNormal
	}
	out := Output{
		TurnIndex: in.Tracker.Turns,
		Analysis: triage.ResponseAnalysis{
			Category:         types.CategoryGeneral,
			SuicideRiskLevel: types.SuicideRiskNone,
			DetectedMarkers:  []string{},
			Rule:             string(types.CategoryGeneral),
		},
		Tier:                   types.TierStandard,
		Mode:                   mode,
		PreviousMode:           mode,
		ProposedMode:           mode,
		ModeTransitionLegal:    true,
		IsPostCrisis:           in.IsPostCrisis,
		UI:                     UIDirectives{ShowHotlineCta: true},
		Facts:                  in.Facts,
		VolatilityTracker:      in.Tracker,
		IntentLedger:           in.Ledger,
		GuardsTriggered:        []string{GuardRecovered},
		ResponseTemplate:       templates.SafeText,
		Region:                 p.cat.Regions().Default,
		UnresolvedPlaceholders: []string{},
		UsedFallback:           true,
		CatalogVersion:         p.cat.Version(),
	}
	func() {
		defer func() { _ = recover() }()
		fb := p.resolver.Fallback(true, in.Facts.Region, "")
		out.ResponseTemplate = fb.Text
		out.Region = fb.Region
	}()
	return out
}
