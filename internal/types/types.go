// Package types provides the shared enums used across the companion packages.
// This package exists to break import cycles between catalog, triage, conversation
// and pipeline. Types in this package should stay free of behaviour beyond ordering
// and validation helpers.
package types

// =============================================================================
// RESPONSE CATEGORIES
// =============================================================================

// Category is the single response category resolved for a turn.
// The set is closed: every value has exactly one template key in the catalog.
type Category string

const (
	CategorySuicideIntent      Category = "suicide_intent"
	CategorySuicideActive      Category = "suicide_active"
	CategorySuicidePassive     Category = "suicide_passive"
	CategoryDVCoerciveControl  Category = "dv_coercive_control"
	CategoryMDD                Category = "mdd"
	CategoryParalysis          Category = "paralysis"
	CategoryNeurodivergent     Category = "neurodivergent"
	CategoryDeathTraumatic     Category = "death_traumatic"
	CategoryDeathEuthanasia    Category = "death_euthanasia"
	CategoryDeathGeneral       Category = "death_general"
	CategoryDeathFoundDeceased Category = "death_found_deceased"
	CategoryAnticipatory       Category = "anticipatory"
	CategoryEmergency          Category = "emergency"
	CategoryScam               Category = "scam"
	CategoryFoundPet           Category = "found_pet"
	CategoryLostPet            Category = "lost_pet"
	CategoryGuiltCBT           Category = "guilt_cbt"
	CategoryDisenfranchised    Category = "disenfranchised"
	CategoryPediatric          Category = "pediatric"
	CategoryQualityOfLife      Category = "quality_of_life"
	CategoryGeneral            Category = "general"
)

// AllCategories returns every category in cascade order.
func AllCategories() []Category {
	return []Category{
		CategorySuicideIntent,
		CategorySuicideActive,
		CategorySuicidePassive,
		CategoryDVCoerciveControl,
		CategoryMDD,
		CategoryParalysis,
		CategoryNeurodivergent,
		CategoryDeathTraumatic,
		CategoryDeathEuthanasia,
		CategoryDeathGeneral,
		CategoryDeathFoundDeceased,
		CategoryAnticipatory,
		CategoryEmergency,
		CategoryScam,
		CategoryFoundPet,
		CategoryLostPet,
		CategoryGuiltCBT,
		CategoryDisenfranchised,
		CategoryPediatric,
		CategoryQualityOfLife,
		CategoryGeneral,
	}
}

// Valid reports whether c is a member of the closed category set.
func (c Category) Valid() bool {
	for _, known := range AllCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// IsSuicide reports whether c is one of the suicide-risk categories.
func (c Category) IsSuicide() bool {
	return c == CategorySuicideIntent || c == CategorySuicideActive || c == CategorySuicidePassive
}

// IsCrisis reports whether c routes the conversation into safety mode.
func (c Category) IsCrisis() bool {
	return c.IsSuicide() || c == CategoryDVCoerciveControl
}

// IsDeath reports whether c is one of the death/grief subtypes.
func (c Category) IsDeath() bool {
	switch c {
	case CategoryDeathTraumatic, CategoryDeathEuthanasia, CategoryDeathGeneral, CategoryDeathFoundDeceased:
		return true
	}
	return false
}

// =============================================================================
// RISK TIERS
// =============================================================================

// Tier is the overall urgency of a turn.
type Tier string

const (
	TierStandard Tier = "STANDARD"
	TierMedium   Tier = "MEDIUM"
	TierHigh     Tier = "HIGH"
	TierCritical Tier = "CRITICAL"
)

// Rank orders tiers; unknown tiers rank as STANDARD.
func (t Tier) Rank() int {
	switch t {
	case TierMedium:
		return 1
	case TierHigh:
		return 2
	case TierCritical:
		return 3
	}
	return 0
}

// MaxTier returns the higher of two tiers.
func MaxTier(a, b Tier) Tier {
	if b.Rank() > a.Rank() {
		return b
	}
	if a == "" {
		return TierStandard
	}
	return a
}

// SuicideRisk is the speaker's own suicide-risk level for a turn.
type SuicideRisk string

const (
	SuicideRiskNone    SuicideRisk = "none"
	SuicideRiskPassive SuicideRisk = "passive"
	SuicideRiskActive  SuicideRisk = "active"
	SuicideRiskIntent  SuicideRisk = "intent"
)

// =============================================================================
// CONVERSATION MODES
// =============================================================================

// Mode is the conversational context the companion is operating in.
type Mode string

const (
	ModeNormal       Mode = "normal"
	ModeLostPet      Mode = "lost_pet"
	ModeFoundPet     Mode = "found_pet"
	ModeGrief        Mode = "grief"
	ModePetEmergency Mode = "pet_emergency"
	ModeScam         Mode = "scam"
	ModeSafety       Mode = "safety"
	ModeWaitingRoom  Mode = "waiting_room"
	ModePostCrisis   Mode = "post_crisis"
)

// AllModes returns every known mode.
func AllModes() []Mode {
	return []Mode{
		ModeNormal, ModeLostPet, ModeFoundPet, ModeGrief, ModePetEmergency,
		ModeScam, ModeSafety, ModeWaitingRoom, ModePostCrisis,
	}
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	for _, known := range AllModes() {
		if m == known {
			return true
		}
	}
	return false
}

// IsContent reports whether m is one of the topic modes entered from a resolved category.
func (m Mode) IsContent() bool {
	switch m {
	case ModeLostPet, ModeFoundPet, ModeGrief, ModePetEmergency, ModeScam:
		return true
	}
	return false
}

// =============================================================================
// VOLATILITY TRENDS
// =============================================================================

// Trend is the direction of risk scores across recent turns.
type Trend string

const (
	TrendStable       Trend = "STABLE"
	TrendEscalating   Trend = "ESCALATING"
	TrendDeEscalating Trend = "DE_ESCALATING"
	TrendVolatile     Trend = "VOLATILE"
)
