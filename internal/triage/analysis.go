package triage

import "companion/internal/types"

// ResponseAnalysis is the per-turn triage verdict.
type ResponseAnalysis struct {
	Category           types.Category    `json:"category"`
	SuicideRiskLevel   types.SuicideRisk `json:"suicideRiskLevel"`
	RequiresEscalation bool              `json:"requiresEscalation"`
	DetectedMarkers    []string          `json:"detectedMarkers"`
	Rule               string            `json:"rule"`
}

// TierFor maps a category to its base risk tier.
func TierFor(cat types.Category) types.Tier {
	switch cat {
	case types.CategorySuicideIntent, types.CategorySuicideActive:
		return types.TierCritical
	case types.CategorySuicidePassive, types.CategoryDVCoerciveControl, types.CategoryEmergency:
		return types.TierHigh
	case types.CategoryMDD, types.CategoryParalysis, types.CategoryDeathTraumatic, types.CategoryScam:
		return types.TierMedium
	}
	return types.TierStandard
}

// Analyze classifies message and resolves it to one category.
func (c *Classifier) Analyze(message string) (ResponseAnalysis, Signals) {
	s := c.Classify(message)
	return AnalysisFrom(s), s
}

// AnalysisFrom resolves classifier signals into a ResponseAnalysis.
func AnalysisFrom(s Signals) ResponseAnalysis {
	rule := Resolve(s)
	a := ResponseAnalysis{
		Category:           rule.Category,
		SuicideRiskLevel:   s.Suicide.Level,
		RequiresEscalation: rule.Escalate,
		DetectedMarkers:    DetectedMarkers(s),
		Rule:               rule.Name,
	}
	if a.SuicideRiskLevel == "" {
		a.SuicideRiskLevel = types.SuicideRiskNone
	}
	if a.SuicideRiskLevel != types.SuicideRiskNone {
		a.RequiresEscalation = true
	}
	return a
}

// DetectedMarkers lists every unsuppressed marker across classifiers in
// cascade order, without duplicates.
func DetectedMarkers(s Signals) []string {
	out := []string{}
	for _, list := range [][]string{
		s.Suicide.Markers, s.DV.Markers, s.MDD.Markers, s.Paralysis.Markers,
		s.Neurodivergent.Markers, s.Death.Markers, detectedOnly(s.Anticipatory),
		s.Emergency.Markers, s.Scam.Markers, s.FoundPet.Markers, s.LostPet.Markers,
		s.Guilt.Markers, s.Disenfranchised.Markers, s.Pediatric.Markers,
		s.QualityOfLife.Markers,
	} {
		out = appendMissing(out, list...)
	}
	return out
}

func detectedOnly(r MarkerResult) []string {
	if !r.Detected {
		return nil
	}
	return r.Markers
}
