package triage

import (
	"companion/internal/catalog"
	"companion/internal/types"
)

// SuicideAssessment is the speaker's own suicide risk after guards.
type SuicideAssessment struct {
	Level      types.SuicideRisk `json:"level"`
	Markers    []string          `json:"markers"`
	Suppressed []string          `json:"suppressed,omitempty"`
}

// AssessSuicide grades suicide risk from normalized text.
//
// Intent fires on an unsuppressed intent marker, or when ideation (active or
// passive) co-occurs with a means or timeframe marker. Intent markers bypass
// hypothetical framing but never negation, quotation or attribution: the
// override is per marker, not per message.
func AssessSuicide(text string, m catalog.SuicideMarkers, spans []Span) SuicideAssessment {
	var suppressed []string
	keep := func(list []string, allowed func(string) bool) []string {
		kept, sup := filterMarkers(text, matchMarkers(text, list), spans, allowed)
		suppressed = append(suppressed, sup...)
		return kept
	}

	intent := keep(m.Intent, intentGuards)
	active := keep(m.Active, allGuards)
	passive := keep(m.Passive, allGuards)
	means := keep(m.Means, allGuards)
	timeframe := keep(m.Timeframe, allGuards)

	ideation := len(active) > 0 || len(passive) > 0
	out := SuicideAssessment{Level: types.SuicideRiskNone, Suppressed: suppressed}
	switch {
	case len(intent) > 0 || (ideation && (len(means) > 0 || len(timeframe) > 0)):
		out.Level = types.SuicideRiskIntent
		out.Markers = concat(intent, active, passive, means, timeframe)
	case len(active) > 0:
		out.Level = types.SuicideRiskActive
		out.Markers = concat(active, passive)
	case len(passive) > 0:
		out.Level = types.SuicideRiskPassive
		out.Markers = concat(passive)
	}
	if out.Markers == nil {
		out.Markers = []string{}
	}
	return out
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
