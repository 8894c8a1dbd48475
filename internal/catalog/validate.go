package catalog

import (
	"fmt"
	"sort"
	"strings"

	"companion/internal/types"
)

// ValidationError aggregates every problem found in a catalog file.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid catalog (%d problems): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

type problems []string

func (p *problems) addf(format string, args ...interface{}) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

// Validate checks the structural contract of a catalog file: schema version,
// a template for every category, safe fallbacks, non-empty marker sets and
// deny-list-clean static text.
func (f File) Validate() error {
	var p problems

	if f.Version != SchemaVersion {
		p.addf("version %q does not match schema version %q", f.Version, SchemaVersion)
	}

	// Templates: exactly the closed category set.
	for _, cat := range types.AllCategories() {
		tpl, ok := f.Templates[string(cat)]
		if !ok {
			p.addf("missing template for category %s", cat)
			continue
		}
		if strings.TrimSpace(tpl.Text) == "" {
			p.addf("template %s has empty text", cat)
		}
	}
	for key := range f.Templates {
		if !types.Category(key).Valid() {
			p.addf("template %q is not a known category", key)
		}
	}
	if strings.TrimSpace(f.Fallbacks.Crisis.Text) == "" {
		p.addf("crisis fallback is empty")
	}
	if strings.TrimSpace(f.Fallbacks.General.Text) == "" {
		p.addf("general fallback is empty")
	}

	// Deny-list over every static text the catalog can emit.
	deny := normalizeList(f.ForbiddenPhrases)
	if len(deny) == 0 {
		p.addf("forbidden_phrases is empty")
	}
	checkText := func(label, text string, extra []string) {
		normalized := NormalizePhrase(text)
		for _, phrase := range append(append([]string(nil), deny...), normalizeList(extra)...) {
			if strings.Contains(normalized, phrase) {
				p.addf("%s contains forbidden phrase %q", label, phrase)
			}
		}
	}
	for _, key := range sortedKeys(f.Templates) {
		tpl := f.Templates[key]
		checkText("template "+key, tpl.Text, tpl.Forbidden)
	}
	checkText("crisis fallback", f.Fallbacks.Crisis.Text, f.Fallbacks.Crisis.Forbidden)
	checkText("general fallback", f.Fallbacks.General.Text, f.Fallbacks.General.Forbidden)
	for _, key := range sortedKeys(f.Questions) {
		if !types.QuestionIntent(key).Valid() {
			p.addf("question %q is not a known intent", key)
		}
		checkText("question "+key, f.Questions[key], nil)
	}
	for _, key := range sortedKeys(f.FollowUps) {
		if !types.Category(key).Valid() {
			p.addf("followups %q is not a known category", key)
		}
		for _, q := range f.FollowUps[key] {
			intent := types.QuestionIntent(strings.TrimSpace(q))
			if !intent.Valid() {
				p.addf("followups %s: unknown question %q", key, q)
				continue
			}
			if strings.TrimSpace(f.Questions[string(intent)]) == "" {
				p.addf("followups %s: question %s has no prompt", key, intent)
			}
		}
	}

	// Marker sets.
	m := f.Markers
	required := []struct {
		name string
		list []string
	}{
		{"suicide.passive", m.Suicide.Passive},
		{"suicide.active", m.Suicide.Active},
		{"suicide.intent", m.Suicide.Intent},
		{"dv.danger", m.DV.Danger},
		{"dv.coercive_control", m.DV.CoerciveControl},
		{"mdd.markers", m.MDD.Markers},
		{"paralysis", m.Paralysis},
		{"neurodivergent", m.Neurodivergent},
		{"death.general", m.Death.General},
		{"death.traumatic", m.Death.Traumatic},
		{"death.euthanasia", m.Death.Euthanasia},
		{"death.found_deceased", m.Death.FoundDeceased},
		{"death.animal_nouns", m.Death.AnimalNouns},
		{"anticipatory.markers", m.Anticipatory.Markers},
		{"emergency.veterinary", m.Emergency.Veterinary},
		{"scam", m.Scam},
		{"found_pet", m.FoundPet},
		{"lost_pet", m.LostPet},
		{"guilt", m.Guilt},
		{"disenfranchised", m.Disenfranchised},
		{"pediatric", m.Pediatric},
		{"quality_of_life", m.QualityOfLife},
	}
	for _, r := range required {
		if len(normalizeList(r.list)) == 0 {
			p.addf("marker set %s is empty", r.name)
		}
	}
	if m.Anticipatory.MinDistinct < 2 {
		p.addf("anticipatory.min_distinct must be at least 2, got %d", m.Anticipatory.MinDistinct)
	}

	// Guards.
	g := f.Guards
	if len(normalizeList(g.NegationTokens)) == 0 || len(normalizeList(g.NegationTargets)) == 0 {
		p.addf("negation guard needs tokens and targets")
	}
	if g.NegationMaxGap < 0 || g.NegationMaxGap > 10 {
		p.addf("negation_max_gap must be between 0 and 10, got %d", g.NegationMaxGap)
	}
	if len(normalizeList(g.FirstPerson)) == 0 {
		p.addf("first_person pronouns are required to bound reported speech")
	}

	// Regions and hotlines.
	def := strings.ToUpper(strings.TrimSpace(f.Regions.Default))
	if def == "" {
		p.addf("regions.default is empty")
	}
	hotlineRegions := make(map[string]bool)
	for region, lines := range f.Hotlines {
		r := strings.ToUpper(strings.TrimSpace(region))
		hotlineRegions[r] = true
		if strings.TrimSpace(lines["crisis"]) == "" {
			p.addf("hotlines.%s has no crisis number", r)
		}
	}
	if def != "" && !hotlineRegions[def] {
		p.addf("default region %s has no hotlines", def)
	}
	for region := range f.Regions.Keywords {
		if !hotlineRegions[strings.ToUpper(strings.TrimSpace(region))] {
			p.addf("region %s has keywords but no hotlines", region)
		}
	}

	if len(p) > 0 {
		return &ValidationError{Problems: p}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
