package triage

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"companion/internal/catalog"
)

// Guard names as reported in guardsTriggered ("<guard>:<marker>").
const (
	GuardNegation     = "negation"
	GuardQuotation    = "quotation"
	GuardAttribution  = "attribution"
	GuardHypothetical = "hypothetical"
)

// Span is a byte range of normalized text claimed by a guard.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Guard string `json:"guard,omitempty"`
}

// Contains reports whether o lies entirely inside s.
func (s Span) Contains(o Span) bool {
	return o.Start >= s.Start && o.End <= s.End
}

// DisambiguationGuard finds the regions of a message whose crisis phrases are
// not the speaker's own first-person statement. Implementations must be pure.
type DisambiguationGuard interface {
	Name() string
	Spans(text string) []Span
}

// =============================================================================
// NEGATION
// =============================================================================

// NegationGuard matches a negation token, up to MaxGap intervening words, then a
// crisis phrase ("i don't ever want to die"). The gap never crosses sentence
// or clause punctuation, and a conjunction restarting a first-person clause
// ("i don't care and i want to die") ends the negation.
type NegationGuard struct {
	re *regexp.Regexp
}

var clauseRestart = regexp.MustCompile(`(?:^|\s)(?:and|but|so|because|cause|then|now)\s+i(?:'m)?\s`)

// NewNegationGuard compiles the negation pattern. It returns nil when either
// vocabulary is empty.
func NewNegationGuard(tokens, targets []string, maxGap int) *NegationGuard {
	if len(tokens) == 0 || len(targets) == 0 {
		return nil
	}
	if maxGap < 0 {
		maxGap = 0
	}
	pattern := `\b(?:` + alternation(tokens) + `)\s+((?:[^\s.!?;,]+\s+){0,` + strconv.Itoa(maxGap) + `}?)(?:` + alternation(targets) + `)`
	return &NegationGuard{re: regexp.MustCompile(pattern)}
}

func (g *NegationGuard) Name() string { return GuardNegation }

func (g *NegationGuard) Spans(text string) []Span {
	var spans []Span
	for _, loc := range g.re.FindAllStringSubmatchIndex(text, -1) {
		if loc[2] >= 0 && clauseRestart.MatchString(text[loc[2]:loc[3]]) {
			continue
		}
		spans = append(spans, Span{Start: loc[0], End: loc[1], Guard: GuardNegation})
	}
	return spans
}

// =============================================================================
// QUOTATION
// =============================================================================

// QuotationGuard claims text inside double quotes, and inside single quotes that
// open at a word start and close before a non-letter (so apostrophes in "don't"
// never open a quote). An unclosed quote claims nothing.
type QuotationGuard struct{}

func (QuotationGuard) Name() string { return GuardQuotation }

func (QuotationGuard) Spans(text string) []Span {
	var spans []Span
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '"':
			if j := strings.IndexByte(text[i+1:], '"'); j >= 0 {
				end := i + 1 + j + 1
				spans = append(spans, Span{Start: i, End: end, Guard: GuardQuotation})
				i = end - 1
			}
		case '\'':
			if i > 0 && text[i-1] != ' ' {
				continue
			}
			if end := closingSingleQuote(text, i+1); end > 0 {
				spans = append(spans, Span{Start: i, End: end, Guard: GuardQuotation})
				i = end - 1
			}
		}
	}
	return spans
}

func closingSingleQuote(text string, from int) int {
	for k := from; k < len(text); k++ {
		if text[k] != '\'' {
			continue
		}
		if k+1 == len(text) || !isLetter(text[k+1]) {
			return k + 1
		}
	}
	return -1
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 0x80
}

// =============================================================================
// ATTRIBUTION
// =============================================================================

// AttributionGuard claims clauses spoken by or about someone else: a
// third-party subject followed by an intention verb ("my brother keeps saying
// he wants to ..."), or a reported-speech cue ("she told me ..."). A claimed
// clause runs to the end of the sentence and stops early at a first-person
// pronoun, so "he said he's sad but i want to die" keeps the speaker's phrase.
type AttributionGuard struct {
	thirdParty  *regexp.Regexp
	reported    *regexp.Regexp
	firstPerson *regexp.Regexp
}

// NewAttributionGuard compiles the attribution patterns.
func NewAttributionGuard(subjects, verbs, reported, firstPerson []string) *AttributionGuard {
	g := &AttributionGuard{}
	if len(subjects) > 0 && len(verbs) > 0 {
		g.thirdParty = regexp.MustCompile(`\b(?:` + alternation(subjects) + `)\s+((?:\S+\s+){0,3}?)(?:` + alternation(verbs) + `)\b`)
	}
	if len(reported) > 0 {
		g.reported = regexp.MustCompile(`\b(?:` + alternation(reported) + `)\b`)
	}
	if len(firstPerson) > 0 {
		g.firstPerson = regexp.MustCompile(`\b(?:` + alternation(firstPerson) + `)\b`)
	}
	return g
}

func (g *AttributionGuard) Name() string { return GuardAttribution }

func (g *AttributionGuard) Spans(text string) []Span {
	var spans []Span
	if g.thirdParty != nil {
		for _, loc := range g.thirdParty.FindAllStringSubmatchIndex(text, -1) {
			gap := text[loc[2]:loc[3]]
			if g.firstPerson != nil && g.firstPerson.MatchString(gap) {
				continue
			}
			spans = append(spans, Span{Start: loc[0], End: g.clauseEnd(text, loc[1]), Guard: GuardAttribution})
		}
	}
	if g.reported != nil {
		for _, loc := range g.reported.FindAllStringIndex(text, -1) {
			end := g.clauseEnd(text, loc[1])
			if end > loc[1] {
				spans = append(spans, Span{Start: loc[0], End: end, Guard: GuardAttribution})
			}
		}
	}
	return spans
}

// clauseEnd returns the end of the attributed clause starting at from.
func (g *AttributionGuard) clauseEnd(text string, from int) int {
	end := sentenceEnd(text, from)
	if g.firstPerson != nil {
		if loc := g.firstPerson.FindStringIndex(text[from:end]); loc != nil {
			end = from + loc[0]
		}
	}
	return end
}

// =============================================================================
// HYPOTHETICAL
// =============================================================================

// HypotheticalGuard claims the rest of a sentence after a fiction or
// what-if cue ("in a movie", "writing a story", "hypothetically").
type HypotheticalGuard struct {
	re *regexp.Regexp
}

// NewHypotheticalGuard compiles the cue pattern; nil when there are no cues.
func NewHypotheticalGuard(cues []string) *HypotheticalGuard {
	if len(cues) == 0 {
		return nil
	}
	return &HypotheticalGuard{re: regexp.MustCompile(`\b(?:` + alternation(cues) + `)\b`)}
}

func (g *HypotheticalGuard) Name() string { return GuardHypothetical }

func (g *HypotheticalGuard) Spans(text string) []Span {
	var spans []Span
	for _, loc := range g.re.FindAllStringIndex(text, -1) {
		spans = append(spans, Span{Start: loc[0], End: sentenceEnd(text, loc[1]), Guard: GuardHypothetical})
	}
	return spans
}

// =============================================================================
// GUARD SET
// =============================================================================

// GuardSet runs a fixed list of guards over a message.
type GuardSet struct {
	guards []DisambiguationGuard
}

// NewGuardSet builds the default guards from catalog vocabularies.
func NewGuardSet(spec catalog.GuardSpec) *GuardSet {
	gs := &GuardSet{}
	if g := NewNegationGuard(spec.NegationTokens, spec.NegationTargets, spec.NegationMaxGap); g != nil {
		gs.guards = append(gs.guards, g)
	}
	gs.guards = append(gs.guards, QuotationGuard{})
	gs.guards = append(gs.guards, NewAttributionGuard(spec.ThirdPartySubjects, spec.ThirdPartyVerbs, spec.ReportedSpeech, spec.FirstPerson))
	if g := NewHypotheticalGuard(spec.Hypothetical); g != nil {
		gs.guards = append(gs.guards, g)
	}
	return gs
}

// NewGuardSetOf builds a set from explicit guards, for swapping implementations.
func NewGuardSetOf(guards ...DisambiguationGuard) *GuardSet {
	return &GuardSet{guards: guards}
}

// Spans returns every guard span in the text ordered by start offset.
func (gs *GuardSet) Spans(text string) []Span {
	var all []Span
	for _, g := range gs.guards {
		all = append(all, g.Spans(text)...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Start < all[j].Start })
	return all
}

// filterMarkers splits matched markers into kept and suppressed. A marker is
// suppressed only when every occurrence lies inside a span from an allowed
// guard; suppressed entries are reported as "<guard>:<marker>".
func filterMarkers(text string, markers []string, spans []Span, allowed func(guard string) bool) (kept, suppressed []string) {
	for _, m := range markers {
		guard, ok := coveringGuard(text, m, spans, allowed)
		if ok {
			suppressed = append(suppressed, guard+":"+m)
			continue
		}
		kept = append(kept, m)
	}
	return kept, suppressed
}

func coveringGuard(text, marker string, spans []Span, allowed func(string) bool) (string, bool) {
	occs := occurrences(text, marker)
	if len(occs) == 0 {
		return "", false
	}
	first := ""
	for _, occ := range occs {
		covered := false
		for _, s := range spans {
			if allowed != nil && !allowed(s.Guard) {
				continue
			}
			if s.Contains(occ) {
				covered = true
				if first == "" {
					first = s.Guard
				}
				break
			}
		}
		if !covered {
			return "", false
		}
	}
	return first, true
}

func allGuards(string) bool { return true }

// intentGuards lets explicit intent markers bypass hypothetical framing only.
func intentGuards(guard string) bool { return guard != GuardHypothetical }

// dvGuards applies only quotation and hypothetical framing; DV markers describe
// another person's actions by nature.
func dvGuards(guard string) bool { return guard == GuardQuotation || guard == GuardHypothetical }

// =============================================================================
// HELPERS
// =============================================================================

func alternation(phrases []string) string {
	sorted := append([]string(nil), phrases...)
	// Longest first so "do not" wins over "do".
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	parts := make([]string, 0, len(sorted))
	for _, p := range sorted {
		if p == "" {
			continue
		}
		parts = append(parts, strings.ReplaceAll(regexp.QuoteMeta(p), " ", `\s+`))
	}
	return strings.Join(parts, "|")
}

func sentenceEnd(text string, from int) int {
	if i := strings.IndexAny(text[from:], ".!?;\n"); i >= 0 {
		return from + i
	}
	return len(text)
}
