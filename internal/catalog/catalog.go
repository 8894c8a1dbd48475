// Package catalog holds the immutable configuration the triage pipeline runs
// against: marker phrase sets, guard vocabularies, response templates, hotline
// numbers and the forbidden-phrase deny-list.
//
// A Catalog is built once (from the embedded defaults or a YAML file), validated,
// and then shared read-only by every conversation. Nothing in this package is
// consulted through package-level state by the classifiers; callers pass the
// *Catalog explicitly.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"companion/internal/types"

	"gopkg.in/yaml.v3"
)

// SchemaVersion is the version of the category enum and catalog layout.
const SchemaVersion = "2"

//go:embed defaults/catalog.yaml
var defaultCatalogYAML []byte

// =============================================================================
// FILE SCHEMA
// =============================================================================

// File mirrors the YAML layout of a catalog file.
type File struct {
	Version          string                       `yaml:"version"`
	Markers          MarkerSpec                   `yaml:"markers"`
	Guards           GuardSpec                    `yaml:"guards"`
	ForbiddenPhrases []string                     `yaml:"forbidden_phrases"`
	Regions          RegionSpec                   `yaml:"regions"`
	Hotlines         map[string]map[string]string `yaml:"hotlines"`
	Templates        map[string]Template          `yaml:"templates"`
	Fallbacks        Fallbacks                    `yaml:"fallbacks"`
	Questions        map[string]string            `yaml:"questions"`
	FollowUps        map[string][]string          `yaml:"followups"`
	Vocabulary       Vocabulary                   `yaml:"vocabulary"`
}

// MarkerSpec lists the marker phrases for every classifier.
type MarkerSpec struct {
	Suicide         SuicideMarkers      `yaml:"suicide"`
	DV              DVMarkers           `yaml:"dv"`
	MDD             MDDMarkers          `yaml:"mdd"`
	Paralysis       []string            `yaml:"paralysis"`
	Neurodivergent  []string            `yaml:"neurodivergent"`
	Death           DeathMarkers        `yaml:"death"`
	Anticipatory    AnticipatoryMarkers `yaml:"anticipatory"`
	Emergency       EmergencyMarkers    `yaml:"emergency"`
	Scam            []string            `yaml:"scam"`
	FoundPet        []string            `yaml:"found_pet"`
	LostPet         []string            `yaml:"lost_pet"`
	Guilt           []string            `yaml:"guilt"`
	Disenfranchised []string            `yaml:"disenfranchised"`
	Pediatric       []string            `yaml:"pediatric"`
	QualityOfLife   []string            `yaml:"quality_of_life"`
}

// SuicideMarkers are split by risk level. Means and timeframe markers only
// contribute in combination (see triage.AssessSuicide).
type SuicideMarkers struct {
	Passive   []string `yaml:"passive"`
	Active    []string `yaml:"active"`
	Intent    []string `yaml:"intent"`
	Means     []string `yaml:"means"`
	Timeframe []string `yaml:"timeframe"`
}

// DVMarkers covers immediate danger and coercive control.
type DVMarkers struct {
	Danger          []string `yaml:"danger"`
	CoerciveControl []string `yaml:"coercive_control"`
}

// MDDMarkers holds depression markers and the single euthanasia self-blame
// phrase that falls through to death handling when it is the only match.
type MDDMarkers struct {
	Markers                   []string `yaml:"markers"`
	EuthanasiaSelfBlamePhrase string   `yaml:"euthanasia_self_blame_phrase"`
}

// DeathMarkers drives the death/grief classifier and its subtypes.
type DeathMarkers struct {
	General         []string `yaml:"general"`
	Traumatic       []string `yaml:"traumatic"`
	Euthanasia      []string `yaml:"euthanasia"`
	FoundDeceased   []string `yaml:"found_deceased"`
	AnimalNouns     []string `yaml:"animal_nouns"`
	DecisionFraming []string `yaml:"decision_framing"`
}

// AnticipatoryMarkers fire only when MinDistinct different markers match.
type AnticipatoryMarkers struct {
	Markers     []string `yaml:"markers"`
	MinDistinct int      `yaml:"min_distinct"`
}

// EmergencyMarkers covers veterinary emergencies and life-threatening signs.
type EmergencyMarkers struct {
	Veterinary      []string `yaml:"veterinary"`
	LifeThreatening []string `yaml:"life_threatening"`
}

// GuardSpec configures the disambiguation guards.
type GuardSpec struct {
	NegationTokens     []string `yaml:"negation_tokens"`
	NegationTargets    []string `yaml:"negation_targets"`
	NegationMaxGap     int      `yaml:"negation_max_gap"`
	ThirdPartySubjects []string `yaml:"third_party_subjects"`
	ThirdPartyVerbs    []string `yaml:"third_party_verbs"`
	ReportedSpeech     []string `yaml:"reported_speech"`
	FirstPerson        []string `yaml:"first_person"`
	Hypothetical       []string `yaml:"hypothetical"`
}

// RegionSpec maps locale keywords to region codes.
type RegionSpec struct {
	Default  string              `yaml:"default"`
	Keywords map[string][]string `yaml:"keywords"`
}

// Template is the configured response for one category.
type Template struct {
	Text        string   `yaml:"text"`
	Forbidden   []string `yaml:"forbidden"`
	MustContain []string `yaml:"must_contain"`
	Generative  bool     `yaml:"generative"`
}

// Fallbacks are the safe responses substituted when a render fails its guard.
type Fallbacks struct {
	Crisis  Template `yaml:"crisis"`
	General Template `yaml:"general"`
}

// Vocabulary feeds fact extraction.
type Vocabulary struct {
	Species map[string][]string `yaml:"species"`
	Breeds  []string            `yaml:"breeds"`
}

// =============================================================================
// CATALOG
// =============================================================================

// Catalog is the validated, immutable configuration value.
// All accessors return data owned by the catalog; callers must not modify it.
type Catalog struct {
	version   string
	markers   MarkerSpec
	guards    GuardSpec
	forbidden []string
	regions   RegionSpec
	hotlines  map[string]string
	templates map[types.Category]Template
	fallbacks Fallbacks
	questions map[types.QuestionIntent]string
	followups map[types.Category][]types.QuestionIntent
	vocab     Vocabulary
	source    string
}

// Default parses the embedded default catalog.
// The embedded catalog is validated by tests, so an error here is a build defect.
func Default() (*Catalog, error) {
	cat, err := Parse(defaultCatalogYAML)
	if err != nil {
		return nil, fmt.Errorf("embedded catalog: %w", err)
	}
	cat.source = "embedded"
	return cat, nil
}

// MustDefault is Default for tests and program initialisation.
func MustDefault() *Catalog {
	cat, err := Default()
	if err != nil {
		panic(err)
	}
	return cat
}

// DefaultYAML returns a copy of the embedded catalog source.
func DefaultYAML() []byte {
	out := make([]byte, len(defaultCatalogYAML))
	copy(out, defaultCatalogYAML)
	return out
}

// Load reads and validates a catalog file. An empty path loads the defaults.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	cat.source = path
	return cat, nil
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(f)
}

// New normalises and validates a decoded catalog file.
func New(f File) (*Catalog, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	c := &Catalog{
		version:   f.Version,
		markers:   normalizeMarkers(f.Markers),
		guards:    normalizeGuards(f.Guards),
		forbidden: normalizeList(f.ForbiddenPhrases),
		regions:   normalizeRegions(f.Regions),
		hotlines:  flattenHotlines(f.Hotlines),
		templates: make(map[types.Category]Template, len(f.Templates)),
		fallbacks: Fallbacks{
			Crisis:  normalizeTemplate(f.Fallbacks.Crisis),
			General: normalizeTemplate(f.Fallbacks.General),
		},
		questions: make(map[types.QuestionIntent]string, len(f.Questions)),
		followups: make(map[types.Category][]types.QuestionIntent, len(f.FollowUps)),
		vocab:     normalizeVocabulary(f.Vocabulary),
		source:    "inline",
	}
	for key, tpl := range f.Templates {
		c.templates[types.Category(key)] = normalizeTemplate(tpl)
	}
	for key, prompt := range f.Questions {
		c.questions[types.QuestionIntent(key)] = strings.TrimSpace(prompt)
	}
	for key, intents := range f.FollowUps {
		plan := make([]types.QuestionIntent, 0, len(intents))
		for _, q := range intents {
			plan = append(plan, types.QuestionIntent(strings.TrimSpace(q)))
		}
		c.followups[types.Category(key)] = plan
	}
	return c, nil
}

// Version returns the catalog schema version.
func (c *Catalog) Version() string { return c.version }

// Source describes where the catalog was loaded from.
func (c *Catalog) Source() string { return c.source }

// Markers returns the marker phrase sets.
func (c *Catalog) Markers() MarkerSpec { return c.markers }

// Guards returns the guard vocabularies.
func (c *Catalog) Guards() GuardSpec { return c.guards }

// ForbiddenPhrases returns the catalog-wide deny-list.
func (c *Catalog) ForbiddenPhrases() []string { return c.forbidden }

// Regions returns the region heuristics.
func (c *Catalog) Regions() RegionSpec { return c.regions }

// Vocabulary returns the fact-extraction vocabulary.
func (c *Catalog) Vocabulary() Vocabulary { return c.vocab }

// Template returns the template for a category. Validation guarantees every
// category has one; an unknown category yields the general template.
func (c *Catalog) Template(cat types.Category) Template {
	if tpl, ok := c.templates[cat]; ok {
		return tpl
	}
	return c.templates[types.CategoryGeneral]
}

// Fallbacks returns the safe fallback templates.
func (c *Catalog) Fallbacks() Fallbacks { return c.fallbacks }

// Hotline looks up a flattened hotline path such as "US.crisis".
func (c *Catalog) Hotline(path string) (string, bool) {
	v, ok := c.hotlines[strings.ToUpper(firstSegment(path))+restSegments(path)]
	return v, ok
}

// HotlineRegions returns the region codes with configured hotlines, sorted.
func (c *Catalog) HotlineRegions() []string {
	seen := make(map[string]bool)
	for key := range c.hotlines {
		seen[firstSegment(key)] = true
	}
	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Question returns the prompt text for a question intent.
func (c *Catalog) Question(q types.QuestionIntent) (string, bool) {
	prompt, ok := c.questions[q]
	return prompt, ok && prompt != ""
}

// FollowUps returns the ordered question plan for a category.
func (c *Catalog) FollowUps(cat types.Category) []types.QuestionIntent {
	return c.followups[cat]
}

// =============================================================================
// NORMALISATION
// =============================================================================

// NormalizePhrase lower-cases a configured phrase and collapses its whitespace.
// Messages are normalised more aggressively by triage.Normalize; configured
// phrases are authored text and only need case and spacing folded.
func NormalizePhrase(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("’", "'", "‘", "'", "“", "\"", "”", "\"").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		n := NormalizePhrase(s)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func normalizeMarkers(m MarkerSpec) MarkerSpec {
	return MarkerSpec{
		Suicide: SuicideMarkers{
			Passive:   normalizeList(m.Suicide.Passive),
			Active:    normalizeList(m.Suicide.Active),
			Intent:    normalizeList(m.Suicide.Intent),
			Means:     normalizeList(m.Suicide.Means),
			Timeframe: normalizeList(m.Suicide.Timeframe),
		},
		DV: DVMarkers{
			Danger:          normalizeList(m.DV.Danger),
			CoerciveControl: normalizeList(m.DV.CoerciveControl),
		},
		MDD: MDDMarkers{
			Markers:                   normalizeList(m.MDD.Markers),
			EuthanasiaSelfBlamePhrase: NormalizePhrase(m.MDD.EuthanasiaSelfBlamePhrase),
		},
		Paralysis:      normalizeList(m.Paralysis),
		Neurodivergent: normalizeList(m.Neurodivergent),
		Death: DeathMarkers{
			General:         normalizeList(m.Death.General),
			Traumatic:       normalizeList(m.Death.Traumatic),
			Euthanasia:      normalizeList(m.Death.Euthanasia),
			FoundDeceased:   normalizeList(m.Death.FoundDeceased),
			AnimalNouns:     normalizeList(m.Death.AnimalNouns),
			DecisionFraming: normalizeList(m.Death.DecisionFraming),
		},
		Anticipatory: AnticipatoryMarkers{
			Markers:     normalizeList(m.Anticipatory.Markers),
			MinDistinct: m.Anticipatory.MinDistinct,
		},
		Emergency: EmergencyMarkers{
			Veterinary:      normalizeList(m.Emergency.Veterinary),
			LifeThreatening: normalizeList(m.Emergency.LifeThreatening),
		},
		Scam:            normalizeList(m.Scam),
		FoundPet:        normalizeList(m.FoundPet),
		LostPet:         normalizeList(m.LostPet),
		Guilt:           normalizeList(m.Guilt),
		Disenfranchised: normalizeList(m.Disenfranchised),
		Pediatric:       normalizeList(m.Pediatric),
		QualityOfLife:   normalizeList(m.QualityOfLife),
	}
}

func normalizeGuards(g GuardSpec) GuardSpec {
	return GuardSpec{
		NegationTokens:     normalizeList(g.NegationTokens),
		NegationTargets:    normalizeList(g.NegationTargets),
		NegationMaxGap:     g.NegationMaxGap,
		ThirdPartySubjects: normalizeList(g.ThirdPartySubjects),
		ThirdPartyVerbs:    normalizeList(g.ThirdPartyVerbs),
		ReportedSpeech:     normalizeList(g.ReportedSpeech),
		FirstPerson:        normalizeList(g.FirstPerson),
		Hypothetical:       normalizeList(g.Hypothetical),
	}
}

func normalizeRegions(r RegionSpec) RegionSpec {
	out := RegionSpec{
		Default:  strings.ToUpper(strings.TrimSpace(r.Default)),
		Keywords: make(map[string][]string, len(r.Keywords)),
	}
	for region, words := range r.Keywords {
		out.Keywords[strings.ToUpper(strings.TrimSpace(region))] = normalizeList(words)
	}
	return out
}

func normalizeTemplate(t Template) Template {
	return Template{
		Text:        strings.TrimSpace(t.Text),
		Forbidden:   normalizeList(t.Forbidden),
		MustContain: trimList(t.MustContain),
		Generative:  t.Generative,
	}
}

func normalizeVocabulary(v Vocabulary) Vocabulary {
	out := Vocabulary{
		Species: make(map[string][]string, len(v.Species)),
		Breeds:  normalizeList(v.Breeds),
	}
	for species, words := range v.Species {
		out.Species[NormalizePhrase(species)] = normalizeList(words)
	}
	return out
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func flattenHotlines(in map[string]map[string]string) map[string]string {
	out := make(map[string]string)
	for region, lines := range in {
		for name, number := range lines {
			out[strings.ToUpper(strings.TrimSpace(region))+"."+strings.TrimSpace(name)] = strings.TrimSpace(number)
		}
	}
	return out
}

func firstSegment(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}

func restSegments(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[i:]
	}
	return ""
}
