// Package conversation holds the cross-turn state of one conversation: the
// accumulated facts, the anti-repetition intent ledger, the volatility tracker
// and the mode transition table.
//
// Every value here is plain data. Update functions take a prior value and
// return a new one; nothing is mutated in place, so a conversation can be
// replayed turn by turn from its inputs.
package conversation

import (
	"regexp"
	"sort"
	"strings"

	"companion/internal/catalog"
	"companion/internal/types"
)

// SimpleFacts is what the companion knows about the user and their pet.
// Empty strings are unknown.
type SimpleFacts struct {
	PetName          string `json:"petName,omitempty"`
	Species          string `json:"species,omitempty"`
	Breed            string `json:"breed,omitempty"`
	LossType         string `json:"lossType,omitempty"`
	LastSeenLocation string `json:"lastSeenLocation,omitempty"`
	LastSeenTime     string `json:"lastSeenTime,omitempty"`
	UserSafety       string `json:"userSafety,omitempty"`
	Region           string `json:"region,omitempty"`
	VetContacted     string `json:"vetContacted,omitempty"`
}

// Values for the enumerated facts.
const (
	SafetySafe   = "safe"
	SafetyUnsafe = "unsafe"
	VetYes       = "yes"
	VetNo        = "no"
)

// Get returns the value of a fact by key.
func (f SimpleFacts) Get(key types.FactKey) string {
	if p := f.field(key); p != nil {
		return *p
	}
	return ""
}

// Has reports whether the fact is known.
func (f SimpleFacts) Has(key types.FactKey) bool {
	return strings.TrimSpace(f.Get(key)) != ""
}

// With returns a copy with key set to value. This is the explicit-correction
// path: unlike MergeFacts it may clear a fact.
func (f SimpleFacts) With(key types.FactKey, value string) SimpleFacts {
	if p := f.field(key); p != nil {
		*p = strings.TrimSpace(value)
	}
	return f
}

// Known lists the known fact keys in canonical order.
func (f SimpleFacts) Known() []types.FactKey {
	var out []types.FactKey
	for _, key := range types.AllFactKeys() {
		if f.Has(key) {
			out = append(out, key)
		}
	}
	return out
}

// field returns a pointer into the receiver copy.
func (f *SimpleFacts) field(key types.FactKey) *string {
	switch key {
	case types.FactPetName:
		return &f.PetName
	case types.FactSpecies:
		return &f.Species
	case types.FactBreed:
		return &f.Breed
	case types.FactLossType:
		return &f.LossType
	case types.FactLastSeenLocation:
		return &f.LastSeenLocation
	case types.FactLastSeenTime:
		return &f.LastSeenTime
	case types.FactUserSafety:
		return &f.UserSafety
	case types.FactRegion:
		return &f.Region
	case types.FactVetContacted:
		return &f.VetContacted
	}
	return nil
}

// MergeFacts is a field-wise union: a non-empty value in update wins, an empty
// value never overwrites what prior already knows.
func MergeFacts(prior, update SimpleFacts) SimpleFacts {
	out := prior
	for _, key := range types.AllFactKeys() {
		if v := strings.TrimSpace(update.Get(key)); v != "" {
			out = out.With(key, v)
		}
	}
	return out
}

// =============================================================================
// EXTRACTION
// =============================================================================

// LossTypeFor maps a resolved category to the lossType fact it implies.
// Categories that say nothing about the loss return "".
func LossTypeFor(cat types.Category) string {
	switch cat {
	case types.CategoryDeathTraumatic:
		return "traumatic_death"
	case types.CategoryDeathEuthanasia:
		return "euthanasia"
	case types.CategoryDeathGeneral:
		return "death"
	case types.CategoryDeathFoundDeceased:
		return "found_deceased"
	case types.CategoryAnticipatory, types.CategoryQualityOfLife:
		return "anticipatory"
	case types.CategoryLostPet:
		return "lost"
	case types.CategoryFoundPet:
		return "found"
	}
	return ""
}

var (
	namePossessive = regexp.MustCompile(`\b(?:his|her|their|its|my pet's|my dog's|my cat's) name (?:is|was) ([a-z][a-z'-]*)`)
	// "named"/"called" only introduce a name after the pet or a pet subject,
	// never after the speaker ("i called the shelters").
	nameSubjects  = []string{"pet", "boy", "girl", "baby", "he", "she", "it", "he's", "she's", "it's", "he is", "she is", "it is", "he was", "she was", "it was", "was", "is"}
	nameStopwords = map[string]bool{
		"a": true, "an": true, "and": true, "animal": true, "back": true, "by": true, "control": true,
		"for": true, "her": true, "him": true, "his": true, "it": true, "me": true,
		"my": true, "our": true, "out": true, "over": true, "the": true, "their": true,
		"them": true, "to": true, "up": true, "us": true, "vet": true, "your": true,
	}

	lostCue      = regexp.MustCompile(`\b(?:last seen|went missing|is missing|been missing|ran off|ran away|got out|escaped|disappeared|slipped out|haven't seen)\b`)
	locationCue  = regexp.MustCompile(`\b(?:last seen|ran off|ran away|got out|escaped|disappeared|went missing|slipped out) (?:at|in|near|on|by|around|from|behind|outside) ((?:[a-z0-9'-]+ ?){1,6})`)
	timePattern  = regexp.MustCompile(`\b(?:yesterday|today|tonight|this morning|this afternoon|this evening|last night|(?:\d+|a|an|one|two|three|four|five|a few|a couple of) (?:minutes?|hours?|days?|weeks?) ago|(?:on|since|last) (?:monday|tuesday|wednesday|thursday|friday|saturday|sunday))\b`)
	unsafeCue    = regexp.MustCompile(`\b(?:i'm not safe|i am not safe|not safe right now|i don't feel safe)\b`)
	safeCue      = regexp.MustCompile(`\b(?:i'm safe|i am safe|i'm okay now|i'm ok now|i won't hurt myself|i'm not going to hurt myself|i am not going to hurt myself|i feel safe)\b`)
	vetNoCue     = regexp.MustCompile(`\b(?:haven't called the vet|can't reach the vet|couldn't reach the vet|didn't call the vet|vet is closed|vet's closed|no vet|can't afford the vet)\b`)
	vetYesCue    = regexp.MustCompile(`\b(?:called the vet|at the vet|the vet said|the vet says|vet told|talked to the vet|spoke to the vet|spoke with the vet|to the vet|emergency vet is|vet appointment)\b`)
	trailingTime = regexp.MustCompile(`\s*\b(?:yesterday|today|tonight|this (?:morning|afternoon|evening)|last night|on|since|at|around|about|and|but|\d+ \w+ ago)\b.*$`)
)

// Extractor pulls facts out of one normalized message using the catalog's
// species and breed vocabularies.
type Extractor struct {
	species []vocabEntry
	breeds  []vocabEntry
	names   []*regexp.Regexp
}

type vocabEntry struct {
	value string
	re    *regexp.Regexp
}

// NewExtractor compiles the vocabulary patterns. Species are tried in sorted
// order so extraction is deterministic.
func NewExtractor(vocab catalog.Vocabulary) *Extractor {
	e := &Extractor{}
	names := make([]string, 0, len(vocab.Species))
	for name := range vocab.Species {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, word := range vocab.Species[name] {
			e.species = append(e.species, vocabEntry{value: name, re: wordPattern(word)})
		}
	}
	for _, breed := range vocab.Breeds {
		e.breeds = append(e.breeds, vocabEntry{value: breed, re: wordPattern(breed)})
	}

	subjects := append([]string(nil), nameSubjects...)
	for _, name := range names {
		subjects = append(subjects, vocab.Species[name]...)
	}
	quoted := make([]string, len(subjects))
	for i, w := range subjects {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(w), " ", `\s+`)
	}
	e.names = []*regexp.Regexp{
		namePossessive,
		regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)s?,?\s+(?:named|called)\s+([a-z][a-z'-]*)`),
	}
	return e
}

func wordPattern(phrase string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + strings.ReplaceAll(regexp.QuoteMeta(phrase), " ", `\s+`) + `s?\b`)
}

// Extract returns the facts stated in text. cat is the category resolved for
// the same turn and only feeds lossType. Region is not extracted here; it is
// detected against the hotline table by the template layer.
func (e *Extractor) Extract(text string, cat types.Category) SimpleFacts {
	var f SimpleFacts
	f.PetName = e.extractName(text)
	f.Species = earliest(text, e.species)
	f.Breed = earliest(text, e.breeds)
	f.LossType = LossTypeFor(cat)

	if lostCue.MatchString(text) {
		if m := locationCue.FindStringSubmatch(text); m != nil {
			f.LastSeenLocation = strings.TrimSpace(trailingTime.ReplaceAllString(m[1], ""))
		}
		f.LastSeenTime = timePattern.FindString(text)
	}

	switch {
	case unsafeCue.MatchString(text):
		f.UserSafety = SafetyUnsafe
	case safeCue.MatchString(text):
		f.UserSafety = SafetySafe
	}

	switch {
	case vetNoCue.MatchString(text):
		f.VetContacted = VetNo
	case vetYesCue.MatchString(text):
		f.VetContacted = VetYes
	}
	return f
}

func (e *Extractor) extractName(text string) string {
	for _, re := range e.names {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			name := strings.Trim(m[1], "'-")
			if name == "" || nameStopwords[name] {
				continue
			}
			return strings.ToUpper(name[:1]) + name[1:]
		}
	}
	return ""
}

// earliest returns the entry whose match starts first, preferring the longer
// match on a tie ("french bulldog" over "bulldog").
func earliest(text string, entries []vocabEntry) string {
	best, bestStart, bestLen := "", -1, 0
	for _, e := range entries {
		loc := e.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		length := loc[1] - loc[0]
		if bestStart < 0 || loc[0] < bestStart || loc[0] == bestStart && length > bestLen {
			best, bestStart, bestLen = e.value, loc[0], length
		}
	}
	return best
}
