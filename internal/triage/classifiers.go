// Package triage classifies a single message: it normalizes the text, runs
// every marker classifier, applies the disambiguation guards to the suicide
// and domestic-violence markers, and resolves exactly one response category
// through a fixed priority cascade.
//
// Everything here is pure. A Classifier is built once per catalog and is safe
// for concurrent use.
package triage

import (
	"companion/internal/catalog"
	"companion/internal/types"
)

// Synthetic marker recorded when euthanasia is inferred from word co-occurrence.
const euthanasiaCooccurrenceMarker = "put+down/sleep+animal"

// DeathResult is the death/grief classifier's verdict with its subtype flags.
type DeathResult struct {
	MarkerResult
	Traumatic      bool `json:"traumatic"`
	Euthanasia     bool `json:"euthanasia"`
	FoundDeceased  bool `json:"foundDeceased"`
	DecisionFramed bool `json:"decisionFramed"`
}

// Subtype returns the death category by subtype priority:
// traumatic > euthanasia > general (unless found deceased) > found deceased.
// It returns "" when no death was detected.
func (d DeathResult) Subtype() types.Category {
	switch {
	case !d.Detected:
		return ""
	case d.Traumatic:
		return types.CategoryDeathTraumatic
	case d.Euthanasia:
		return types.CategoryDeathEuthanasia
	case !d.FoundDeceased:
		return types.CategoryDeathGeneral
	default:
		return types.CategoryDeathFoundDeceased
	}
}

// Signals holds every classifier output for one message.
type Signals struct {
	Suicide         SuicideAssessment `json:"suicide"`
	DV              MarkerResult      `json:"dv"`
	MDD             MarkerResult      `json:"mdd"`
	Paralysis       MarkerResult      `json:"paralysis"`
	Neurodivergent  MarkerResult      `json:"neurodivergent"`
	Death           DeathResult       `json:"death"`
	Anticipatory    MarkerResult      `json:"anticipatory"`
	Emergency       MarkerResult      `json:"emergency"`
	Scam            MarkerResult      `json:"scam"`
	FoundPet        MarkerResult      `json:"foundPet"`
	LostPet         MarkerResult      `json:"lostPet"`
	Guilt           MarkerResult      `json:"guilt"`
	Disenfranchised MarkerResult      `json:"disenfranchised"`
	Pediatric       MarkerResult      `json:"pediatric"`
	QualityOfLife   MarkerResult      `json:"qualityOfLife"`

	// MDDEuthanasiaException is set when the only MDD marker is the configured
	// euthanasia self-blame phrase and the death subtype is euthanasia.
	MDDEuthanasiaException bool `json:"mddEuthanasiaException"`

	// GuardsTriggered lists "<guard>:<marker>" for every suppressed marker.
	GuardsTriggered []string `json:"guardsTriggered"`
}

// Classifier runs all marker classifiers against one catalog.
type Classifier struct {
	markers  catalog.MarkerSpec
	guards   *GuardSet
	maxRunes int
}

// NewClassifier compiles the guards for cat. maxRunes bounds classified text
// (<= 0 uses DefaultMaxMessageRunes).
func NewClassifier(cat *catalog.Catalog, maxRunes int) *Classifier {
	return &Classifier{
		markers:  cat.Markers(),
		guards:   NewGuardSet(cat.Guards()),
		maxRunes: maxRunes,
	}
}

// WithGuards returns a copy of c that uses a different guard set.
func (c *Classifier) WithGuards(gs *GuardSet) *Classifier {
	cp := *c
	cp.guards = gs
	return &cp
}

// Classify normalizes message and runs every classifier.
func (c *Classifier) Classify(message string) Signals {
	return c.ClassifyNormalized(Normalize(message, c.maxRunes))
}

// ClassifyNormalized runs every classifier over already-normalized text.
func (c *Classifier) ClassifyNormalized(text string) Signals {
	m := c.markers
	spans := c.guards.Spans(text)

	var s Signals
	s.Suicide = AssessSuicide(text, m.Suicide, spans)
	s.GuardsTriggered = append(s.GuardsTriggered, s.Suicide.Suppressed...)

	dvMatched := concat(matchMarkers(text, m.DV.Danger), matchMarkers(text, m.DV.CoerciveControl))
	dvKept, dvSuppressed := filterMarkers(text, dvMatched, spans, dvGuards)
	s.DV = result(dvKept)
	s.GuardsTriggered = append(s.GuardsTriggered, dvSuppressed...)

	s.Death = ClassifyDeath(text, m.Death)

	s.MDD = result(matchMarkers(text, m.MDD.Markers))
	if s.MDD.Detected && s.Death.Subtype() == types.CategoryDeathEuthanasia &&
		len(s.MDD.Markers) == 1 && s.MDD.Markers[0] == m.MDD.EuthanasiaSelfBlamePhrase {
		s.MDDEuthanasiaException = true
	}

	s.Paralysis = result(matchMarkers(text, m.Paralysis))
	s.Neurodivergent = result(matchMarkers(text, m.Neurodivergent))
	s.Anticipatory = ClassifyAnticipatory(text, m.Anticipatory)
	s.Emergency = result(concat(matchMarkers(text, m.Emergency.Veterinary), matchMarkers(text, m.Emergency.LifeThreatening)))
	s.Scam = result(matchMarkers(text, m.Scam))
	s.FoundPet = result(matchMarkers(text, m.FoundPet))
	s.LostPet = result(matchMarkers(text, m.LostPet))
	s.Guilt = result(matchMarkers(text, m.Guilt))
	s.Disenfranchised = result(matchMarkers(text, m.Disenfranchised))
	s.Pediatric = result(matchMarkers(text, m.Pediatric))

	qol := matchMarkers(text, m.QualityOfLife)
	if s.Death.DecisionFramed {
		// A framed euthanasia mention is a decision still being made.
		qol = appendMissing(qol, euthanasiaEvidence(text, m.Death)...)
	}
	s.QualityOfLife = result(qol)

	if s.GuardsTriggered == nil {
		s.GuardsTriggered = []string{}
	}
	return s
}

// ClassifyDeath detects a death and its subtype flags.
//
// Beyond the configured lists, euthanasia also fires on "put" together with
// "down" or "sleep" and an animal noun. Euthanasia evidence under decision
// framing ("should we put her down") is not a death; it is reported through
// DecisionFramed and routed to quality of life.
func ClassifyDeath(text string, m catalog.DeathMarkers) DeathResult {
	general := matchMarkers(text, m.General)
	found := matchMarkers(text, m.FoundDeceased)
	euth := euthanasiaEvidence(text, m)
	framed := len(euth) > 0 && len(matchMarkers(text, m.DecisionFraming)) > 0
	if framed {
		euth = nil
	}

	var d DeathResult
	d.DecisionFramed = framed
	markers := concat(general, euth, found)
	d.Detected = len(markers) > 0
	if d.Detected {
		traumatic := matchMarkers(text, m.Traumatic)
		d.Traumatic = len(traumatic) > 0
		d.Euthanasia = len(euth) > 0
		d.FoundDeceased = len(found) > 0
		markers = concat(markers, traumatic)
	}
	d.MarkerResult = result(markers)
	return d
}

func euthanasiaEvidence(text string, m catalog.DeathMarkers) []string {
	evidence := matchMarkers(text, m.Euthanasia)
	if hasWord(text, "put") && (hasWord(text, "down") || hasWord(text, "sleep")) {
		for _, noun := range m.AnimalNouns {
			if hasWord(text, noun) {
				evidence = append(evidence, euthanasiaCooccurrenceMarker)
				break
			}
		}
	}
	return evidence
}

// ClassifyAnticipatory fires only when at least MinDistinct non-overlapping
// markers are present; a single marker never fires.
func ClassifyAnticipatory(text string, m catalog.AnticipatoryMarkers) MarkerResult {
	min := m.MinDistinct
	if min < 2 {
		min = 2
	}
	n, matched := countDistinct(text, m.Markers)
	if n < min {
		return MarkerResult{Detected: false, Markers: nonNil(matched)}
	}
	return result(matched)
}

func appendMissing(list []string, items ...string) []string {
	for _, it := range items {
		dup := false
		for _, l := range list {
			if l == it {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, it)
		}
	}
	return list
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
