package conversation

import (
	"sort"

	"companion/internal/types"
)

// DefaultQuestionCooldown is the minimum number of turns between two asks of
// the same question.
const DefaultQuestionCooldown = 3

// Reasons reported by CanAsk.
const (
	AskAllowed       = "allowed"
	AskFactKnown     = "fact_known"
	AskCooldown      = "cooldown"
	AskUnknownIntent = "unknown_intent"
)

// AskedQuestion records one question put to the user.
type AskedQuestion struct {
	Intent    types.QuestionIntent `json:"intent"`
	TurnIndex int                  `json:"turnIndex"`
}

// IntentLedger is the append-only record of asked questions and known facts
// for one conversation. KnownFactKeys is kept sorted so equal ledgers encode
// identically.
type IntentLedger struct {
	AskedQuestions []AskedQuestion `json:"askedQuestions"`
	KnownFactKeys  []types.FactKey `json:"knownFactKeys"`
}

// NewIntentLedger returns the empty ledger a conversation starts with.
func NewIntentLedger() IntentLedger {
	return IntentLedger{AskedQuestions: []AskedQuestion{}, KnownFactKeys: []types.FactKey{}}
}

// Knows reports whether the ledger has recorded key as known.
func (l IntentLedger) Knows(key types.FactKey) bool {
	for _, k := range l.KnownFactKeys {
		if k == key {
			return true
		}
	}
	return false
}

// LastAsked returns the most recent turn at which q was asked.
func (l IntentLedger) LastAsked(q types.QuestionIntent) (int, bool) {
	last, found := 0, false
	for _, a := range l.AskedQuestions {
		if a.Intent == q && (!found || a.TurnIndex > last) {
			last, found = a.TurnIndex, true
		}
	}
	return last, found
}

// AskDecision is the result of CanAsk.
type AskDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// CanAsk decides whether q may be asked at turnIndex. A question is never
// allowed once the fact it elicits is known, either in facts or in the
// ledger, and is held back for cooldown turns after it was last asked.
func CanAsk(l IntentLedger, q types.QuestionIntent, facts SimpleFacts, turnIndex, cooldown int) AskDecision {
	key, ok := q.Elicits()
	if !ok {
		return AskDecision{Reason: AskUnknownIntent}
	}
	if facts.Has(key) || l.Knows(key) {
		return AskDecision{Reason: AskFactKnown}
	}
	if cooldown <= 0 {
		cooldown = DefaultQuestionCooldown
	}
	if last, asked := l.LastAsked(q); asked && turnIndex-last < cooldown {
		return AskDecision{Reason: AskCooldown}
	}
	return AskDecision{Allowed: true, Reason: AskAllowed}
}

// RecordAsked returns a new ledger with q appended at turnIndex.
func RecordAsked(l IntentLedger, q types.QuestionIntent, turnIndex int) IntentLedger {
	out := l.clone()
	out.AskedQuestions = append(out.AskedQuestions, AskedQuestion{Intent: q, TurnIndex: turnIndex})
	return out
}

// UpdateFromFacts returns a new ledger whose known keys include every fact
// known in facts. Keys are never removed.
func UpdateFromFacts(l IntentLedger, facts SimpleFacts) IntentLedger {
	out := l.clone()
	for _, key := range facts.Known() {
		if !out.Knows(key) {
			out.KnownFactKeys = append(out.KnownFactKeys, key)
		}
	}
	sort.Slice(out.KnownFactKeys, func(i, j int) bool { return out.KnownFactKeys[i] < out.KnownFactKeys[j] })
	return out
}

// NextQuestion returns the first question in plan that CanAsk allows.
func NextQuestion(l IntentLedger, plan []types.QuestionIntent, facts SimpleFacts, turnIndex, cooldown int) (types.QuestionIntent, bool) {
	for _, q := range plan {
		if CanAsk(l, q, facts, turnIndex, cooldown).Allowed {
			return q, true
		}
	}
	return "", false
}

func (l IntentLedger) clone() IntentLedger {
	out := IntentLedger{
		AskedQuestions: make([]AskedQuestion, len(l.AskedQuestions), len(l.AskedQuestions)+1),
		KnownFactKeys:  make([]types.FactKey, len(l.KnownFactKeys), len(l.KnownFactKeys)+1),
	}
	copy(out.AskedQuestions, l.AskedQuestions)
	copy(out.KnownFactKeys, l.KnownFactKeys)
	return out
}
