package conversation

import (
	"testing"

	"companion/internal/catalog"
	"companion/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// FACTS
// =============================================================================

func TestMergeFacts(t *testing.T) {
	prior := SimpleFacts{PetName: "Biscuit", Species: "dog"}

	t.Run("empty never overwrites", func(t *testing.T) {
		got := MergeFacts(prior, SimpleFacts{})
		assert.Equal(t, prior, got)
	})

	t.Run("new non-empty wins", func(t *testing.T) {
		got := MergeFacts(prior, SimpleFacts{Species: "cat", Region: "GB"})
		assert.Equal(t, SimpleFacts{PetName: "Biscuit", Species: "cat", Region: "GB"}, got)
	})

	t.Run("whitespace is empty", func(t *testing.T) {
		got := MergeFacts(prior, SimpleFacts{PetName: "   "})
		assert.Equal(t, "Biscuit", got.PetName)
	})

	t.Run("prior untouched", func(t *testing.T) {
		_ = MergeFacts(prior, SimpleFacts{PetName: "Max"})
		assert.Equal(t, "Biscuit", prior.PetName)
	})

	t.Run("explicit correction may clear", func(t *testing.T) {
		got := prior.With(types.FactPetName, "")
		assert.False(t, got.Has(types.FactPetName))
		assert.True(t, prior.Has(types.FactPetName))
	})
}

func TestFactAccessors(t *testing.T) {
	f := SimpleFacts{PetName: "Max", Region: "CA", VetContacted: VetYes}
	assert.Equal(t, []types.FactKey{types.FactPetName, types.FactRegion, types.FactVetContacted}, f.Known())
	assert.Equal(t, "CA", f.Get(types.FactRegion))
	assert.Equal(t, "", f.Get(types.FactKey("nope")))
	assert.Equal(t, f, f.With(types.FactKey("nope"), "x"))
}

func TestExtract(t *testing.T) {
	e := NewExtractor(catalog.MustDefault().Vocabulary())

	tests := []struct {
		name string
		text string
		cat  types.Category
		want SimpleFacts
	}{
		{
			name: "name and species",
			text: "my dog named biscuit died yesterday",
			cat:  types.CategoryDeathGeneral,
			want: SimpleFacts{PetName: "Biscuit", Species: "dog", LossType: "death"},
		},
		{
			name: "name is",
			text: "her name is luna and she is a golden retriever",
			want: SimpleFacts{PetName: "Luna", Breed: "golden retriever"},
		},
		{
			name: "stopword is not a name",
			text: "i called the vet about my kitten",
			want: SimpleFacts{Species: "cat", VetContacted: VetYes},
		},
		{
			name: "species before called",
			text: "we had a little cat called pepper",
			want: SimpleFacts{PetName: "Pepper", Species: "cat"},
		},
		{
			name: "pronoun before named",
			text: "she's named rosie and she's missing",
			want: SimpleFacts{PetName: "Rosie"},
		},
		{
			name: "speaker calling is not naming",
			text: "my dog ran away, i called all the shelters",
			cat:  types.CategoryLostPet,
			want: SimpleFacts{Species: "dog", LossType: "lost"},
		},
		{
			name: "speaker calling people is not naming",
			text: "i called everyone i know about my lost dog",
			want: SimpleFacts{Species: "dog"},
		},
		{
			name: "lost details",
			text: "my cat got out near the park yesterday and has been missing since",
			cat:  types.CategoryLostPet,
			want: SimpleFacts{Species: "cat", LossType: "lost", LastSeenLocation: "the park", LastSeenTime: "yesterday"},
		},
		{
			name: "time without a lost cue is ignored",
			text: "he died yesterday",
			cat:  types.CategoryDeathGeneral,
			want: SimpleFacts{LossType: "death"},
		},
		{
			name: "earliest and longest breed",
			text: "a french bulldog and a beagle",
			want: SimpleFacts{Breed: "french bulldog"},
		},
		{
			name: "safety",
			text: "i'm safe now, thank you",
			want: SimpleFacts{UserSafety: SafetySafe},
		},
		{
			name: "not safe wins",
			text: "i am not safe",
			want: SimpleFacts{UserSafety: SafetyUnsafe},
		},
		{
			name: "vet unreachable",
			text: "i can't reach the vet and the vet is closed",
			want: SimpleFacts{VetContacted: VetNo},
		},
		{
			name: "plural species",
			text: "both my cats are hiding",
			want: SimpleFacts{Species: "cat"},
		},
		{
			name: "empty",
			text: "",
			want: SimpleFacts{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Extract(tt.text, tt.cat))
		})
	}
}

func TestLossTypeFor(t *testing.T) {
	assert.Equal(t, "euthanasia", LossTypeFor(types.CategoryDeathEuthanasia))
	assert.Equal(t, "lost", LossTypeFor(types.CategoryLostPet))
	assert.Equal(t, "", LossTypeFor(types.CategorySuicideIntent))
	assert.Equal(t, "", LossTypeFor(types.CategoryGeneral))
}

// =============================================================================
// INTENT LEDGER
// =============================================================================

func TestCanAskNeverReasksKnownFacts(t *testing.T) {
	l := NewIntentLedger()
	facts := SimpleFacts{}
	for _, q := range types.AllQuestionIntents() {
		key, ok := q.Elicits()
		require.True(t, ok)

		known := facts.With(key, "something")
		d := CanAsk(l, q, known, 100, 0)
		assert.False(t, d.Allowed, "%s with %s known", q, key)
		assert.Equal(t, AskFactKnown, d.Reason)

		d = CanAsk(UpdateFromFacts(l, known), q, facts, 100, 0)
		assert.False(t, d.Allowed, "%s known only through the ledger", q)
	}
}

func TestCanAskCooldown(t *testing.T) {
	l := RecordAsked(NewIntentLedger(), types.AskPetName, 2)

	assert.Equal(t, AskCooldown, CanAsk(l, types.AskPetName, SimpleFacts{}, 3, 3).Reason)
	assert.Equal(t, AskCooldown, CanAsk(l, types.AskPetName, SimpleFacts{}, 4, 3).Reason)
	assert.True(t, CanAsk(l, types.AskPetName, SimpleFacts{}, 5, 3).Allowed)
	assert.True(t, CanAsk(l, types.AskSpecies, SimpleFacts{}, 3, 3).Allowed, "other intents are unaffected")

	// Zero cooldown falls back to the default.
	assert.False(t, CanAsk(l, types.AskPetName, SimpleFacts{}, 4, 0).Allowed)

	d := CanAsk(l, types.QuestionIntent("ask_favorite_toy"), SimpleFacts{}, 9, 3)
	assert.Equal(t, AskDecision{Reason: AskUnknownIntent}, d)
}

func TestLedgerIsAppendOnlyValue(t *testing.T) {
	l0 := NewIntentLedger()
	l1 := RecordAsked(l0, types.AskSpecies, 0)
	l2 := RecordAsked(l1, types.AskSpecies, 4)

	assert.Empty(t, l0.AskedQuestions)
	assert.Len(t, l1.AskedQuestions, 1)
	assert.Len(t, l2.AskedQuestions, 2)

	last, ok := l2.LastAsked(types.AskSpecies)
	require.True(t, ok)
	assert.Equal(t, 4, last)

	l3 := UpdateFromFacts(l2, SimpleFacts{Species: "dog", PetName: "Max"})
	assert.Equal(t, []types.FactKey{types.FactPetName, types.FactSpecies}, l3.KnownFactKeys)
	assert.Empty(t, l2.KnownFactKeys)

	l4 := UpdateFromFacts(l3, SimpleFacts{})
	assert.Equal(t, l3.KnownFactKeys, l4.KnownFactKeys, "known keys are never removed")
}

func TestNextQuestion(t *testing.T) {
	plan := []types.QuestionIntent{types.AskPetName, types.AskSpecies, types.AskLastSeenLocation}
	l := NewIntentLedger()

	q, ok := NextQuestion(l, plan, SimpleFacts{PetName: "Max"}, 0, 3)
	require.True(t, ok)
	assert.Equal(t, types.AskSpecies, q)

	l = RecordAsked(l, types.AskSpecies, 0)
	q, ok = NextQuestion(l, plan, SimpleFacts{PetName: "Max"}, 1, 3)
	require.True(t, ok)
	assert.Equal(t, types.AskLastSeenLocation, q)

	_, ok = NextQuestion(l, nil, SimpleFacts{}, 1, 3)
	assert.False(t, ok)
}

// =============================================================================
// VOLATILITY
// =============================================================================

func TestTurnScore(t *testing.T) {
	assert.Equal(t, 10, TurnScore(types.TierStandard, 0))
	assert.Equal(t, 42, TurnScore(types.TierMedium, 2))
	assert.Equal(t, 74, TurnScore(types.TierHigh, 9))
	assert.Equal(t, 95, TurnScore(types.TierCritical, -1))
}

func track(scores ...int) VolatilityTracker {
	t := NewVolatilityTracker()
	for _, s := range scores {
		t = UpdateVolatility(t, s, types.TierStandard, DefaultVolatilityPolicy())
	}
	return t
}

func TestVolatilityTrend(t *testing.T) {
	tests := []struct {
		name   string
		scores []int
		want   types.Trend
	}{
		{"empty", nil, types.TrendStable},
		{"too short to trend", []int{10, 95}, types.TrendStable},
		{"escalating", []int{10, 40, 70}, types.TrendEscalating},
		{"flat steps still escalate", []int{10, 40, 40, 70}, types.TrendEscalating},
		{"rise below delta", []int{10, 12, 14}, types.TrendStable},
		{"de-escalating", []int{95, 70, 40}, types.TrendDeEscalating},
		{"volatile", []int{10, 70, 10, 70}, types.TrendVolatile},
		{"one reversal is stable", []int{10, 70, 40}, types.TrendStable},
		{"dip breaks escalation", []int{10, 70, 40, 95}, types.TrendVolatile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, track(tt.scores...).Trend)
		})
	}
}

func TestVolatilityWindowAndTurns(t *testing.T) {
	p := VolatilityPolicy{Window: 4, TrendWindow: 3, MaterialDelta: 15}
	tr := NewVolatilityTracker()
	for i := 0; i < 6; i++ {
		tr = UpdateVolatility(tr, 10+i, types.TierStandard, p)
	}
	require.Len(t, tr.History, 4)
	assert.Equal(t, 2, tr.History[0].TurnIndex, "oldest samples drop off")
	assert.Equal(t, 5, tr.History[3].TurnIndex)
	assert.Equal(t, 6, tr.Turns)
}

func TestUpdateVolatilityDoesNotMutate(t *testing.T) {
	before := track(10, 40)
	snapshot := append([]VolatilitySample(nil), before.History...)
	after := UpdateVolatility(before, 95, types.TierCritical, DefaultVolatilityPolicy())

	assert.Equal(t, snapshot, before.History)
	assert.Equal(t, 2, before.Turns)
	assert.Len(t, after.History, 3)
	assert.Equal(t, types.TrendEscalating, after.Trend)
}

func TestVolatilityPolicyFloorsK(t *testing.T) {
	// k below three is raised to three: two rising samples are not a trend.
	tr := NewVolatilityTracker()
	p := VolatilityPolicy{TrendWindow: 2}
	tr = UpdateVolatility(tr, 10, types.TierStandard, p)
	tr = UpdateVolatility(tr, 95, types.TierCritical, p)
	assert.Equal(t, types.TrendStable, tr.Trend)
}

// =============================================================================
// MODES
// =============================================================================

func TestTransitionsOutOfSafety(t *testing.T) {
	legal := map[types.Mode]bool{
		types.ModeSafety:      true,
		types.ModePostCrisis:  true,
		types.ModeWaitingRoom: true,
	}
	for _, to := range types.AllModes() {
		tr := CheckTransition(types.ModeSafety, to)
		assert.Equal(t, legal[to], tr.Legal, "safety -> %s", to)
		assert.Equal(t, types.ModeSafety, tr.Previous)
		if !tr.Legal {
			assert.Equal(t, types.ModeSafety, tr.Mode, "illegal proposals are not applied")
		}
	}
}

func TestAnyModeMayEnterSafety(t *testing.T) {
	for _, from := range types.AllModes() {
		assert.True(t, IsLegalTransition(from, types.ModeSafety), "%s -> safety", from)
	}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to types.Mode
		want     bool
	}{
		{types.ModeNormal, types.ModeGrief, true},
		{types.ModeNormal, types.ModeLostPet, true},
		{types.ModeGrief, types.ModeLostPet, true},
		{types.ModeLostPet, types.ModeNormal, true},
		{types.ModeNormal, types.ModeWaitingRoom, false},
		{types.ModeNormal, types.ModePostCrisis, false},
		{types.ModeWaitingRoom, types.ModePostCrisis, true},
		{types.ModeWaitingRoom, types.ModeGrief, false},
		{types.ModePostCrisis, types.ModeGrief, true},
		{types.ModePostCrisis, types.ModePostCrisis, true},
		{types.Mode("bogus"), types.ModeNormal, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsLegalTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestProposeMode(t *testing.T) {
	tests := []struct {
		name      string
		current   types.Mode
		cat       types.Category
		confirmed bool
		requested types.Mode
		want      types.Mode
	}{
		{"crisis", types.ModeGrief, types.CategorySuicidePassive, false, "", types.ModeSafety},
		{"crisis beats request", types.ModeSafety, types.CategoryDVCoerciveControl, true, types.ModeWaitingRoom, types.ModeSafety},
		{"request", types.ModeSafety, types.CategoryGeneral, false, types.ModeWaitingRoom, types.ModeWaitingRoom},
		{"confirmed leaves safety", types.ModeSafety, types.CategoryDeathGeneral, true, "", types.ModePostCrisis},
		{"unconfirmed grief in safety", types.ModeSafety, types.CategoryDeathGeneral, false, "", types.ModeGrief},
		{"general keeps mode", types.ModeLostPet, types.CategoryGeneral, false, "", types.ModeLostPet},
		{"emergency", types.ModeNormal, types.CategoryEmergency, false, "", types.ModePetEmergency},
		{"grief family", types.ModeNormal, types.CategoryGuiltCBT, false, "", types.ModeGrief},
		{"unknown current", types.Mode(""), types.CategoryGeneral, false, "", types.ModeNormal},
		{"invalid request ignored", types.ModeNormal, types.CategoryScam, false, types.Mode("lobby"), types.ModeScam},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProposeMode(tt.current, tt.cat, tt.confirmed, tt.requested))
		})
	}
}
