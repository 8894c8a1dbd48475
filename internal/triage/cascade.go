package triage

import "companion/internal/types"

// Rule is one step of the priority cascade.
type Rule struct {
	Name     string
	Category types.Category
	Escalate bool
	When     func(Signals) bool
}

// cascade is evaluated top to bottom; the first matching rule wins.
// Reordering it changes safety behaviour and must be reviewed.
var cascade = []Rule{
	{"suicide_intent", types.CategorySuicideIntent, true, func(s Signals) bool {
		return s.Suicide.Level == types.SuicideRiskIntent
	}},
	{"suicide_active", types.CategorySuicideActive, true, func(s Signals) bool {
		return s.Suicide.Level == types.SuicideRiskActive
	}},
	{"suicide_passive", types.CategorySuicidePassive, true, func(s Signals) bool {
		return s.Suicide.Level == types.SuicideRiskPassive
	}},
	{"dv_coercive_control", types.CategoryDVCoerciveControl, true, func(s Signals) bool {
		return s.DV.Detected
	}},
	{"mdd", types.CategoryMDD, false, func(s Signals) bool {
		return s.MDD.Detected && !s.MDDEuthanasiaException
	}},
	{"paralysis", types.CategoryParalysis, false, func(s Signals) bool {
		return s.Paralysis.Detected
	}},
	{"neurodivergent", types.CategoryNeurodivergent, false, func(s Signals) bool {
		return s.Neurodivergent.Detected
	}},
	{"death_traumatic", types.CategoryDeathTraumatic, false, deathIs(types.CategoryDeathTraumatic)},
	{"death_euthanasia", types.CategoryDeathEuthanasia, false, deathIs(types.CategoryDeathEuthanasia)},
	{"death_general", types.CategoryDeathGeneral, false, deathIs(types.CategoryDeathGeneral)},
	{"death_found_deceased", types.CategoryDeathFoundDeceased, false, deathIs(types.CategoryDeathFoundDeceased)},
	{"anticipatory", types.CategoryAnticipatory, false, func(s Signals) bool {
		return s.Anticipatory.Detected
	}},
	{"emergency", types.CategoryEmergency, true, func(s Signals) bool {
		return s.Emergency.Detected
	}},
	{"scam", types.CategoryScam, false, func(s Signals) bool {
		return s.Scam.Detected
	}},
	{"found_pet", types.CategoryFoundPet, false, func(s Signals) bool {
		return s.FoundPet.Detected
	}},
	{"lost_pet", types.CategoryLostPet, false, func(s Signals) bool {
		return s.LostPet.Detected && !s.Death.Detected
	}},
	{"guilt_cbt", types.CategoryGuiltCBT, false, func(s Signals) bool {
		return s.Guilt.Detected
	}},
	{"disenfranchised", types.CategoryDisenfranchised, false, func(s Signals) bool {
		return s.Disenfranchised.Detected
	}},
	{"pediatric", types.CategoryPediatric, false, func(s Signals) bool {
		return s.Pediatric.Detected
	}},
	{"quality_of_life", types.CategoryQualityOfLife, false, func(s Signals) bool {
		return s.QualityOfLife.Detected
	}},
	{"general", types.CategoryGeneral, false, func(Signals) bool {
		return true
	}},
}

func deathIs(cat types.Category) func(Signals) bool {
	return func(s Signals) bool { return s.Death.Subtype() == cat }
}

// Cascade returns a copy of the priority cascade in evaluation order.
func Cascade() []Rule {
	return append([]Rule(nil), cascade...)
}

// Resolve runs the cascade and returns the winning rule. The last rule always
// matches, so Resolve is total.
func Resolve(s Signals) Rule {
	for _, r := range cascade {
		if r.When(s) {
			return r
		}
	}
	return cascade[len(cascade)-1]
}
