package types

// FactKey names a field of the accumulated session facts.
type FactKey string

const (
	FactPetName          FactKey = "petName"
	FactSpecies          FactKey = "species"
	FactBreed            FactKey = "breed"
	FactLossType         FactKey = "lossType"
	FactLastSeenLocation FactKey = "lastSeenLocation"
	FactLastSeenTime     FactKey = "lastSeenTime"
	FactUserSafety       FactKey = "userSafety"
	FactRegion           FactKey = "region"
	FactVetContacted     FactKey = "vetContacted"
)

// AllFactKeys returns the fact keys in their canonical order.
func AllFactKeys() []FactKey {
	return []FactKey{
		FactPetName, FactSpecies, FactBreed, FactLossType, FactLastSeenLocation,
		FactLastSeenTime, FactUserSafety, FactRegion, FactVetContacted,
	}
}

// QuestionIntent is a fact-seeking question the companion may ask.
type QuestionIntent string

const (
	AskPetName          QuestionIntent = "ask_pet_name"
	AskSpecies          QuestionIntent = "ask_species"
	AskBreed            QuestionIntent = "ask_breed"
	AskLossType         QuestionIntent = "ask_loss_type"
	AskLastSeenLocation QuestionIntent = "ask_last_seen_location"
	AskLastSeenTime     QuestionIntent = "ask_last_seen_time"
	AskUserSafety       QuestionIntent = "ask_user_safety"
	AskRegion           QuestionIntent = "ask_region"
	AskVetContacted     QuestionIntent = "ask_vet_contacted"
)

// questionFacts maps each question to the fact it elicits.
var questionFacts = map[QuestionIntent]FactKey{
	AskPetName:          FactPetName,
	AskSpecies:          FactSpecies,
	AskBreed:            FactBreed,
	AskLossType:         FactLossType,
	AskLastSeenLocation: FactLastSeenLocation,
	AskLastSeenTime:     FactLastSeenTime,
	AskUserSafety:       FactUserSafety,
	AskRegion:           FactRegion,
	AskVetContacted:     FactVetContacted,
}

// AllQuestionIntents returns every question intent in canonical order.
func AllQuestionIntents() []QuestionIntent {
	return []QuestionIntent{
		AskPetName, AskSpecies, AskBreed, AskLossType, AskLastSeenLocation,
		AskLastSeenTime, AskUserSafety, AskRegion, AskVetContacted,
	}
}

// Elicits returns the fact key a question is meant to fill.
func (q QuestionIntent) Elicits() (FactKey, bool) {
	key, ok := questionFacts[q]
	return key, ok
}

// Valid reports whether q is a known question intent.
func (q QuestionIntent) Valid() bool {
	_, ok := questionFacts[q]
	return ok
}
