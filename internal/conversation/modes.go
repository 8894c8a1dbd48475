package conversation

import "companion/internal/types"

// ModeFor maps a category to the mode it proposes. General proposes no change
// and returns "".
func ModeFor(cat types.Category) types.Mode {
	switch {
	case cat.IsCrisis():
		return types.ModeSafety
	case cat == types.CategoryEmergency:
		return types.ModePetEmergency
	case cat == types.CategoryScam:
		return types.ModeScam
	case cat == types.CategoryLostPet:
		return types.ModeLostPet
	case cat == types.CategoryFoundPet:
		return types.ModeFoundPet
	case cat == types.CategoryGeneral, cat == "":
		return ""
	}
	return types.ModeGrief
}

// ProposeMode picks the mode a turn asks for. A crisis category always
// proposes safety. Otherwise a host-requested mode wins, then leaving safety
// once the crisis is confirmed, then the category's own mode.
func ProposeMode(current types.Mode, cat types.Category, crisisConfirmed bool, requested types.Mode) types.Mode {
	if !current.Valid() {
		current = types.ModeNormal
	}
	if cat.IsCrisis() {
		return types.ModeSafety
	}
	if requested != "" && requested.Valid() {
		return requested
	}
	if current == types.ModeSafety && crisisConfirmed {
		return types.ModePostCrisis
	}
	if m := ModeFor(cat); m != "" {
		return m
	}
	return current
}

// Transition is the checked outcome of a proposed mode change.
type Transition struct {
	Previous types.Mode `json:"previous"`
	Proposed types.Mode `json:"proposed"`
	Mode     types.Mode `json:"mode"`
	Legal    bool       `json:"legal"`
}

// IsLegalTransition consults the allow-list:
//
//	any        -> safety, or itself
//	safety     -> post_crisis, waiting_room
//	waiting_room -> post_crisis
//	normal, post_crisis, content modes -> normal or any content mode
func IsLegalTransition(from, to types.Mode) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if to == types.ModeSafety || from == to {
		return true
	}
	switch from {
	case types.ModeSafety:
		return to == types.ModePostCrisis || to == types.ModeWaitingRoom
	case types.ModeWaitingRoom:
		return to == types.ModePostCrisis
	}
	return to == types.ModeNormal || to.IsContent()
}

// CheckTransition validates from -> to. An illegal proposal is reported and
// not applied: Mode stays at from.
func CheckTransition(from, to types.Mode) Transition {
	t := Transition{Previous: from, Proposed: to, Mode: from, Legal: IsLegalTransition(from, to)}
	if t.Legal {
		t.Mode = to
	}
	return t
}
