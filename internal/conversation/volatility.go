package conversation

import "companion/internal/types"

// VolatilityPolicy bounds the tracker window and the trend rules.
type VolatilityPolicy struct {
	// Window is the number of samples kept (N).
	Window int `json:"window"`
	// TrendWindow is the number of trailing samples a monotonic trend needs (k).
	TrendWindow int `json:"trendWindow"`
	// MaterialDelta is the minimum score change across the trend window.
	MaterialDelta int `json:"materialDelta"`
}

// DefaultVolatilityPolicy returns N=8, k=3, delta=15.
func DefaultVolatilityPolicy() VolatilityPolicy {
	return VolatilityPolicy{Window: 8, TrendWindow: 3, MaterialDelta: 15}
}

func (p VolatilityPolicy) normalized() VolatilityPolicy {
	def := DefaultVolatilityPolicy()
	if p.Window <= 0 {
		p.Window = def.Window
	}
	if p.TrendWindow < 3 {
		p.TrendWindow = 3
	}
	if p.Window < p.TrendWindow {
		p.Window = p.TrendWindow
	}
	if p.MaterialDelta <= 0 {
		p.MaterialDelta = def.MaterialDelta
	}
	return p
}

// VolatilitySample is one turn's risk score.
type VolatilitySample struct {
	Score     int        `json:"score"`
	Tier      types.Tier `json:"tier"`
	TurnIndex int        `json:"turnIndex"`
}

// VolatilityTracker is the bounded risk history of a conversation. Turns
// counts every processed turn and is the source of the next turn index.
type VolatilityTracker struct {
	History []VolatilitySample `json:"history"`
	Trend   types.Trend        `json:"trend"`
	Turns   int                `json:"turns"`
}

// NewVolatilityTracker returns the empty tracker a conversation starts with.
func NewVolatilityTracker() VolatilityTracker {
	return VolatilityTracker{History: []VolatilitySample{}, Trend: types.TrendStable}
}

// TurnScore scores a turn: a base per tier plus one point per distinct
// detected marker, capped at four.
func TurnScore(tier types.Tier, distinctMarkers int) int {
	base := 10
	switch tier {
	case types.TierMedium:
		base = 40
	case types.TierHigh:
		base = 70
	case types.TierCritical:
		base = 95
	}
	if distinctMarkers > 4 {
		distinctMarkers = 4
	}
	if distinctMarkers < 0 {
		distinctMarkers = 0
	}
	return base + distinctMarkers
}

// UpdateVolatility returns a new tracker with the sample appended at the
// current turn index, the history cut to the policy window and the trend
// recomputed.
func UpdateVolatility(t VolatilityTracker, score int, tier types.Tier, p VolatilityPolicy) VolatilityTracker {
	p = p.normalized()
	history := make([]VolatilitySample, 0, len(t.History)+1)
	history = append(history, t.History...)
	history = append(history, VolatilitySample{Score: score, Tier: tier, TurnIndex: t.Turns})
	if len(history) > p.Window {
		history = history[len(history)-p.Window:]
	}
	return VolatilityTracker{
		History: history,
		Trend:   ComputeTrend(history, p),
		Turns:   t.Turns + 1,
	}
}

// ComputeTrend classifies a history. Rules are checked in order:
// ESCALATING (last k scores non-decreasing and the rise is material),
// DE_ESCALATING (the mirror case), VOLATILE (more than one direction reversal
// across the window, flat steps ignored), else STABLE.
func ComputeTrend(history []VolatilitySample, p VolatilityPolicy) types.Trend {
	p = p.normalized()
	if len(history) >= p.TrendWindow {
		tail := history[len(history)-p.TrendWindow:]
		first, last := tail[0].Score, tail[len(tail)-1].Score
		if monotonic(tail, 1) && last-first >= p.MaterialDelta {
			return types.TrendEscalating
		}
		if monotonic(tail, -1) && first-last >= p.MaterialDelta {
			return types.TrendDeEscalating
		}
	}
	if reversals(history) > 1 {
		return types.TrendVolatile
	}
	return types.TrendStable
}

// monotonic reports whether scores never move against dir (1 up, -1 down).
func monotonic(samples []VolatilitySample, dir int) bool {
	for i := 1; i < len(samples); i++ {
		if (samples[i].Score-samples[i-1].Score)*dir < 0 {
			return false
		}
	}
	return true
}

func reversals(samples []VolatilitySample) int {
	n, prev := 0, 0
	for i := 1; i < len(samples); i++ {
		d := samples[i].Score - samples[i-1].Score
		if d == 0 {
			continue
		}
		dir := 1
		if d < 0 {
			dir = -1
		}
		if prev != 0 && dir != prev {
			n++
		}
		prev = dir
	}
	return n
}
