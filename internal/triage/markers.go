package triage

import "strings"

// MarkerResult is one classifier's verdict for a turn.
type MarkerResult struct {
	Detected bool     `json:"detected"`
	Markers  []string `json:"markers"`
}

func result(markers []string) MarkerResult {
	if markers == nil {
		markers = []string{}
	}
	return MarkerResult{Detected: len(markers) > 0, Markers: markers}
}

// matchMarkers returns the configured markers present in text, in catalog
// order. Matching is substring containment over normalized text.
func matchMarkers(text string, markers []string) []string {
	var out []string
	for _, m := range markers {
		if m != "" && strings.Contains(text, m) {
			out = append(out, m)
		}
	}
	return out
}

// occurrences returns the byte offsets of every (possibly overlapping)
// occurrence of marker in text.
func occurrences(text, marker string) []Span {
	if marker == "" {
		return nil
	}
	var spans []Span
	for from := 0; from <= len(text)-len(marker); {
		i := strings.Index(text[from:], marker)
		if i < 0 {
			break
		}
		start := from + i
		spans = append(spans, Span{Start: start, End: start + len(marker)})
		from = start + 1
	}
	return spans
}

// countDistinct counts markers that match at positions not already claimed
// by an earlier marker, so nested phrases ("dying" inside "is dying") are
// counted once.
func countDistinct(text string, markers []string) (int, []string) {
	var claimed []Span
	var matched []string
	for _, m := range markers {
		for _, occ := range occurrences(text, m) {
			if overlapsAny(occ, claimed) {
				continue
			}
			claimed = append(claimed, occ)
			matched = append(matched, m)
			break
		}
	}
	return len(matched), matched
}

func overlapsAny(s Span, spans []Span) bool {
	for _, o := range spans {
		if s.Start < o.End && o.Start < s.End {
			return true
		}
	}
	return false
}

// hasWord reports whether word occurs in text delimited by non-letters.
func hasWord(text, word string) bool {
	for _, occ := range occurrences(text, word) {
		if isWordBoundary(text, occ.Start-1) && isWordBoundary(text, occ.End) {
			return true
		}
	}
	return false
}

func isWordBoundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	c := text[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c >= 0x80)
}
