// Package templates renders the response for a resolved category: it fills
// region, hotline and pet-name placeholders from the catalog and refuses any
// text that contains a forbidden phrase, substituting a safe fallback instead.
package templates

import (
	"strings"

	"companion/internal/catalog"
)

var markupStripper = strings.NewReplacer("*", "", "_", "", "`", "", "#", "")

// foldForGuard reduces rendered text to the form deny-list phrases are
// authored in, so markup or spacing cannot hide a phrase.
func foldForGuard(text string) string {
	return catalog.NormalizePhrase(markupStripper.Replace(text))
}

// GuardPhrases returns every phrase from the given lists that occurs in text
// as whole words, in list order and without duplicates. An empty result means
// the text passes the forbidden-phrase guard.
func GuardPhrases(text string, lists ...[]string) []string {
	folded := foldForGuard(text)
	var hits []string
	seen := make(map[string]bool)
	for _, list := range lists {
		for _, phrase := range list {
			p := catalog.NormalizePhrase(phrase)
			if p == "" || seen[p] {
				continue
			}
			if indexPhrase(folded, p) >= 0 {
				seen[p] = true
				hits = append(hits, p)
			}
		}
	}
	return hits
}

// indexPhrase returns the offset of the first whole-word occurrence of
// phrase in text, or -1.
func indexPhrase(text, phrase string) int {
	if phrase == "" {
		return -1
	}
	for from := 0; from <= len(text)-len(phrase); {
		i := strings.Index(text[from:], phrase)
		if i < 0 {
			return -1
		}
		start := from + i
		if boundary(text, start-1) && boundary(text, start+len(phrase)) {
			return start
		}
		from = start + 1
	}
	return -1
}

func boundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	c := text[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c >= 0x80)
}
