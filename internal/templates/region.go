package templates

import (
	"sort"

	"companion/internal/catalog"
)

// DetectRegion finds the region whose locale keyword appears first in the
// normalized text. Keywords match on word boundaries, so "uk" never matches
// inside "ukulele". It reports false when no keyword matches.
func DetectRegion(text string, spec catalog.RegionSpec) (string, bool) {
	regions := make([]string, 0, len(spec.Keywords))
	for r := range spec.Keywords {
		regions = append(regions, r)
	}
	sort.Strings(regions)

	best, bestAt := "", -1
	for _, region := range regions {
		for _, kw := range spec.Keywords[region] {
			at := indexPhrase(text, kw)
			if at >= 0 && (bestAt < 0 || at < bestAt) {
				best, bestAt = region, at
			}
		}
	}
	return best, bestAt >= 0
}
