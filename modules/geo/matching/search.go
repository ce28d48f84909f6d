package matching

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/iota-uz/geosync/modules/geo/domain/unit"
)

// SearchNames filters units by a free-text query for interactive lookups
// (cascading selection UIs). Unlike FindMatches this is a subsequence
// search, not a similarity ranking; an empty query returns the input
// unchanged.
func SearchNames(q string, units []*unit.AdministrativeUnit) []*unit.AdministrativeUnit {
	if q == "" {
		return units
	}

	names := make([]string, len(units))
	for i, u := range units {
		names[i] = u.Name
	}

	ranks := fuzzy.RankFindNormalizedFold(q, names)
	sort.Sort(ranks)

	result := make([]*unit.AdministrativeUnit, 0, len(ranks))
	for _, rank := range ranks {
		result = append(result, units[rank.OriginalIndex])
	}
	return result
}
