package factors

import (
	"slices"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Suggest returns up to limit material names close to the requested one,
// best match first. It is meant to decorate "material not found" responses;
// the lookup itself stays exact.
func (t *Table) Suggest(name string, limit int) []string {
	ranks := fuzzy.RankFindNormalizedFold(strings.TrimSpace(name), t.materialOrder)

	slices.SortStableFunc(ranks, func(a, b fuzzy.Rank) int {
		return a.Distance - b.Distance
	})

	suggestions := make([]string, 0, limit)
	for _, rank := range ranks {
		if len(suggestions) == limit {
			break
		}
		suggestions = append(suggestions, rank.Target)
	}

	return suggestions
}
