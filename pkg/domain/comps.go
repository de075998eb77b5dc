package domain

import (
	"sort"
	"strings"
	"unicode"
)

// RankComparable orders candidates by token overlap with query and returns at most k of them.
// Candidates with no overlap are dropped. Ties keep the candidates' original order,
// so callers pass newest-first slices to prefer recent trades.
func RankComparable(query string, candidates []string, k int) []string {
	if k <= 0 || len(candidates) == 0 {
		return []string{}
	}
	q := tokenSet(query)
	if len(q) == 0 {
		return []string{}
	}

	type scored struct {
		text  string
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		t := tokenSet(c)
		inter := 0
		for tok := range t {
			if _, ok := q[tok]; ok {
				inter++
			}
		}
		if inter == 0 {
			continue
		}
		union := len(q) + len(t) - inter
		ranked = append(ranked, scored{text: c, score: float64(inter) / float64(union)})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.text
	}
	return out
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		switch f {
		case "give", "get", "sent", "for", "to":
			continue
		}
		set[f] = struct{}{}
	}
	return set
}
