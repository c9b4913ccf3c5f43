package charm

import (
	"sort"
	"strings"
)

const (
	MaxSuggestionDistance = 2
	MaxSuggestions        = 3
)

// Suggest returns up to limit names within maxDistance edits of input,
// closest first. Ties keep the order of names. The result is never nil.
func Suggest(input string, names []string, maxDistance, limit int) []string {
	type candidate struct {
		name string
		dist int
	}

	input = strings.ToLower(input)
	var found []candidate
	for _, n := range names {
		if d := Levenshtein(input, strings.ToLower(n)); d <= maxDistance {
			found = append(found, candidate{n, d})
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].dist < found[j].dist })

	out := make([]string, 0, limit)
	for i := 0; i < len(found) && i < limit; i++ {
		out = append(out, found[i].name)
	}
	return out
}

// Levenshtein returns the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
