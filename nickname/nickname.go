// Package nickname finds configured alias mentions inside message text.
// Longer aliases win overlaps: "Kiara Hime" claims its span before "Kiara"
// gets a chance, and any alias overlapping an already claimed position is
// dropped.
package nickname

import (
	"regexp"
	"sort"
)

// Match is one claimed alias occurrence. Start and End are byte offsets into
// the message text, End exclusive.
type Match struct {
	Alias string
	Start int
	End   int
}

// Find returns non-overlapping alias matches in text. Aliases are matched
// case-insensitively on word boundaries, longest alias first; within one
// alias, matches claim positions left to right.
func Find(text string, aliases []string) []Match {
	if text == "" || len(aliases) == 0 {
		return nil
	}
	sorted := make([]string, len(aliases))
	copy(sorted, aliases)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i]) > len(sorted[j])
	})

	claimed := make(map[int]bool)
	var out []Match
	for _, alias := range sorted {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(alias) + `\b`)
		if err != nil {
			continue
		}
		for _, span := range re.FindAllStringIndex(text, -1) {
			start, end := span[0], span[1]
			overlap := false
			for pos := start; pos < end; pos++ {
				if claimed[pos] {
					overlap = true
					break
				}
			}
			if overlap {
				continue
			}
			for pos := start; pos < end; pos++ {
				claimed[pos] = true
			}
			out = append(out, Match{Alias: alias, Start: start, End: end})
		}
	}
	return out
}
