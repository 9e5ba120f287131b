package similarity

import "github.com/pmezard/go-difflib/difflib"

// SequenceRatio returns the Ratcliff/Obershelp similarity of two strings
// compared rune by rune: 2·M / T where M is the number of matched runes and T
// the total rune count. Two empty strings are identical (1.0).
func SequenceRatio(a, b string) float64 {
	m := difflib.NewMatcher(splitRunes(a), splitRunes(b))
	return m.Ratio()
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
