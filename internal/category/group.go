package category

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// groupKeywords are the channel-directory grouping rules. Unlike Map, a
// channel may land in several groups, and channels matching none are left out.
var groupKeywords = map[Category][]string{
	Sport:         {"sport"},
	News:          {"news", "actualit"},
	Entertainment: {"entertainment", "general", "divertissement"},
	Kids:          {"kids", "enfant"},
	Cinema:        {"movie", "cinéma", "film"},
	Series:        {"series", "série"},
	Documentary:   {"documentary", "documentaire"},
}

// Categorize groups items by their free-text categories. cats returns the
// categories of one item. Item order is preserved within each group.
func Categorize[T any](items []T, cats func(T) []string) map[Category][]T {
	out := make(map[Category][]T, len(groupKeywords))
	for _, c := range All {
		out[c] = nil
	}
	for _, it := range items {
		labels := cats(it)
		for _, c := range All {
			if anyContains(labels, groupKeywords[c]) {
				out[c] = append(out[c], it)
			}
		}
	}
	return out
}

func anyContains(labels, keywords []string) bool {
	for _, l := range labels {
		l = strings.ToLower(norm.NFC.String(l))
		for _, kw := range keywords {
			if strings.Contains(l, kw) {
				return true
			}
		}
	}
	return false
}
