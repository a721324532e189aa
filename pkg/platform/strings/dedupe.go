// Package strings parses comma-separated settings into clean lists.
package strings

import (
	"strings"
)

// SplitList splits s on sep, trims each element and drops empties and
// duplicates. Order of first occurrence is preserved.
//
//	SplitList(" a, b,,a ", ",") // []string{"a", "b"}
func SplitList(s, sep string) []string {
	return split(s, sep, strings.TrimSpace)
}

// SplitListLower is SplitList with elements lowercased, so "Token" and
// "token" collapse into one.
func SplitListLower(s, sep string) []string {
	return split(s, sep, func(v string) string {
		return strings.ToLower(strings.TrimSpace(v))
	})
}

func split(s, sep string, normalize func(string) string) []string {
	var result []string
	seen := make(map[string]struct{})
	for part := range strings.SplitSeq(s, sep) {
		v := normalize(part)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
