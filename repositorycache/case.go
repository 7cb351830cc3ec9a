package repositorycache

import (
	"strings"
	"unicode"
)

// toSnake lowercases a reflected type name into a cache namespace. Beyond
// the usual camel-case splitting it collapses anything that is not a letter
// or digit into a single underscore: pointer stars, generic brackets, and
// spaces would otherwise leak into keys and defeat prefix invalidation.
func toSnake(s string) string {
	runes := []rune(s)
	out := make([]rune, 0, len(runes)+len(runes)/2)

	sep := func() {
		if n := len(out); n > 0 && out[n-1] != '_' {
			out = append(out, '_')
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				// A lower rune after a run of uppers ends an acronym, so
				// the boundary sits before the last upper (HTTPServer).
				acronymEnd := unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || acronymEnd {
					sep()
				}
			}
			out = append(out, unicode.ToLower(r))
		case unicode.IsLower(r):
			out = append(out, r)
		case unicode.IsDigit(r):
			if i > 0 && !unicode.IsDigit(runes[i-1]) {
				sep()
			}
			out = append(out, r)
		default:
			sep()
		}
	}

	return strings.Trim(string(out), "_")
}
