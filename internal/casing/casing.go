// Package casing converts exported Go identifiers into the lowerCamel names
// used on the host surface.
package casing

import (
	"strings"
	"unicode"
)

// LowerCamel converts a PascalCase identifier to lowerCamelCase.
// Handles acronyms: GetHTTPStatus -> getHttpStatus, UserID -> userId.
func LowerCamel(s string) string {
	words := splitWords(s)
	if len(words) == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i, w := range words {
		lw := strings.ToLower(w)
		if i == 0 {
			b.WriteString(lw)
			continue
		}
		r := []rune(lw)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

// splitWords cuts an identifier into words, keeping acronym runs together.
// The last uppercase of a run heads the next word when lowercase follows:
// HTTPStatus -> [HTTP Status].
func splitWords(s string) []string {
	runes := []rune(s)
	var words []string
	for i := 0; i < len(runes); {
		j := i + 1
		if unicode.IsUpper(runes[i]) {
			for j < len(runes) && unicode.IsUpper(runes[j]) {
				j++
			}
			if j > i+1 && j < len(runes) && unicode.IsLower(runes[j]) {
				j--
			} else if j == i+1 {
				for j < len(runes) && !unicode.IsUpper(runes[j]) {
					j++
				}
			}
		} else {
			for j < len(runes) && !unicode.IsUpper(runes[j]) {
				j++
			}
		}
		words = append(words, string(runes[i:j]))
		i = j
	}
	return words
}
