package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var deaccent = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify converts a board or owner name to a filesystem-safe kebab-case
// directory name. Accented letters are reduced to their base form so that
// "Déco Früh" and "Deco Fruh" land in the same directory.
func Slugify(s string) string {
	if normalized, _, err := transform.String(deaccent, s); err == nil {
		s = normalized
	}
	s = strings.ToLower(s)

	var result strings.Builder
	lastDash := true // Also trims leading dashes
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			result.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			result.WriteRune('-')
			lastDash = true
		}
	}

	return strings.TrimSuffix(result.String(), "-")
}
