package models

import (
	"strings"
	"unicode"
)

// TaxonomyPrefix marks attribute taxonomies in the term store
const TaxonomyPrefix = "pa_"

// Slugify lowercases s and collapses every run of characters other than
// letters, digits and underscores into a dash
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// TaxonomyName maps an attribute name to its taxonomy, e.g. "pole_diameter"
// to "pa_pole_diameter"
func TaxonomyName(attribute string) string {
	return TaxonomyPrefix + strings.TrimPrefix(Slugify(attribute), TaxonomyPrefix)
}
