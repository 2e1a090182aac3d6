// Package names normalizes person names into the "First Last" usernames
// used for account matching.
package names

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var middleInitial = regexp.MustCompile(`\s+[A-Za-z]\.?$`)

// CollapseSpace trims, NFC-normalizes and collapses runs of whitespace.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// Normalize turns "Last, First M." into "First Last". Names without a comma
// are only whitespace-collapsed and title-cased, so the result is a fixed
// point of Normalize.
func Normalize(raw string) string {
	s := CollapseSpace(raw)
	if s == "" {
		return ""
	}

	if last, first, ok := strings.Cut(s, ","); ok {
		last = strings.TrimSpace(last)
		first = strings.TrimSpace(first)
		first = strings.TrimSpace(middleInitial.ReplaceAllString(first, ""))
		s = strings.TrimSpace(first + " " + last)
	}

	return cases.Title(language.English).String(s)
}

// SplitList splits a comma-separated list of names, dropping blanks.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = CollapseSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// EmailLocalPart builds the "first.last" mailbox for a normalized name.
func EmailLocalPart(name string) string {
	var parts []string
	for _, field := range strings.Fields(strings.ToLower(norm.NFKD.String(name))) {
		var b strings.Builder
		for _, r := range field {
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			parts = append(parts, b.String())
		}
	}
	return strings.Join(parts, ".")
}
