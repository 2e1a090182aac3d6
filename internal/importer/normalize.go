package importer

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var bodyPolicy = bluemonday.UGCPolicy()

// NormalizeText NFC-normalizes a text value and trims surrounding space.
// Inner whitespace, line breaks included, is kept.
func NormalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// NormalizeCurrency keeps only digits and the decimal point.
func NormalizeCurrency(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SanitizeBody normalizes an abstract and strips unsafe markup. It is a
// fixed point: SanitizeBody(SanitizeBody(s)) == SanitizeBody(s).
func SanitizeBody(s string) string {
	return NormalizeText(bodyPolicy.Sanitize(NormalizeText(s)))
}

// HTMLToText converts HTML to plain text, collapsing whitespace.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Excerpt returns at most maxRunes runes of the text content of html.
func Excerpt(html string, maxRunes int) string {
	text := HTMLToText(html)
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	if maxRunes > 3 {
		return string(runes[:maxRunes-3]) + "..."
	}
	return string(runes[:maxRunes])
}
