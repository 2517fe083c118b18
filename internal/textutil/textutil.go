// Package textutil cleans scraped and feed-provided text before it reaches
// the oracle, the state file or the remote database.
package textutil

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = newStrictPolicy()

func newStrictPolicy() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}

// Consent and cookie banners that French news sites inline into article bodies.
var boilerplatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)Ce contenu est bloqué.*?Gérer mes choix`),
	regexp.MustCompile(`(?s)Les informations recueillies sont destinées.*?politique Cookies`),
	regexp.MustCompile(`(?s)En poursuivant votre navigation.*?cookies`),
	regexp.MustCompile(`(?s)Vous gardez la possibilité.*?tout moment`),
}

var numericEntity = regexp.MustCompile(`&#\d+;`)

var quoteReplacer = strings.NewReplacer(
	`"`, "'",
	"“", "'",
	"”", "'",
	"«", "'",
	"»", "'",
)

// StripHTML removes every tag, decodes entities and collapses whitespace.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	return CollapseSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

// CleanContent turns article HTML or text into a single line of plain text
// without consent boilerplate.
func CleanContent(s string) string {
	s = StripHTML(s)
	for _, re := range boilerplatePatterns {
		s = re.ReplaceAllString(s, "")
	}
	return CollapseSpace(s)
}

// CollapseSpace replaces every run of whitespace with a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeQuotes replaces double, curly and guillemet quotes with a single
// straight quote.
func NormalizeQuotes(s string) string {
	return quoteReplacer.Replace(s)
}

// DecodeEntities prepares text for the remote database: it decodes HTML
// entities, maps leftover numeric entities to an apostrophe and drops
// control characters other than newline and tab.
func DecodeEntities(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(s)
	s = numericEntity.ReplaceAllString(s, "'")
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// StripPrefixes removes the first matching prefix from title.
func StripPrefixes(title string, prefixes []string) string {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(title, p) {
			return strings.TrimSpace(strings.TrimPrefix(title, p))
		}
	}
	return title
}

// Head returns the first n characters of s.
func Head(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// TruncateEnd shortens s to at most limit characters, appending an ellipsis
// if truncation occurs.
func TruncateEnd(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 1 {
		return "…"
	}
	return string(r[:limit-1]) + "…"
}

// TruncateMiddle shortens s to at most limit characters by keeping both ends
// around a single ellipsis. Useful for URLs, where both ends carry meaning.
func TruncateMiddle(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	n := len(r)
	if n <= limit {
		return s
	}
	if limit <= 1 {
		return "…"
	}
	keep := limit - 1
	left := keep / 2
	right := keep - left
	if left <= 0 {
		return "…" + string(r[n-right:])
	}
	return string(r[:left]) + "…" + string(r[n-right:])
}
