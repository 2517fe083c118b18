package scrape

import (
	"net/url"
	"regexp"
	"strings"
)

// Substrings that mark site chrome rather than article pictures.
var excludedImagePatterns = []string{
	"logo",
	"favicon",
	"fzn",
	"header",
	"footer",
	"icon",
	"banner",
	"-min.png",
	"brand",
	"16x16",
	"32x32",
	"64x64",
}

var imgSrcPattern = regexp.MustCompile(`<img[^>]+src=['"](https?://[^'"]+)['"]`)

// IsValidImageURL reports whether url plausibly points at an article picture.
func IsValidImageURL(u string) bool {
	if u == "" {
		return false
	}
	lower := strings.ToLower(u)
	for _, p := range excludedImagePatterns {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return !strings.HasSuffix(lower, ".ico") && !strings.HasSuffix(lower, ".svg")
}

// FirstImage returns the first valid absolute image URL in an HTML fragment.
func FirstImage(html string) string {
	for _, m := range imgSrcPattern.FindAllStringSubmatch(html, -1) {
		if IsValidImageURL(m[1]) {
			return m[1]
		}
	}
	return ""
}

// resolveURL makes ref absolute against base. Unparseable input is returned
// unchanged.
func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if base == nil || ref == "" {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}
