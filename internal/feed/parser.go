package feed

import (
	"fmt"
	"io"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/pders01/newsroom/internal/scrape"
	"github.com/pders01/newsroom/internal/storage"
	"github.com/pders01/newsroom/internal/textutil"
)

type Parser struct {
	parser   *gofeed.Parser
	prefixes []string
}

// NewParser returns a parser that strips the given prefixes from titles.
func NewParser(titlePrefixes []string) *Parser {
	return &Parser{
		parser:   gofeed.NewParser(),
		prefixes: titlePrefixes,
	}
}

// Parse decodes an RSS or Atom document into candidates, in feed order.
// Entries without a link are dropped since the link is the dedup key.
func (p *Parser) Parse(reader io.Reader) ([]storage.Candidate, error) {
	feed, err := p.parser.Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	candidates := make([]storage.Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}

		candidate := storage.Candidate{
			Title:    textutil.StripPrefixes(strings.TrimSpace(item.Title), p.prefixes),
			Link:     link,
			Summary:  textutil.CleanContent(getSummary(item)),
			ImageURL: findImage(item),
		}

		switch {
		case item.PublishedParsed != nil:
			candidate.PublishedDate = storage.Timestamp(*item.PublishedParsed)
		case item.UpdatedParsed != nil:
			candidate.PublishedDate = storage.Timestamp(*item.UpdatedParsed)
		}

		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

func getSummary(item *gofeed.Item) string {
	if item.Description != "" {
		return item.Description
	}
	return item.Content
}

// findImage walks the places feeds put pictures, most explicit first:
// image enclosures, the item image, media:content and media:thumbnail, then
// the first <img> of the description or content.
func findImage(item *gofeed.Item) string {
	for _, enclosure := range item.Enclosures {
		if enclosure.URL != "" && strings.HasPrefix(enclosure.Type, "image/") {
			return enclosure.URL
		}
	}

	if item.Image != nil && scrape.IsValidImageURL(item.Image.URL) {
		return item.Image.URL
	}

	for _, name := range []string{"content", "thumbnail"} {
		for _, ext := range item.Extensions["media"][name] {
			if u := ext.Attrs["url"]; scrape.IsValidImageURL(u) {
				return u
			}
		}
	}

	for _, html := range []string{item.Description, item.Content} {
		if u := scrape.FirstImage(html); u != "" {
			return u
		}
	}
	return ""
}
