// Package scrape fetches article pages and extracts their main text and
// picture using a fixed list of selector heuristics.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"

	"github.com/pders01/newsroom/internal/apperr"
	"github.com/pders01/newsroom/internal/textutil"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "Mozilla/5.0 (compatible; newsroom/1.0)"
	maxPageSize      = 10 << 20
)

// Tried in order; the first selector that matches provides the article body.
var contentSelectors = []string{
	"article",
	".article-content",
	".post-content",
	`[itemprop="articleBody"]`,
	".entry-content",
}

// Meta selectors carry the URL in content, the others in src.
var imageSelectors = []string{
	`meta[property="og:image"]`,
	`meta[name="twitter:image"]`,
	".article-featured-image img",
	".post-thumbnail img",
	"article img",
	".entry-content img",
	"img.wp-post-image",
	"figure img",
	".main-image img",
	".featured-image img",
}

// Article is the cleaned text and main picture of a page.
type Article struct {
	Content  string
	ImageURL string
}

// Scraper downloads and extracts article pages.
type Scraper struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scraper) { s.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *Scraper) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scraper) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(opts ...Option) *Scraper {
	s := &Scraper{
		client:    &http.Client{Timeout: defaultTimeout},
		userAgent: defaultUserAgent,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchArticle downloads pageURL and extracts its content and image. Any
// failure is an apperr.ErrExternalService error.
func (s *Scraper) FetchArticle(ctx context.Context, pageURL string) (*Article, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, apperr.External("scrape", fmt.Errorf("invalid url: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, apperr.External("scrape", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperr.External("scrape", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.External("scrape", fmt.Errorf("%s returned %s", pageURL, resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, apperr.External("scrape", fmt.Errorf("reading body: %w", err))
	}

	article, err := Extract(body, base)
	if err != nil {
		return nil, apperr.External("scrape", err)
	}

	s.logger.Debug("article scraped", "url", pageURL, "content_length", len(article.Content), "image", article.ImageURL)
	return article, nil
}

// Extract parses an HTML page. base resolves relative image URLs and may be nil.
func Extract(page []byte, base *url.URL) (*Article, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	article := &Article{ImageURL: findImage(doc, base)}

	doc.Find("script, style, noscript").Remove()
	for _, sel := range contentSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		html, err := node.Html()
		if err == nil {
			article.Content = textutil.CleanContent(html)
		}
		break
	}

	if article.Content == "" {
		article.Content = readabilityText(page, base)
	}
	if article.Content == "" {
		article.Content = textutil.CleanContent(doc.Find("body").Text())
	}
	return article, nil
}

func readabilityText(page []byte, base *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(page), base)
	if err != nil {
		return ""
	}
	var buf strings.Builder
	if err := article.RenderText(&buf); err != nil {
		return ""
	}
	return textutil.CleanContent(buf.String())
}

func findImage(doc *goquery.Document, base *url.URL) string {
	for _, sel := range imageSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		attr := "src"
		if strings.HasPrefix(sel, "meta") {
			attr = "content"
		}
		if v, ok := node.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return resolveURL(base, v)
		}
	}

	var found string
	doc.Find("img[src]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, _ := img.Attr("src")
		if IsValidImageURL(src) {
			found = resolveURL(base, src)
			return false
		}
		return true
	})
	return found
}
