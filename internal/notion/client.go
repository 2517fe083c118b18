// Package notion publishes classified articles to a Notion database and
// archives them again.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pders01/newsroom/internal/apperr"
	"github.com/pders01/newsroom/internal/config"
)

// RemotePage is a database entry as returned by a query.
type RemotePage struct {
	ID    string
	Title string
	URL   string
}

// Client talks to the Notion REST API. Every request waits on a shared
// limiter.
type Client struct {
	baseURL    string
	apiKey     string
	databaseID string
	version    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient builds a client from configuration.
func NewClient(cfg config.RemoteConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		databaseID: cfg.DatabaseID,
		version:    cfg.Version,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.With("component", "notion"),
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do sends one request and decodes a 200 reply into out. Any other status is
// ErrExternalService carrying the API message.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperr.External(op, err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperr.External(op, fmt.Errorf("marshal payload: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperr.External(op, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", c.version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.External(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var ae apiError
		msg := strings.TrimSpace(string(payload))
		if json.Unmarshal(payload, &ae) == nil && ae.Message != "" {
			msg = ae.Message
		}
		return apperr.External(op, fmt.Errorf("status %d: %s", resp.StatusCode, msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.External(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// CheckConnection verifies the credentials can read the configured database.
func (c *Client) CheckConnection(ctx context.Context) error {
	return c.do(ctx, "notion.check", http.MethodGet, "/databases/"+c.databaseID, nil, nil)
}

// CreatePage publishes an article and returns the new page id. Only a 200
// reply carrying an id counts as success.
func (c *Client) CreatePage(ctx context.Context, p Page) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "notion.create_page", http.MethodPost, "/pages", p.request(c.databaseID), &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", apperr.External("notion.create_page", errors.New("response carries no page id"))
	}
	c.logger.Debug("page created", "id", out.ID, "title", p.Title)
	return out.ID, nil
}

// ArchivePage hides a page. Notion has no hard delete over the API.
func (c *Client) ArchivePage(ctx context.Context, id string) error {
	if id == "" {
		return apperr.External("notion.archive_page", errors.New("empty page id"))
	}
	return c.do(ctx, "notion.archive_page", http.MethodPatch, "/pages/"+id, map[string]any{"archived": true}, nil)
}

type queryResponse struct {
	Results []struct {
		ID         string `json:"id"`
		Properties struct {
			Title struct {
				Title []struct {
					PlainText string `json:"plain_text"`
					Text      struct {
						Content string `json:"content"`
					} `json:"text"`
				} `json:"title"`
			} `json:"Title"`
			URL struct {
				URL *string `json:"url"`
			} `json:"URL"`
		} `json:"properties"`
	} `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

// QueryPages lists every page of the database, following pagination. Pages
// read before a failing request are returned along with the error.
func (c *Client) QueryPages(ctx context.Context) ([]RemotePage, error) {
	var (
		pages  []RemotePage
		cursor string
	)
	for {
		body := map[string]any{}
		if cursor != "" {
			body["start_cursor"] = cursor
		}

		var out queryResponse
		if err := c.do(ctx, "notion.query", http.MethodPost, "/databases/"+c.databaseID+"/query", body, &out); err != nil {
			return pages, err
		}

		for _, r := range out.Results {
			p := RemotePage{ID: r.ID, Title: "Sans titre"}
			if t := r.Properties.Title.Title; len(t) > 0 {
				if t[0].PlainText != "" {
					p.Title = t[0].PlainText
				} else if t[0].Text.Content != "" {
					p.Title = t[0].Text.Content
				}
			}
			if r.Properties.URL.URL != nil {
				p.URL = *r.Properties.URL.URL
			}
			pages = append(pages, p)
		}

		if !out.HasMore || out.NextCursor == nil || *out.NextCursor == "" {
			return pages, nil
		}
		cursor = *out.NextCursor
	}
}
