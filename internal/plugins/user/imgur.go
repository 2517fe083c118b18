package user

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"slices"

	"github.com/pders01/newsroom/internal/apperr"
	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/plugins"
)

const (
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	maxImageBytes    = 20 << 20
)

// ImgurPlugin re-uploads images of hotlink-protected sources to Imgur
type ImgurPlugin struct {
	clientID string
	endpoint string
	sources  []string
}

// NewImgurPlugin creates a plugin for the configured sources
func NewImgurPlugin(cfg config.ImagesConfig) *ImgurPlugin {
	return &ImgurPlugin{
		clientID: cfg.ImgurClientID,
		endpoint: cfg.ImgurEndpoint,
		sources:  cfg.RehostSources,
	}
}

// Name returns the plugin name
func (p *ImgurPlugin) Name() string {
	return "imgur"
}

// CanHandle returns true for images of a configured source when a client id is set
func (p *ImgurPlugin) CanHandle(img plugins.Image) bool {
	return p.clientID != "" && img.URL != "" && slices.Contains(p.sources, img.Source)
}

// Priority returns the plugin priority
func (p *ImgurPlugin) Priority() int {
	return 50
}

type imgurResponse struct {
	Data struct {
		Link  string `json:"link"`
		Error any    `json:"error"`
	} `json:"data"`
	Success bool `json:"success"`
}

// Process downloads the image and uploads it, returning the Imgur link
func (p *ImgurPlugin) Process(ctx context.Context, img plugins.Image, client *http.Client) (string, error) {
	const op = "imgur.rehost"

	data, err := p.download(ctx, img, client)
	if err != nil {
		return "", apperr.External(op, err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", "image")
	if err != nil {
		return "", apperr.External(op, err)
	}
	if _, err := part.Write(data); err != nil {
		return "", apperr.External(op, err)
	}
	if err := w.Close(); err != nil {
		return "", apperr.External(op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, &body)
	if err != nil {
		return "", apperr.External(op, err)
	}
	req.Header.Set("Authorization", "Client-ID "+p.clientID)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return "", apperr.External(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", apperr.External(op, fmt.Errorf("upload status %d: %s", resp.StatusCode, payload))
	}

	var out imgurResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperr.External(op, fmt.Errorf("decode upload response: %w", err))
	}
	if out.Data.Link == "" {
		return "", apperr.External(op, errors.New("upload response has no link"))
	}
	return out.Data.Link, nil
}

// download fetches the image the way a browser on the article page would,
// which hotlink protection usually lets through.
func (p *ImgurPlugin) download(ctx context.Context, img plugins.Image, client *http.Client) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Accept-Language", "fr,fr-FR;q=0.9,en;q=0.8")
	if ref := referer(img.ArticleURL); ref != "" {
		req.Header.Set("Referer", ref)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	return data, nil
}

func referer(articleURL string) string {
	u, err := url.Parse(articleURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}
