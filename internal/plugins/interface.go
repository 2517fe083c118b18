package plugins

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Image describes an article image a plugin may replace.
type Image struct {
	// URL found by the feed parser or the scraper
	URL string
	// Source is the configured feed name the article came from
	Source string
	// ArticleURL is the page the image was found on
	ArticleURL string
}

// Plugin defines the interface that image processors must implement
type Plugin interface {
	// Name returns the plugin name for identification
	Name() string

	// CanHandle returns true if this plugin wants to process the image
	CanHandle(img Image) bool

	// Process returns the URL to publish instead of img.URL.
	// This may involve downloading and re-uploading the image.
	Process(ctx context.Context, img Image, client *http.Client) (string, error)

	// Priority returns the priority of this plugin (higher = higher priority)
	// Useful when multiple plugins can handle the same image
	Priority() int
}

// Registry manages all registered plugins
type Registry struct {
	plugins []Plugin
	client  *http.Client
	logger  *slog.Logger
}

// NewRegistry creates a new plugin registry
func NewRegistry(timeout time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		plugins: make([]Plugin, 0),
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "images"),
	}
}

// Register adds a plugin to the registry
func (r *Registry) Register(plugin Plugin) {
	r.plugins = append(r.plugins, plugin)
}

// FindPlugin returns the plugin with highest priority that can handle img
func (r *Registry) FindPlugin(img Image) Plugin {
	var bestPlugin Plugin
	highestPriority := -1

	for _, plugin := range r.plugins {
		if plugin.CanHandle(img) && plugin.Priority() > highestPriority {
			bestPlugin = plugin
			highestPriority = plugin.Priority()
		}
	}

	return bestPlugin
}

// Process returns the URL to publish for img. It falls back to the original
// URL when no plugin applies or the plugin fails.
func (r *Registry) Process(ctx context.Context, img Image) string {
	if img.URL == "" {
		return ""
	}
	plugin := r.FindPlugin(img)
	if plugin == nil {
		return img.URL
	}

	out, err := plugin.Process(ctx, img, r.client)
	if err != nil || out == "" {
		r.logger.Warn("image processing failed, keeping original",
			"plugin", plugin.Name(), "source", img.Source, "url", img.URL, "error", err)
		return img.URL
	}
	r.logger.Debug("image processed", "plugin", plugin.Name(), "from", img.URL, "to", out)
	return out
}

// ListPlugins returns all registered plugins
func (r *Registry) ListPlugins() []Plugin {
	return append([]Plugin(nil), r.plugins...)
}
