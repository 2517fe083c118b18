package plugins

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// mockPlugin is a test plugin for testing the registry
type mockPlugin struct {
	name      string
	priority  int
	canHandle func(Image) bool
	process   func(context.Context, Image, *http.Client) (string, error)
}

func (p *mockPlugin) Name() string {
	return p.name
}

func (p *mockPlugin) CanHandle(img Image) bool {
	if p.canHandle != nil {
		return p.canHandle(img)
	}
	return false
}

func (p *mockPlugin) Process(ctx context.Context, img Image, client *http.Client) (string, error) {
	if p.process != nil {
		return p.process(ctx, img, client)
	}
	return "https://mock.example.com/" + p.name, nil
}

func (p *mockPlugin) Priority() int {
	return p.priority
}

func sourceIs(name string) func(Image) bool {
	return func(img Image) bool { return img.Source == name }
}

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry(5*time.Second, nil)

	assert.NotNil(t, registry)
	assert.Equal(t, 0, len(registry.plugins))
	assert.NotNil(t, registry.client)
}

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry(5*time.Second, nil)
	plugin := &mockPlugin{name: "test", priority: 50}

	registry.Register(plugin)

	assert.Equal(t, 1, len(registry.plugins))
	assert.Equal(t, plugin, registry.plugins[0])
}

func TestRegistry_FindPlugin(t *testing.T) {
	registry := NewRegistry(5*time.Second, nil)

	plugin1 := &mockPlugin{name: "low-priority", priority: 10, canHandle: sourceIs("JVC")}
	plugin2 := &mockPlugin{name: "high-priority", priority: 100, canHandle: sourceIs("JVC")}
	plugin3 := &mockPlugin{name: "different-source", priority: 200, canHandle: sourceIs("Korben")}

	registry.Register(plugin1)
	registry.Register(plugin2)
	registry.Register(plugin3)

	t.Run("finds highest priority plugin", func(t *testing.T) {
		assert.Equal(t, plugin2, registry.FindPlugin(Image{Source: "JVC"}))
	})

	t.Run("finds specific plugin", func(t *testing.T) {
		assert.Equal(t, plugin3, registry.FindPlugin(Image{Source: "Korben"}))
	})

	t.Run("returns nil for no matching plugin", func(t *testing.T) {
		assert.Nil(t, registry.FindPlugin(Image{Source: "Numerama"}))
	})
}

func TestRegistry_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("with matching plugin", func(t *testing.T) {
		registry := NewRegistry(5*time.Second, nil)
		registry.Register(&mockPlugin{name: "rehost", priority: 50, canHandle: sourceIs("JVC")})

		out := registry.Process(ctx, Image{URL: "https://jvc.example.com/a.jpg", Source: "JVC"})
		assert.Equal(t, "https://mock.example.com/rehost", out)
	})

	t.Run("without matching plugin", func(t *testing.T) {
		registry := NewRegistry(5*time.Second, nil)
		out := registry.Process(ctx, Image{URL: "https://a.example.com/a.jpg", Source: "Korben"})
		assert.Equal(t, "https://a.example.com/a.jpg", out)
	})

	t.Run("plugin failure keeps original", func(t *testing.T) {
		registry := NewRegistry(5*time.Second, nil)
		registry.Register(&mockPlugin{
			name:      "broken",
			priority:  50,
			canHandle: sourceIs("JVC"),
			process: func(context.Context, Image, *http.Client) (string, error) {
				return "", errors.New("upload refused")
			},
		})
		out := registry.Process(ctx, Image{URL: "https://jvc.example.com/a.jpg", Source: "JVC"})
		assert.Equal(t, "https://jvc.example.com/a.jpg", out)
	})

	t.Run("empty url", func(t *testing.T) {
		registry := NewRegistry(5*time.Second, nil)
		registry.Register(&mockPlugin{name: "any", priority: 1, canHandle: func(Image) bool { return true }})
		assert.Equal(t, "", registry.Process(ctx, Image{Source: "JVC"}))
	})
}

func TestRegistry_ListPlugins(t *testing.T) {
	registry := NewRegistry(5*time.Second, nil)

	plugin1 := &mockPlugin{name: "plugin1", priority: 10}
	plugin2 := &mockPlugin{name: "plugin2", priority: 20}

	registry.Register(plugin1)
	registry.Register(plugin2)

	plugins := registry.ListPlugins()

	assert.Equal(t, 2, len(plugins))
	assert.Contains(t, plugins, plugin1)
	assert.Contains(t, plugins, plugin2)

	// Verify it returns a copy (modifying returned slice doesn't affect registry)
	plugins[0] = nil
	assert.Equal(t, 2, len(registry.plugins))
	assert.NotNil(t, registry.plugins[0])
}
