package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/newsroom/internal/apperr"
)

func setupTestState(t *testing.T) *StateStore {
	t.Helper()
	return OpenState(filepath.Join(t.TempDir(), "processed_articles.json"), nil)
}

func TestState_AppendContainsRemove(t *testing.T) {
	s := setupTestState(t)

	require.False(t, s.Contains("https://x/1"))

	require.NoError(t, s.Append(ProcessedItem{URL: "https://x/1", Title: "One"}))
	assert.True(t, s.Contains("https://x/1"))

	// Survives a reload from disk.
	reloaded := OpenState(s.Path(), nil)
	assert.True(t, reloaded.Contains("https://x/1"))

	removed, err := s.RemoveByURL("https://x/1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.False(t, s.Contains("https://x/1"))
	assert.False(t, OpenState(s.Path(), nil).Contains("https://x/1"))
}

func TestState_RemoveByURLDropsAllDuplicates(t *testing.T) {
	s := setupTestState(t)
	require.NoError(t, s.Save([]ProcessedItem{
		{URL: "https://x/1", Title: "first copy"},
		{URL: "https://x/2"},
		{URL: "https://x/1", Title: "second copy"},
	}))

	removed, err := s.RemoveByURL("https://x/1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, s.Len())

	removed, err = s.RemoveByURL("https://x/unknown")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestState_MissingAndCorruptLoadEmpty(t *testing.T) {
	s := setupTestState(t)
	assert.Empty(t, s.Load())

	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))
	assert.Empty(t, s.Load())
	assert.Zero(t, s.Len())

	require.NoError(t, os.WriteFile(s.Path(), []byte("42"), 0o644))
	assert.Empty(t, s.Load())
}

func TestState_LegacyFlatListUpgraded(t *testing.T) {
	s := setupTestState(t)
	legacy := `["https://x/1", "https://x/2", {"url": "https://x/3", "title": "Three"}]`
	require.NoError(t, os.WriteFile(s.Path(), []byte(legacy), 0o644))

	items := s.Load()
	require.Len(t, items, 3)
	assert.Equal(t, "https://x/1", items[0].URL)
	assert.Equal(t, "Three", items[2].Title)

	require.NoError(t, s.Append(ProcessedItem{URL: "https://x/4"}))

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(string(raw)), "{"), "legacy layout must not be written back")

	var doc map[string][]map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Len(t, doc["articles"], 4)
	assert.Equal(t, "https://x/1", doc["articles"][0]["url"])
}

func TestState_RoundTripOmitsEmptyFields(t *testing.T) {
	s := setupTestState(t)
	item := ProcessedItem{
		URL:   "https://x/1",
		Title: "Titre « accentué »",
		Classification: &Classification{
			SignificanceScore: 7.5,
			Summary:           "Résumé",
			Tags:              []string{"Tech"},
		},
		PublishedDate: "2025-01-02T10:00:00Z",
		Source:        "Korben",
		RecordedAt:    "2025-01-02T11:00:00Z",
		RemoteID:      "page_1",
	}
	require.NoError(t, s.Append(item))
	require.NoError(t, s.Append(ProcessedItem{URL: "https://x/2"}))

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "accentué", "non-ASCII text is written verbatim")
	assert.NotContains(t, string(raw), "image_url")
	assert.NotContains(t, string(raw), "null")

	loaded := OpenState(s.Path(), nil).Items()
	require.Len(t, loaded, 2)
	assert.Equal(t, item, loaded[0])
	assert.Nil(t, loaded[1].Classification)
}

func TestState_MalformedAnalysisKeepsRecord(t *testing.T) {
	s := setupTestState(t)
	doc := `{"articles": [{"url": "https://x/1", "title": "T", "analysis": "not an object", "notion_id": null}]}`
	require.NoError(t, os.WriteFile(s.Path(), []byte(doc), 0o644))

	items := s.Load()
	require.Len(t, items, 1)
	assert.Equal(t, "T", items[0].Title)
	assert.Nil(t, items[0].Classification)
	assert.Empty(t, items[0].RemoteID)
}

func TestState_SaveFailureIsIOError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := OpenState(filepath.Join(blocker, "state.json"), nil)
	err := s.Append(ProcessedItem{URL: "https://x/1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrIO))
	assert.True(t, s.Contains("https://x/1"), "item stays in memory after a failed write")
}

func TestState_Reset(t *testing.T) {
	s := setupTestState(t)
	require.NoError(t, s.Append(ProcessedItem{URL: "https://x/1"}))

	require.NoError(t, s.Reset())
	assert.Zero(t, s.Len())
	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, s.Reset(), "reset of a missing file is a no-op")
}

func TestState_Titles(t *testing.T) {
	s := setupTestState(t)
	require.NoError(t, s.Save([]ProcessedItem{{URL: "a", Title: "A"}, {URL: "b"}, {URL: "c", Title: "C"}}))
	assert.Equal(t, []string{"A", "C"}, s.Titles())
}
