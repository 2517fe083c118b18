package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/newsroom/internal/apperr"
	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/debuglog"
	"github.com/pders01/newsroom/internal/guard"
	"github.com/pders01/newsroom/internal/notion"
	"github.com/pders01/newsroom/internal/storage"
)

func fiveItems() []storage.ProcessedItem {
	return []storage.ProcessedItem{
		item("https://x/3", "2024-03-01T00:00:00Z", "p3"),
		item("https://x/1", "2024-01-01T00:00:00Z", "p1"),
		item("https://x/5", "2024-05-01T00:00:00Z", "p5"),
		item("https://x/2", "2024-02-01T00:00:00Z", "p2"),
		item("https://x/4", "2024-04-01T00:00:00Z", "p4"),
	}
}

func TestPruneRemovesOldest(t *testing.T) {
	d, remote, reports := newDeps(t)
	require.NoError(t, d.State.Save(fiveItems()))

	report, err := NewPruner(d).Run(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Targeted)
	assert.Equal(t, 2, report.Removed)
	assert.Equal(t, 3, report.Remaining)
	assert.Equal(t, []string{"p1", "p2"}, remote.archived)

	assert.False(t, d.State.Contains("https://x/1"))
	assert.False(t, d.State.Contains("https://x/2"))
	assert.Equal(t, 3, storage.OpenState(d.Config.State.Path, nil).Len())
	assert.Contains(t, reports, KindPrune)
}

func TestPruneRemoteFailuresStillRemove(t *testing.T) {
	d, remote, _ := newDeps(t)
	remote.failID = map[string]bool{"p1": true, "p2": true}
	require.NoError(t, d.State.Save(fiveItems()))

	report, err := NewPruner(d).Run(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, report.RemoteFailed)
	assert.Equal(t, 0, report.Archived)
	assert.Equal(t, 2, report.Removed)
	assert.Len(t, report.Errors, 2)
	assert.Equal(t, 3, storage.OpenState(d.Config.State.Path, nil).Len())
}

func TestPruneMissingDatesFirst(t *testing.T) {
	d, remote, _ := newDeps(t)
	items := fiveItems()
	items = append(items,
		item("https://x/nodate", "", ""),
		item("https://x/garbage", "hier", "pg"),
	)
	require.NoError(t, d.State.Save(items))

	report, err := NewPruner(d).Run(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Removed)
	assert.False(t, d.State.Contains("https://x/nodate"))
	assert.False(t, d.State.Contains("https://x/garbage"))
	assert.False(t, d.State.Contains("https://x/1"))
	assert.Equal(t, []string{"pg", "p1"}, remote.archived)
}

func TestPruneMoreThanStored(t *testing.T) {
	d, _, _ := newDeps(t)
	require.NoError(t, d.State.Save(fiveItems()[:2]))

	report, err := NewPruner(d).Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Targeted)
	assert.Equal(t, 0, d.State.Len())
}

func TestPruneDefaultBatchSize(t *testing.T) {
	d, _, _ := newDeps(t)
	d.Config.Ingest.PruneBatchSize = 1
	require.NoError(t, d.State.Save(fiveItems()))

	report, err := NewPruner(d).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
}

func TestPruneAbortsWhenIngestHeld(t *testing.T) {
	d, remote, _ := newDeps(t)
	require.NoError(t, d.State.Save(fiveItems()))
	other := guard.New(d.Guard.Dir())
	require.NoError(t, other.Acquire(guard.Ingest))
	defer other.Release(guard.Ingest)

	_, err := NewPruner(d).Run(context.Background(), 2)
	assert.ErrorIs(t, err, apperr.ErrConcurrency)
	assert.Empty(t, remote.archived)
	assert.Equal(t, 5, d.State.Len())
}

func TestWipe(t *testing.T) {
	d, remote, reports := newDeps(t)
	logDir := filepath.Join(t.TempDir(), "logs")
	d.Interactions = debuglog.NewInteractionLog(logDir, true)
	require.NoError(t, d.Interactions.Record(debuglog.Interaction{ID: "1", Prompt: "p"}))

	require.NoError(t, d.State.Save(fiveItems()))
	remote.failID = map[string]bool{"p3": true}
	remote.pages = []notion.RemotePage{
		{ID: "p1", URL: "https://x/1"},
		{ID: "p3", URL: "https://x/3"},
		{ID: "orphan"},
		{ID: ""},
	}

	report, err := NewWiper(d).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Pages)
	assert.Equal(t, 2, report.Archived)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, 1, report.LogsPurged)
	assert.Len(t, report.Errors, 2)

	assert.False(t, d.State.Contains("https://x/1"))
	assert.True(t, d.State.Contains("https://x/3"))
	assert.Equal(t, 4, storage.OpenState(d.Config.State.Path, nil).Len())
	assert.Contains(t, reports, KindWipe)

	files, _ := filepath.Glob(filepath.Join(logDir, "*.log"))
	assert.Empty(t, files)
}

func TestReset(t *testing.T) {
	d, _, _ := newDeps(t)
	require.NoError(t, d.State.Save(fiveItems()))

	cache := &recordingCache{}
	d.Config.Feeds = []config.FeedSource{{Name: "A", URL: "https://a/feed"}, {Name: "B", URL: "https://b/feed"}}
	require.NoError(t, Reset(context.Background(), d, cache))
	assert.Equal(t, []string{"https://a/feed", "https://b/feed"}, cache.cleared)
	assert.Equal(t, 0, d.State.Len())
	_, err := os.Stat(d.Config.State.Path)
	assert.True(t, os.IsNotExist(err))
	assert.False(t, d.Guard.IsHeld(guard.Prune))
}

func TestResetAbortsWhenIngestHeld(t *testing.T) {
	d, _, _ := newDeps(t)
	require.NoError(t, d.State.Save(fiveItems()))
	other := guard.New(d.Guard.Dir())
	require.NoError(t, other.Acquire(guard.Ingest))
	defer other.Release(guard.Ingest)

	err := Reset(context.Background(), d, nil)
	assert.ErrorIs(t, err, apperr.ErrConcurrency)
	assert.Equal(t, 5, d.State.Len())
}

type recordingCache struct{ cleared []string }

func (r *recordingCache) ClearFetchMetadata(feedURL string) error {
	r.cleared = append(r.cleared, feedURL)
	return nil
}

func TestPruneReloadsStateAfterLocking(t *testing.T) {
	d, remote, _ := newDeps(t)
	require.NoError(t, d.State.Save(fiveItems()))

	other := storage.OpenState(d.Config.State.Path, nil)
	_, err := other.RemoveByURL("https://x/1")
	require.NoError(t, err)

	report, err := NewPruner(d).Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, []string{"p2"}, remote.archived)
	assert.Equal(t, 3, storage.OpenState(d.Config.State.Path, nil).Len())
}
