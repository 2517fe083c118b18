package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pders01/newsroom/internal/apperr"
)

func setupTestStore(t *testing.T) *MetaStore {
	t.Helper()
	store, err := NewMetaStore(filepath.Join(t.TempDir(), "cache", "test.db"), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMetaStore_FetchMetadata(t *testing.T) {
	store := setupTestStore(t)

	meta, err := store.GetFetchMetadata("https://example.org/feed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta != nil {
		t.Fatalf("expected no metadata, got %+v", meta)
	}

	saved := &FetchMetadata{
		FeedURL:      "https://example.org/feed",
		ETag:         "\"abc123\"",
		LastModified: "Wed, 01 Jan 2025 00:00:00 GMT",
		LastFetched:  time.Now().UTC().Truncate(time.Second),
	}
	if err := store.SaveFetchMetadata(saved); err != nil {
		t.Fatalf("failed to save metadata: %v", err)
	}

	meta, err = store.GetFetchMetadata(saved.FeedURL)
	if err != nil {
		t.Fatalf("failed to get metadata: %v", err)
	}
	if meta.ETag != saved.ETag {
		t.Errorf("expected ETag %s, got %s", saved.ETag, meta.ETag)
	}
	if !meta.LastFetched.Equal(saved.LastFetched) {
		t.Errorf("expected LastFetched %v, got %v", saved.LastFetched, meta.LastFetched)
	}

	if err := store.ClearFetchMetadata(saved.FeedURL); err != nil {
		t.Fatalf("failed to clear metadata: %v", err)
	}
	meta, _ = store.GetFetchMetadata(saved.FeedURL)
	if meta != nil {
		t.Errorf("expected metadata to be cleared")
	}
}

func TestMetaStore_Reports(t *testing.T) {
	store := setupTestStore(t)

	type report struct {
		Published int `json:"published"`
	}

	var got report
	found, err := store.LoadReport("ingest", &got)
	if err != nil || found {
		t.Fatalf("expected empty report, found=%v err=%v", found, err)
	}

	if err := store.SaveReport("ingest", report{Published: 3}); err != nil {
		t.Fatalf("failed to save report: %v", err)
	}
	found, err = store.LoadReport("ingest", &got)
	if err != nil || !found {
		t.Fatalf("expected stored report, found=%v err=%v", found, err)
	}
	if got.Published != 3 {
		t.Errorf("expected 3 published, got %d", got.Published)
	}
}

func TestMetaStore_SecondOpenTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locked.db")
	first, err := NewMetaStore(path, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()

	_, err = NewMetaStore(path, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected second open to fail while the first holds the lock")
	}
	if !errors.Is(err, apperr.ErrConcurrency) {
		t.Errorf("expected concurrency error, got %v", err)
	}
}
