package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pders01/newsroom/internal/apperr"
)

type stateDocument struct {
	Articles []ProcessedItem `json:"articles"`
}

// StateStore is the local record of published items, persisted as a single
// JSON document. Every mutation rewrites the whole file.
type StateStore struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	items []ProcessedItem
	urls  map[string]int
}

// OpenState loads the state file at path. Missing or unreadable state yields
// an empty store.
func OpenState(path string, logger *slog.Logger) *StateStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &StateStore{path: path, logger: logger}
	s.Load()
	return s
}

// Path returns the state file location.
func (s *StateStore) Path() string {
	return s.path
}

// Load re-reads the state file, replacing the in-memory items. It never fails:
// a missing file or a corrupt document both load as empty.
func (s *StateStore) Load() []ProcessedItem {
	items, err := readState(s.path)
	if err != nil {
		s.logger.Warn("state file unreadable, starting empty", "path", s.path, "error", err)
		items = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.setItems(items)
	return s.snapshot()
}

// Items returns a copy of the stored items in append order.
func (s *StateStore) Items() []ProcessedItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// Titles returns the stored titles in append order, skipping empty ones.
func (s *StateStore) Titles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	titles := make([]string, 0, len(s.items))
	for _, item := range s.items {
		if item.Title != "" {
			titles = append(titles, item.Title)
		}
	}
	return titles
}

// Len returns the number of stored items.
func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Contains reports whether an item with url is stored.
func (s *StateStore) Contains(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.urls[url] > 0
}

// Append adds item and persists the whole collection. On a write failure the
// item stays in memory so the current run does not publish it twice; the
// returned error tells the caller that disk and remote have diverged.
func (s *StateStore) Append(item ProcessedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, item)
	s.urls[item.URL]++
	return s.persist()
}

// RemoveByURL drops every item whose URL matches and persists the result.
// It returns how many items were removed; nothing is written when none match.
func (s *StateStore) RemoveByURL(url string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.urls[url] == 0 {
		return 0, nil
	}

	kept := make([]ProcessedItem, 0, len(s.items))
	for _, item := range s.items {
		if item.URL != url {
			kept = append(kept, item)
		}
	}
	removed := len(s.items) - len(kept)
	s.setItems(kept)
	return removed, s.persist()
}

// Save replaces the stored collection with items and persists it.
func (s *StateStore) Save(items []ProcessedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setItems(append([]ProcessedItem(nil), items...))
	return s.persist()
}

// Reset deletes the state file and empties the store.
func (s *StateStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperr.IO("reset state", err)
	}
	s.setItems(nil)
	return nil
}

func (s *StateStore) setItems(items []ProcessedItem) {
	s.items = items
	s.urls = make(map[string]int, len(items))
	for _, item := range items {
		s.urls[item.URL]++
	}
}

func (s *StateStore) snapshot() []ProcessedItem {
	return append([]ProcessedItem(nil), s.items...)
}

// persist writes the collection to a temporary file next to the state file
// and renames it into place.
func (s *StateStore) persist() error {
	doc := stateDocument{Articles: s.items}
	if doc.Articles == nil {
		doc.Articles = []ProcessedItem{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return apperr.IO("encode state", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.IO("create state directory", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return apperr.IO("create temp state", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperr.IO("write state", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperr.IO("sync state", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperr.IO("close state", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return apperr.IO("replace state", err)
	}
	return nil
}

func readState(path string) ([]ProcessedItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return DecodeState(data)
}

// DecodeState normalizes any persisted layout into the current one. Two
// layouts exist: the current document {"articles": [...]} and the legacy flat
// array, whose entries are either bare URL strings or item objects.
func DecodeState(data []byte) ([]ProcessedItem, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var entries []json.RawMessage
	switch trimmed[0] {
	case '{':
		var doc struct {
			Articles []json.RawMessage `json:"articles"`
		}
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("decoding state document: %w", err)
		}
		entries = doc.Articles
	case '[':
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("decoding legacy state: %w", err)
		}
	default:
		return nil, fmt.Errorf("unrecognized state layout")
	}

	items := make([]ProcessedItem, 0, len(entries))
	for _, raw := range entries {
		item, ok := decodeEntry(raw)
		if ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func decodeEntry(raw json.RawMessage) (ProcessedItem, bool) {
	var url string
	if err := json.Unmarshal(raw, &url); err == nil {
		return ProcessedItem{URL: url}, url != ""
	}

	// Decode the analysis separately so a malformed verdict does not cost
	// the whole record.
	var record struct {
		ProcessedItem
		Analysis json.RawMessage `json:"analysis"`
	}
	if err := json.Unmarshal(raw, &record); err != nil || record.URL == "" {
		return ProcessedItem{}, false
	}

	item := record.ProcessedItem
	item.Classification = nil
	if len(record.Analysis) > 0 {
		var c Classification
		if err := json.Unmarshal(record.Analysis, &c); err == nil {
			item.Classification = &c
		}
	}
	return item, true
}
