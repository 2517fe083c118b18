package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pders01/newsroom/internal/apperr"
)

var (
	feedsBucket   = []byte("feeds")
	reportsBucket = []byte("reports")
)

// MetaStore keeps run bookkeeping that is not part of the published-item
// state: conditional GET validators per feed and the last report of each
// pipeline.
type MetaStore struct {
	db *bolt.DB
}

// NewMetaStore opens (or creates) the bbolt database at dbPath. bbolt holds an
// exclusive file lock, so a timeout means another run owns the database.
func NewMetaStore(dbPath string, timeout time.Duration) (*MetaStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, apperr.New(apperr.ErrConcurrency, "open cache", err)
		}
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{feedsBucket, reportsBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &MetaStore{db: db}, nil
}

// OpenMetaStoreReadOnly opens the database with a shared lock for inspection.
func OpenMetaStoreReadOnly(dbPath string, timeout time.Duration) (*MetaStore, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return &MetaStore{db: db}, nil
}

func (s *MetaStore) Close() error {
	return s.db.Close()
}

// GetFetchMetadata returns the validators stored for feedURL, or nil.
func (s *MetaStore) GetFetchMetadata(feedURL string) (*FetchMetadata, error) {
	var meta *FetchMetadata
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(feedsBucket)
		if b == nil {
			return nil
		}
		data := b.Get([]byte(feedURL))
		if data == nil {
			return nil
		}
		meta = &FetchMetadata{}
		return json.Unmarshal(data, meta)
	})
	return meta, err
}

func (s *MetaStore) SaveFetchMetadata(meta *FetchMetadata) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(feedsBucket)
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return b.Put([]byte(meta.FeedURL), data)
	})
}

// ClearFetchMetadata forgets the validators of feedURL so the next fetch is
// unconditional.
func (s *MetaStore) ClearFetchMetadata(feedURL string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(feedsBucket).Delete([]byte(feedURL))
	})
}

// SaveReport stores the JSON encoding of report under kind.
func (s *MetaStore) SaveReport(kind string, report any) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(report)
		if err != nil {
			return err
		}
		return tx.Bucket(reportsBucket).Put([]byte(kind), data)
	})
}

// LoadReport decodes the report stored under kind into out. It reports false
// when nothing was stored yet.
func (s *MetaStore) LoadReport(kind string, out any) (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(reportsBucket)
		if b == nil {
			return nil
		}
		data := b.Get([]byte(kind))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, out)
	})
	return found, err
}
