package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pders01/newsroom/internal/apperr"
	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/storage"
)

const maxFeedSize = 20 << 20

// MetaCache stores conditional GET validators per feed.
type MetaCache interface {
	GetFetchMetadata(feedURL string) (*storage.FetchMetadata, error)
	SaveFetchMetadata(meta *storage.FetchMetadata) error
	ClearFetchMetadata(feedURL string) error
}

// Batch is the outcome of fetching one feed.
type Batch struct {
	Source      config.FeedSource
	Candidates  []storage.Candidate
	NotModified bool

	meta *storage.FetchMetadata
}

// Result pairs a configured feed with its batch or fetch error.
type Result struct {
	Source config.FeedSource
	Batch  *Batch
	Err    error
}

type Manager struct {
	cache   MetaCache
	fetcher *Fetcher
	parser  *Parser
	workers int
	logger  *slog.Logger
}

// NewManager wires a fetcher and parser from cfg. cache may be nil, in which
// case every fetch is unconditional.
func NewManager(cache MetaCache, cfg *config.Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workers := cfg.Feed.Workers
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		cache:   cache,
		fetcher: NewFetcher(cfg),
		parser:  NewParser(cfg.Ingest.StripTitlePrefixes),
		workers: workers,
		logger:  logger.With("component", "feed"),
	}
}

// SetForceRefresh configures the manager to ignore ETag/Last-Modified headers
func (m *Manager) SetForceRefresh(force bool) {
	m.fetcher.SetIgnoreCache(force)
}

// Fetch downloads and parses one feed. Failures are apperr.ErrExternalService
// errors.
func (m *Manager) Fetch(ctx context.Context, src config.FeedSource) (*Batch, error) {
	var meta *storage.FetchMetadata
	if m.cache != nil {
		cached, err := m.cache.GetFetchMetadata(src.URL)
		if err != nil {
			m.logger.Warn("reading fetch metadata failed", "feed", src.Name, "error", err)
		} else {
			meta = cached
		}
	}

	resp, updated, err := m.fetcher.Fetch(ctx, src.URL, meta)
	if err != nil {
		return nil, apperr.External("fetch "+src.Name, err)
	}
	if !updated {
		m.logger.Debug("feed not modified", "feed", src.Name)
		return &Batch{Source: src, NotModified: true}, nil
	}
	defer resp.Body.Close()

	candidates, err := m.parser.Parse(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, apperr.External("fetch "+src.Name, err)
	}

	m.logger.Debug("feed fetched", "feed", src.Name, "items", len(candidates))
	return &Batch{
		Source:     src,
		Candidates: candidates,
		meta:       NewMetadata(src.URL, resp),
	}, nil
}

// FetchAll fetches every source with a bounded worker pool. Results keep the
// order of sources so callers can still process feeds in configured order.
func (m *Manager) FetchAll(ctx context.Context, sources []config.FeedSource) []Result {
	results := make([]Result, len(sources))
	if len(sources) == 0 {
		return results
	}

	jobs := make(chan int, len(sources))
	var wg sync.WaitGroup
	for i := 0; i < m.workers && i < len(sources); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				src := sources[idx]
				batch, err := m.Fetch(ctx, src)
				results[idx] = Result{Source: src, Batch: batch, Err: err}
			}
		}()
	}

	for i := range sources {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// Commit stores the validators of a fully processed batch so the next run
// can skip an unchanged feed.
func (m *Manager) Commit(b *Batch) error {
	if m.cache == nil || b == nil || b.meta == nil {
		return nil
	}
	if b.meta.ETag == "" && b.meta.LastModified == "" {
		return nil
	}
	if err := m.cache.SaveFetchMetadata(b.meta); err != nil {
		return fmt.Errorf("saving fetch metadata: %w", err)
	}
	return nil
}

// Invalidate forgets the validators of a feed so items that failed this run
// are fetched again next time.
func (m *Manager) Invalidate(feedURL string) error {
	if m.cache == nil {
		return nil
	}
	if err := m.cache.ClearFetchMetadata(feedURL); err != nil {
		return fmt.Errorf("clearing fetch metadata: %w", err)
	}
	return nil
}
