package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/feed"
	"github.com/pders01/newsroom/internal/guard"
	"github.com/pders01/newsroom/internal/notion"
	"github.com/pders01/newsroom/internal/oracle"
	"github.com/pders01/newsroom/internal/plugins"
	"github.com/pders01/newsroom/internal/search"
	"github.com/pders01/newsroom/internal/storage"
)

// Ingestor publishes new feed items.
type Ingestor struct {
	deps Deps
	now  func() time.Time
}

func NewIngestor(deps Deps) *Ingestor {
	return &Ingestor{deps: deps, now: time.Now}
}

// Run performs one ingestion pass under the ingestion lock. Lock conflicts,
// missing credentials, a failed remote preflight and state write failures
// abort the run; per-feed and per-item failures are counted and skipped.
func (in *Ingestor) Run(ctx context.Context) (*IngestReport, error) {
	d := &in.deps
	cfg := d.Config
	report := &IngestReport{RunID: uuid.NewString(), StartedAt: in.now()}
	logger := d.logger().With("run_id", report.RunID, "pipeline", "ingest")

	if err := d.Guard.Acquire(guard.Ingest); err != nil {
		return report, err
	}
	defer func() {
		if err := d.Guard.Release(guard.Ingest); err != nil {
			logger.Warn("releasing ingest lock failed", "error", err)
		}
	}()

	// Another process may have rewritten the file since it was opened.
	known := d.State.Load()

	if err := cfg.RequireCredentials(config.OracleKey, config.RemoteKey, config.RemoteDatabase); err != nil {
		return report, err
	}
	if err := d.Publisher.CheckConnection(ctx); err != nil {
		return report, fmt.Errorf("remote database unreachable: %w", err)
	}

	window := search.NewContextWindow(
		d.State.Titles(),
		cfg.Oracle.ContextWindow,
		search.Strategy(cfg.Oracle.ContextStrategy),
		search.AnalyzerFor(cfg.Oracle.Language),
		logger,
	)
	defer window.Close()

	logger.Info("ingestion started", "feeds", len(cfg.Feeds), "known_items", len(known))

	results := d.Feeds.FetchAll(ctx, cfg.Feeds)
	report.Feeds = len(results)

	var runErr error
	for _, res := range results {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := in.processFeed(ctx, res, window, report, logger); err != nil {
			runErr = err
			break
		}
	}

	if runErr == nil {
		in.autoPrune(ctx, report, logger)
	}

	report.FinishedAt = in.now()
	d.saveReport(KindIngest, report)

	logger.Info("ingestion finished",
		"found", report.Found,
		"skipped", report.Skipped,
		"published", report.Published,
		"failed", report.Failed,
		"pruned", report.Pruned,
		"errors", len(report.Errors),
		"elapsed", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, runErr
}

// processFeed handles the candidates of one feed in feed order. Only a state
// write failure or cancellation is returned.
func (in *Ingestor) processFeed(ctx context.Context, res feed.Result, window *search.ContextWindow, report *IngestReport, logger *slog.Logger) error {
	d := &in.deps
	src := res.Source
	logger = logger.With("feed", src.Name)

	if res.Err != nil {
		report.FeedErrors++
		report.Errors = append(report.Errors, res.Err.Error())
		logger.Warn("feed fetch failed", "error", res.Err)
		return nil
	}
	if res.Batch.NotModified {
		report.NotModified++
		return nil
	}

	candidates := res.Batch.Candidates
	if limit := d.Config.Ingest.MaxItemsPerFeed; limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	report.Found += len(candidates)

	clean := true
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			in.settleFeed(res.Batch, false, logger)
			return err
		}
		if d.State.Contains(c.Link) {
			report.Skipped++
			continue
		}

		published, err := in.processCandidate(ctx, src, c, window, report, logger)
		if err != nil {
			in.settleFeed(res.Batch, false, logger)
			return err
		}
		if !published {
			clean = false
		}
	}

	in.settleFeed(res.Batch, clean, logger)
	return nil
}

// settleFeed keeps the feed validators only when every new item made it, so
// a 304 on the next run cannot hide an item that still needs publishing.
func (in *Ingestor) settleFeed(b *feed.Batch, clean bool, logger *slog.Logger) {
	var err error
	if clean {
		err = in.deps.Feeds.Commit(b)
	} else {
		err = in.deps.Feeds.Invalidate(b.Source.URL)
	}
	if err != nil {
		logger.Warn("updating feed cache failed", "error", err)
	}
}

func (in *Ingestor) processCandidate(ctx context.Context, src config.FeedSource, c storage.Candidate, window *search.ContextWindow, report *IngestReport, logger *slog.Logger) (bool, error) {
	d := &in.deps
	logger = logger.With("url", c.Link)

	content, image := c.Summary, c.ImageURL
	article, err := d.Articles.FetchArticle(ctx, c.Link)
	switch {
	case err != nil:
		report.ScrapeMisses++
		logger.Debug("article fetch failed, using feed summary", "error", err)
	case strings.TrimSpace(article.Content) == "":
		report.ScrapeMisses++
		logger.Debug("article has no content, using feed summary")
	default:
		content = article.Content
	}
	if err == nil && article.ImageURL != "" {
		image = article.ImageURL
	}

	if d.Images != nil && image != "" {
		image = d.Images.Process(ctx, plugins.Image{URL: image, Source: src.Name, ArticleURL: c.Link})
	}

	verdict := d.Classifier.Classify(ctx, c.Title, content, window.Titles(c.Title))
	if verdict.Outcome != oracle.Classified {
		report.Fallbacks++
	}

	pageID, err := d.Publisher.CreatePage(ctx, notion.Page{
		Title:          c.Title,
		Content:        content,
		Classification: verdict.Classification,
		ImageURL:       image,
		URL:            c.Link,
		PublishedDate:  c.PublishedDate,
		Source:         src.Name,
	})
	if err != nil {
		report.Failed++
		report.Errors = append(report.Errors, fmt.Sprintf("publish %s: %v", c.Link, err))
		logger.Warn("publish failed, item stays eligible", "error", err)
		return false, nil
	}

	cls := verdict.Classification
	item := storage.ProcessedItem{
		URL:            c.Link,
		Title:          c.Title,
		Content:        content,
		Classification: &cls,
		PublishedDate:  c.PublishedDate,
		ImageURL:       image,
		Source:         src.Name,
		RecordedAt:     storage.Timestamp(in.now()),
		RemoteID:       pageID,
	}
	if err := d.State.Append(item); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("record %s: %v", c.Link, err))
		logger.Error("state write failed after publish", "page_id", pageID, "error", err)
		return false, err
	}

	report.Published++
	logger.Info("published", "title", c.Title, "page_id", pageID, "outcome", verdict.Outcome.String())
	return true, nil
}

func (in *Ingestor) autoPrune(ctx context.Context, report *IngestReport, logger *slog.Logger) {
	d := &in.deps
	threshold := d.Config.Ingest.AutoPruneThreshold
	if threshold <= 0 || d.State.Len() <= threshold {
		return
	}

	logger.Info("store above threshold, pruning", "items", d.State.Len(), "threshold", threshold)
	p := &Pruner{deps: in.deps, now: in.now}
	pr, err := p.prune(ctx, d.Config.Ingest.PruneBatchSize, report.RunID, true)
	report.Pruned = pr.Removed
	d.saveReport(KindPrune, pr)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("auto prune: %v", err))
		logger.Error("auto prune failed", "error", err)
	}
}
