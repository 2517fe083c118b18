// Package pipeline drives ingestion, pruning, wiping and reset of the
// published article set.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/debuglog"
	"github.com/pders01/newsroom/internal/feed"
	"github.com/pders01/newsroom/internal/guard"
	"github.com/pders01/newsroom/internal/notion"
	"github.com/pders01/newsroom/internal/oracle"
	"github.com/pders01/newsroom/internal/plugins"
	"github.com/pders01/newsroom/internal/scrape"
	"github.com/pders01/newsroom/internal/storage"
)

// Feeds fetches configured feeds and remembers which ones were fully handled.
type Feeds interface {
	FetchAll(ctx context.Context, sources []config.FeedSource) []feed.Result
	Commit(b *feed.Batch) error
	Invalidate(feedURL string) error
}

// ArticleFetcher loads the full page behind a feed item.
type ArticleFetcher interface {
	FetchArticle(ctx context.Context, pageURL string) (*scrape.Article, error)
}

// Classifier returns a verdict for one candidate. It does not fail.
type Classifier interface {
	Classify(ctx context.Context, title, content string, contextTitles []string) oracle.Verdict
}

// Publisher creates pages in the remote database.
type Publisher interface {
	CheckConnection(ctx context.Context) error
	CreatePage(ctx context.Context, p notion.Page) (string, error)
}

// Archiver hides pages in the remote database.
type Archiver interface {
	ArchivePage(ctx context.Context, id string) error
	QueryPages(ctx context.Context) ([]notion.RemotePage, error)
}

// Images picks the image URL to publish.
type Images interface {
	Process(ctx context.Context, img plugins.Image) string
}

// Reports keeps the last report of each kind.
type Reports interface {
	SaveReport(kind string, report any) error
}

// Deps bundles the collaborators of every pipeline. Images and Reports are
// optional.
type Deps struct {
	Config       *config.Config
	Guard        *guard.Guard
	State        *storage.StateStore
	Feeds        Feeds
	Articles     ArticleFetcher
	Classifier   Classifier
	Publisher    Publisher
	Remote       Archiver
	Images       Images
	Reports      Reports
	Interactions *debuglog.InteractionLog
	Logger       *slog.Logger
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

func (d *Deps) saveReport(kind string, report any) {
	if d.Reports == nil {
		return
	}
	if err := d.Reports.SaveReport(kind, report); err != nil {
		d.logger().Warn("saving run report failed", "kind", kind, "error", err)
	}
}
