package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/guard"
)

// Wiper archives every page of the remote database and forgets the matching
// local items.
type Wiper struct {
	deps Deps
	now  func() time.Time
}

func NewWiper(deps Deps) *Wiper {
	return &Wiper{deps: deps, now: time.Now}
}

// Run wipes under the pruning lock. Interaction logs are purged first. Each
// archived page is removed from the store by URL and the store is written
// after every removal, so an interrupted wipe loses as little as possible.
func (w *Wiper) Run(ctx context.Context) (*WipeReport, error) {
	d := &w.deps
	report := &WipeReport{RunID: uuid.NewString(), StartedAt: w.now()}
	logger := d.logger().With("run_id", report.RunID, "pipeline", "wipe")

	if err := d.Guard.Acquire(guard.Prune); err != nil {
		return report, err
	}
	defer func() {
		if err := d.Guard.Release(guard.Prune); err != nil {
			logger.Warn("releasing prune lock failed", "error", err)
		}
	}()

	d.State.Load()

	if err := d.Config.RequireCredentials(config.RemoteKey, config.RemoteDatabase); err != nil {
		return report, err
	}

	purged, err := d.Interactions.Purge()
	report.LogsPurged = purged
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("purge interaction logs: %v", err))
		logger.Warn("purging interaction logs incomplete", "error", err)
	}

	pages, err := d.Remote.QueryPages(ctx)
	report.Pages = len(pages)
	if err != nil {
		if len(pages) == 0 {
			report.FinishedAt = w.now()
			d.saveReport(KindWipe, report)
			return report, fmt.Errorf("listing remote pages: %w", err)
		}
		report.Errors = append(report.Errors, fmt.Sprintf("listing remote pages: %v", err))
		logger.Warn("page listing incomplete, wiping what was listed", "pages", len(pages), "error", err)
	}
	logger.Info("wipe started", "pages", len(pages))

	limit := rate.Inf
	if delay := d.Config.Remote.WipeDelay; delay > 0 {
		limit = rate.Every(delay)
	}
	pacer := rate.NewLimiter(limit, 1)

	var runErr error
	for i, page := range pages {
		if err := pacer.Wait(ctx); err != nil {
			runErr = err
			break
		}
		if page.ID == "" {
			report.Errors = append(report.Errors, fmt.Sprintf("page %d has no id", i+1))
			continue
		}

		if err := d.Remote.ArchivePage(ctx, page.ID); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("archive %s: %v", page.ID, err))
			logger.Warn("archiving page failed", "page_id", page.ID, "title", page.Title, "error", err)
			continue
		}
		report.Archived++
		logger.Debug("page archived", "page_id", page.ID, "position", i+1, "total", len(pages))

		if page.URL == "" {
			continue
		}
		n, err := d.State.RemoveByURL(page.URL)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("forget %s: %v", page.URL, err))
			logger.Error("state write failed during wipe", "url", page.URL, "error", err)
			continue
		}
		report.Removed += n
	}

	report.FinishedAt = w.now()
	d.saveReport(KindWipe, report)
	logger.Info("wipe finished",
		"pages", report.Pages,
		"archived", report.Archived,
		"removed", report.Removed,
		"logs_purged", report.LogsPurged,
		"errors", len(report.Errors),
	)
	return report, runErr
}
