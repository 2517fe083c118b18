package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/guard"
	"github.com/pders01/newsroom/internal/storage"
)

// Pruner removes the oldest items from the store and archives their pages.
type Pruner struct {
	deps Deps
	now  func() time.Time
}

func NewPruner(deps Deps) *Pruner {
	return &Pruner{deps: deps, now: time.Now}
}

// Run prunes n items under the pruning lock. n <= 0 uses the configured
// batch size.
func (p *Pruner) Run(ctx context.Context, n int) (*PruneReport, error) {
	d := &p.deps
	runID := uuid.NewString()
	logger := d.logger().With("run_id", runID, "pipeline", "prune")

	if err := d.Guard.Acquire(guard.Prune); err != nil {
		return &PruneReport{RunID: runID}, err
	}
	defer func() {
		if err := d.Guard.Release(guard.Prune); err != nil {
			logger.Warn("releasing prune lock failed", "error", err)
		}
	}()

	d.State.Load()

	if err := d.Config.RequireCredentials(config.RemoteKey, config.RemoteDatabase); err != nil {
		return &PruneReport{RunID: runID}, err
	}

	if n <= 0 {
		n = d.Config.Ingest.PruneBatchSize
	}
	report, err := p.prune(ctx, n, runID, false)
	d.saveReport(KindPrune, report)
	return &report, err
}

// prune archives and removes the n oldest items. Items whose archive call
// fails are removed all the same; the store is written once at the end.
// On cancellation only the items already handled are removed.
func (p *Pruner) prune(ctx context.Context, n int, runID string, automatic bool) (PruneReport, error) {
	d := &p.deps
	logger := d.logger().With("run_id", runID, "pipeline", "prune")
	report := PruneReport{RunID: runID, StartedAt: p.now(), Automatic: automatic}

	items := d.State.Items()
	ordered := oldestFirst(items)
	if n > len(ordered) {
		n = len(ordered)
	}
	targets := ordered[:n]
	report.Targeted = len(targets)

	drop := make(map[int]bool, len(targets))
	var runErr error
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		drop[t.index] = true

		if t.item.RemoteID == "" {
			continue
		}
		if err := d.Remote.ArchivePage(ctx, t.item.RemoteID); err != nil {
			report.RemoteFailed++
			report.Errors = append(report.Errors, fmt.Sprintf("archive %s: %v", t.item.RemoteID, err))
			logger.Warn("archiving page failed", "page_id", t.item.RemoteID, "url", t.item.URL, "error", err)
			continue
		}
		report.Archived++
	}

	kept := make([]storage.ProcessedItem, 0, len(items)-len(drop))
	for i, item := range items {
		if !drop[i] {
			kept = append(kept, item)
		}
	}

	if len(drop) > 0 {
		if err := d.State.Save(kept); err != nil {
			report.Errors = append(report.Errors, err.Error())
			report.Remaining = d.State.Len()
			report.FinishedAt = p.now()
			return report, err
		}
	}
	report.Removed = len(drop)
	report.Remaining = len(kept)
	report.FinishedAt = p.now()

	logger.Info("prune finished",
		"targeted", report.Targeted,
		"removed", report.Removed,
		"archived", report.Archived,
		"remote_failed", report.RemoteFailed,
		"remaining", report.Remaining,
	)
	return report, runErr
}

type indexed struct {
	index int
	item  storage.ProcessedItem
	when  time.Time
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// parseDate returns the zero time for missing or unparsable dates, which
// therefore sort before every real date.
func parseDate(s string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// oldestFirst orders items by published date, stable for equal dates.
func oldestFirst(items []storage.ProcessedItem) []indexed {
	out := make([]indexed, len(items))
	for i, item := range items {
		out[i] = indexed{index: i, item: item, when: parseDate(item.PublishedDate)}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].when.Before(out[b].when)
	})
	return out
}
