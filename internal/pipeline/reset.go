package pipeline

import (
	"context"
	"fmt"

	"github.com/pders01/newsroom/internal/guard"
)

// FeedCache is the part of the metadata store reset needs.
type FeedCache interface {
	ClearFetchMetadata(feedURL string) error
}

// Reset deletes the local state under the pruning lock and forgets feed
// validators so every item becomes eligible again. Remote pages are left
// alone.
func Reset(ctx context.Context, deps Deps, cache FeedCache) error {
	logger := deps.logger().With("pipeline", "reset")

	if err := deps.Guard.Acquire(guard.Prune); err != nil {
		return err
	}
	defer func() {
		if err := deps.Guard.Release(guard.Prune); err != nil {
			logger.Warn("releasing prune lock failed", "error", err)
		}
	}()

	deps.State.Load()

	if err := ctx.Err(); err != nil {
		return err
	}

	before := deps.State.Len()
	if err := deps.State.Reset(); err != nil {
		return err
	}

	if cache != nil {
		for _, src := range deps.Config.Feeds {
			if err := cache.ClearFetchMetadata(src.URL); err != nil {
				return fmt.Errorf("clearing feed cache for %s: %w", src.Name, err)
			}
		}
	}

	logger.Info("state reset", "items_dropped", before, "path", deps.State.Path())
	return nil
}
