package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pders01/newsroom/internal/apperr"
	"github.com/pders01/newsroom/internal/pipeline"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		every        time.Duration
		forceRefresh bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch feeds, classify new articles and publish them",
		Long: `Run one ingestion pass: every configured feed is fetched, unseen
articles are scraped, classified and published, and the local state is
pruned when it grows past the configured threshold.

With --every the pass repeats until interrupted. A pass that finds another
pipeline running is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			a.feeds.SetForceRefresh(forceRefresh)
			ingestor := pipeline.NewIngestor(a.deps)
			out := cmd.OutOrStdout()

			if every <= 0 {
				return runOnce(cmd.Context(), ingestor, out)
			}
			return watch(cmd.Context(), every, a, ingestor, out)
		},
	}

	cmd.Flags().DurationVar(&every, "every", 0, "repeat ingestion at this interval until interrupted")
	cmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "ignore cached ETag/Last-Modified validators")
	return cmd
}

func runOnce(ctx context.Context, ingestor *pipeline.Ingestor, out io.Writer) error {
	report, err := ingestor.Run(ctx)
	if report != nil && !report.FinishedAt.IsZero() {
		printIngestReport(out, report)
	}
	return err
}

// watch repeats ingestion on a ticker. Lock conflicts and an unreachable
// remote database only skip a tick.
func watch(ctx context.Context, every time.Duration, a *app, ingestor *pipeline.Ingestor, out io.Writer) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		err := runOnce(ctx, ingestor, out)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, apperr.ErrConcurrency), errors.Is(err, apperr.ErrExternalService):
			a.logger.Warn("ingestion skipped", "error", err, "next_in", every)
		default:
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printIngestReport(w io.Writer, r *pipeline.IngestReport) {
	printCounts(w, "Ingestion "+r.RunID, []count{
		{"feeds", r.Feeds},
		{"feed errors", r.FeedErrors},
		{"not modified", r.NotModified},
		{"found", r.Found},
		{"already seen", r.Skipped},
		{"published", r.Published},
		{"publish failures", r.Failed},
		{"scrape fallbacks", r.ScrapeMisses},
		{"classification fallbacks", r.Fallbacks},
		{"pruned", r.Pruned},
	}, r.Errors)
	fmt.Fprintln(w, dimStyle.Render("took "+r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()))
}
