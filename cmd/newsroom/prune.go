package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/pders01/newsroom/internal/pipeline"
)

func newPruneCmd(flags *globalFlags) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Archive and forget the oldest published articles",
		Long: `Archive the pages of the oldest stored articles and drop them from the
local state. Articles without a date go first. Articles are dropped even
when archiving their page fails; those failures are reported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := pipeline.NewPruner(a.deps).Run(cmd.Context(), n)
			if report != nil && !report.FinishedAt.IsZero() {
				printPruneReport(cmd.OutOrStdout(), report)
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&n, "count", "n", 0, "number of articles to prune (default ingest.prune_batch_size)")
	return cmd
}

func printPruneReport(w io.Writer, r *pipeline.PruneReport) {
	printCounts(w, "Prune "+r.RunID, []count{
		{"targeted", r.Targeted},
		{"removed", r.Removed},
		{"archived", r.Archived},
		{"archive failures", r.RemoteFailed},
		{"remaining", r.Remaining},
	}, r.Errors)
}
