package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pders01/newsroom/internal/pipeline"
)

func newWipeCmd(flags *globalFlags) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Archive every page of the database and forget them locally",
		Long: `Archive every page of the Notion database, dropping the matching local
articles one by one, and delete the language model interaction logs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Archive every page of the database?") {
				fmt.Fprintln(cmd.OutOrStdout(), "aborted")
				return nil
			}

			a, err := openApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := pipeline.NewWiper(a.deps).Run(cmd.Context())
			if report != nil && !report.FinishedAt.IsZero() {
				printWipeReport(cmd.OutOrStdout(), report)
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "o", "oui":
		return true
	default:
		return false
	}
}

func printWipeReport(w io.Writer, r *pipeline.WipeReport) {
	printCounts(w, "Wipe "+r.RunID, []count{
		{"pages", r.Pages},
		{"archived", r.Archived},
		{"forgotten locally", r.Removed},
		{"interaction logs deleted", r.LogsPurged},
	}, r.Errors)
}
