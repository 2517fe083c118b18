package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pders01/newsroom/internal/pipeline"
)

func newResetCmd(flags *globalFlags) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the local state so every article is new again",
		Long: `Delete the local state file and the cached feed validators. Pages already
in the database are left alone, so the next run may publish them again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Delete the local state?") {
				fmt.Fprintln(cmd.OutOrStdout(), "aborted")
				return nil
			}

			a, err := openApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := pipeline.Reset(cmd.Context(), a.deps, a.meta); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "state reset: %s\n", a.state.Path())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
