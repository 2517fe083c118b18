package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pders01/newsroom/internal/guard"
)

func newUnlockCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Remove lock markers left behind by a killed process",
		Long: `Remove every pipeline lock marker. Locks are released on normal exit
and on interrupt, but a killed process leaves its marker behind. Make sure
no pipeline is actually running before using this.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(flags)
			if err != nil {
				return err
			}
			defer log.Close()

			removed, err := guard.New(cfg.State.LockDir).ForceUnlock()
			out := cmd.OutOrStdout()
			if len(removed) == 0 && err == nil {
				fmt.Fprintln(out, "no lock held")
				return nil
			}
			for _, m := range removed {
				log.Info("lock removed", "lock", m.Name, "pid", m.PID, "path", m.Path)
				fmt.Fprintf(out, "removed %s lock (%s)\n", m.Name, m.Path)
			}
			return err
		},
	}
}
