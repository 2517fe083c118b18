package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pders01/newsroom/internal/guard"
	"github.com/pders01/newsroom/internal/pipeline"
	"github.com/pders01/newsroom/internal/storage"
)

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stored articles, locks and the last runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(flags)
			if err != nil {
				return err
			}
			defer log.Close()

			out := cmd.OutOrStdout()
			state := storage.OpenState(cfg.State.Path, log.Logger)

			printTitle(out, "State")
			printTable(out, []string{"Key", "Value"}, [][]string{
				{"state file", cfg.State.Path},
				{"stored articles", strconv.Itoa(state.Len())},
				{"feeds", strconv.Itoa(len(cfg.Feeds))},
				{"auto prune above", strconv.Itoa(cfg.Ingest.AutoPruneThreshold)},
			})

			printLocks(out, guard.New(cfg.State.LockDir))

			if _, err := os.Stat(cfg.State.CachePath); err != nil {
				fmt.Fprintln(out, dimStyle.Render("no run recorded yet"))
				return nil
			}
			meta, err := storage.OpenMetaStoreReadOnly(cfg.State.CachePath, cfg.State.CacheTimeout)
			if err != nil {
				fmt.Fprintln(out, dimStyle.Render("run history unavailable: "+err.Error()))
				return nil
			}
			defer meta.Close()
			return printHistory(out, meta)
		},
	}
}

func printLocks(w io.Writer, g *guard.Guard) {
	printTitle(w, "Locks")
	markers := g.Markers()
	held := make(map[guard.Name]guard.Marker, len(markers))
	for _, m := range markers {
		held[m.Name] = m
	}

	rows := make([][]string, 0, len(guard.Names))
	for _, name := range guard.Names {
		m, ok := held[name]
		if !ok {
			rows = append(rows, []string{string(name), "free", "-", "-"})
			continue
		}
		pid := "-"
		if m.PID > 0 {
			pid = strconv.Itoa(m.PID)
		}
		rows = append(rows, []string{string(name), "held", pid, m.Created.Format(time.RFC3339)})
	}
	printTable(w, []string{"Lock", "State", "PID", "Since"}, rows)
}

func printHistory(w io.Writer, meta *storage.MetaStore) error {
	var ingest pipeline.IngestReport
	ok, err := meta.LoadReport(pipeline.KindIngest, &ingest)
	if err != nil {
		return err
	}
	if ok {
		printIngestReport(w, &ingest)
	}

	var prune pipeline.PruneReport
	if ok, err = meta.LoadReport(pipeline.KindPrune, &prune); err != nil {
		return err
	}
	if ok {
		printPruneReport(w, &prune)
	}

	var wipe pipeline.WipeReport
	if ok, err = meta.LoadReport(pipeline.KindWipe, &wipe); err != nil {
		return err
	}
	if ok {
		printWipeReport(w, &wipe)
	}
	return nil
}
