package main

import (
	"fmt"
	"os"

	"github.com/fentz26/artifactory-cleaner/internal/report"
	"github.com/fentz26/artifactory-cleaner/internal/store"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded archive and clean runs",
	RunE:  runHistory,
}

var (
	historyRun   string
	historyLimit int
)

func init() {
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Show the decisions of one run")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Ledger.Disabled {
		return fmt.Errorf("the ledger is disabled in the configuration")
	}
	s, err := store.New(a.cfg.Ledger.Path)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer s.Close()

	if historyRun == "" {
		runs, err := s.ListRuns(historyLimit)
		if err != nil {
			return err
		}
		return report.WriteRuns(os.Stdout, runs)
	}

	run, err := s.GetRun(historyRun)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run not found: %s", historyRun)
	}
	decisions, err := s.ListDecisions(run.ID)
	if err != nil {
		return err
	}
	if err := report.WriteRunDetail(os.Stdout, run, decisions); err != nil {
		return err
	}

	totals, err := s.SummarizeRun(run.ID)
	if err != nil {
		return err
	}
	tallies := make([]report.Tally, 0, len(totals))
	for _, t := range totals {
		tallies = append(tallies, report.Tally{Label: string(t.Disposition), Count: t.Count, Bytes: t.Bytes})
	}
	fmt.Fprintln(os.Stdout)
	return report.WriteTallies(os.Stdout, tallies)
}
