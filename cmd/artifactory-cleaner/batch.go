package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fentz26/artifactory-cleaner/internal/audit"
	"github.com/fentz26/artifactory-cleaner/internal/cleaner"
	"github.com/fentz26/artifactory-cleaner/internal/filter"
	"github.com/fentz26/artifactory-cleaner/internal/objectstore"
	"github.com/fentz26/artifactory-cleaner/internal/report"
	"github.com/fentz26/artifactory-cleaner/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Download artifacts meeting specific criteria",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd.Context(), cleaner.ModeArchive, &archiveFlags)
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete artifacts meeting specific criteria",
	Long: `Clean up an Artifactory instance by deleting old, unused artifacts which meet the
given date criteria and filter rules. With --archive-to, each artifact is downloaded
and verified before it is deleted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd.Context(), cleaner.ModeClean, &cleanFlags)
	},
}

var (
	archiveFlags batchFlags
	cleanFlags   batchFlags
)

func init() {
	archiveFlags.register(archiveCmd.Flags(), "Archive")
	archiveCmd.Flags().StringVar(&archiveFlags.archiveTo, "archive-to", "", "Save artifacts to the provided path (required)")
	archiveCmd.MarkFlagRequired("archive-to")

	cleanFlags.register(cleanCmd.Flags(), "Delete")
	cleanCmd.Flags().StringVar(&cleanFlags.archiveTo, "archive-to", "", "Save artifacts to the provided path before deletion")
}

// buildPlan turns flags into a plan.
func buildPlan(mode cleaner.Mode, f *batchFlags) (cleaner.Plan, error) {
	plan := cleaner.Plan{
		Mode:        mode,
		DryRun:      f.dryRun,
		Repos:       f.repos,
		Concurrency: f.threads,
	}
	var err error
	if plan.From, err = parseDate(f.from); err != nil {
		return plan, fmt.Errorf("--from: %w", err)
	}
	if plan.Criteria, err = f.criteria(); err != nil {
		return plan, err
	}
	if f.filterPath != "" {
		if plan.Filter, err = filter.Load(f.filterPath); err != nil {
			return plan, fmt.Errorf("unable to read filter file %s: %w", f.filterPath, err)
		}
	}
	if f.archiveTo != "" {
		if plan.ArchiveTo, err = cleaner.ValidateArchiveDir(f.archiveTo); err != nil {
			return plan, err
		}
	}
	return plan, nil
}

func runBatch(ctx context.Context, mode cleaner.Mode, f *batchFlags) error {
	plan, err := buildPlan(mode, f)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctrl, err := a.controller()
	if err != nil {
		return err
	}
	opts := []cleaner.Option{
		cleaner.WithLogger(a.logger),
		cleaner.WithMetrics(a.metrics),
		cleaner.WithOutput(os.Stderr),
	}

	if plan.ArchiveTo != "" && !plan.DryRun && a.cfg.ArchiveMirror.Enabled() {
		mirror, err := objectstore.New(a.cfg.ArchiveMirror, a.logger)
		if err != nil {
			return err
		}
		if err := mirror.EnsureBucket(ctx); err != nil {
			return err
		}
		opts = append(opts, cleaner.WithMirror(mirror))
	}

	var finish func(summary string)
	if !a.cfg.Ledger.Disabled {
		s, err := store.New(a.cfg.Ledger.Path)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer s.Close()

		q, err := plan.Query()
		if err != nil {
			return err
		}
		run, err := s.CreateRun(string(mode), plan.DryRun, q.From, q.To)
		if err != nil {
			return err
		}
		a.logger.Info("recording run", zap.String("run_id", run.ID))
		opts = append(opts, cleaner.WithRecorder(audit.NewRecorder(s, run.ID)))
		finish = func(summary string) {
			if err := s.FinishRun(run.ID, summary); err != nil {
				a.logger.Warn("failed to finish run", zap.String("run_id", run.ID), zap.Error(err))
			}
		}
	}

	rep, runErr := cleaner.NewRunner(ctrl, opts...).Run(ctx, plan)
	if finish != nil {
		summary := rep.Summary()
		if runErr != nil {
			summary += "; stopped: " + runErr.Error()
		}
		finish(summary)
	}
	if err := report.WriteTallies(os.Stdout, rep.Tallies(mode)); err != nil {
		return err
	}
	for _, failure := range rep.Failures {
		fmt.Fprintf(os.Stderr, "failed: %v\n", failure)
	}
	if runErr != nil {
		return runErr
	}
	if n := len(rep.Failures); n > 0 {
		return fmt.Errorf("%d artifacts failed", n)
	}
	return nil
}
