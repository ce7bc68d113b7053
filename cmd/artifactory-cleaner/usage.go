package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fentz26/artifactory-cleaner/internal/bucket"
	"github.com/fentz26/artifactory-cleaner/internal/discovery"
	"github.com/fentz26/artifactory-cleaner/internal/report"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var usageReportCmd = &cobra.Command{
	Use:   "usage-report",
	Short: "Analyze usage and report where space is used",
	RunE:  runUsageReport,
}

var (
	usageRange   rangeFlags
	usageTo      string
	usageBuckets string
	usageDetails bool
)

func init() {
	fs := usageReportCmd.Flags()
	usageRange.register(fs, "analyze")
	fs.StringVar(&usageTo, "to", "", "Latest date to include in search; defaults to now")
	fs.StringVar(&usageBuckets, "buckets", "", "Comma separated list of bucket sizes (age in days) to group artifacts by")
	fs.BoolVar(&usageDetails, "details", false, "Produce a detailed report listing all artifacts")
}

func runUsageReport(cmd *cobra.Command, args []string) error {
	from, err := parseDate(usageRange.from)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to := time.Now()
	if usageTo != "" {
		if to, err = parseDate(usageTo); err != nil {
			return fmt.Errorf("--to: %w", err)
		}
	}
	var boundaries []bucket.Limit
	if usageBuckets != "" {
		if boundaries, err = bucket.ParseBoundaries(usageBuckets); err != nil {
			return fmt.Errorf("--buckets: %w", err)
		}
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

	a.logger.Debug("bucketizing artifacts",
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Strings("repos", usageRange.repos))
	col, failures, err := ctrl.Bucketize(cmd.Context(), discovery.Query{
		From:        from,
		To:          to,
		Repos:       usageRange.repos,
		Concurrency: usageRange.threads,
	}, boundaries)
	if err != nil {
		return err
	}
	for _, f := range failures {
		a.logger.Warn("artifact could not be resolved", zap.String("uri", f.URI), zap.Error(f.Err))
	}

	fmt.Fprintln(os.Stderr, report.Heading("Usage by age"))
	if err := report.WriteBucketSummary(os.Stderr, col); err != nil {
		return err
	}
	if usageDetails {
		return report.WriteBucketDetails(os.Stdout, col)
	}
	return nil
}
