package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/artifactory-cleaner/internal/cleaner"
	"github.com/spf13/pflag"
)

// dateLayouts are tried in order when parsing date flags. Layouts without a
// zone are read in local time.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseDate parses a date flag value.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time %q, use YYYY-MM-DD HH:MM:SS", s)
}

// parseOptionalDate parses s, returning nil when it is empty.
func parseOptionalDate(name, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &t, nil
}

// defaultFrom is two years before now.
func defaultFrom() string {
	return time.Now().AddDate(-2, 0, 0).Format("2006-01-02 15:04:05")
}

// rangeFlags select the part of the repository to search.
type rangeFlags struct {
	repos   []string
	from    string
	threads int
}

func (f *rangeFlags) register(fs *pflag.FlagSet, what string) {
	fs.StringSliceVar(&f.repos, "repos", nil, fmt.Sprintf("Repos to %s; all repos if omitted", what))
	fs.StringVar(&f.from, "from", defaultFrom(), "Earliest date to include in search; defaults to 2 years ago")
	fs.IntVar(&f.threads, "threads", 0, "Number of workers fetching artifact info (default from config)")
}

// batchFlags are shared by archive and clean.
type batchFlags struct {
	rangeFlags
	dryRun           bool
	createdBefore    string
	modifiedBefore   string
	downloadedBefore string
	lastUsedBefore   string
	archiveTo        string
	filterPath       string
}

func (f *batchFlags) register(fs *pflag.FlagSet, verb string) {
	f.rangeFlags.register(fs, strings.ToLower(verb))
	fs.BoolVarP(&f.dryRun, "dry-run", "n", false, "Do not change anything, only show what actions would have been taken")
	fs.StringVar(&f.createdBefore, "created-before", "", fmt.Sprintf("%s artifacts with a created date earlier than the provided value", verb))
	fs.StringVar(&f.modifiedBefore, "modified-before", "", fmt.Sprintf("%s artifacts with a last modified date earlier than the provided value", verb))
	fs.StringVar(&f.downloadedBefore, "downloaded-before", "", fmt.Sprintf("%s artifacts with a last downloaded date earlier than the provided value", verb))
	fs.StringVar(&f.lastUsedBefore, "last-used-before", "", fmt.Sprintf("%s artifacts which were created, last modified and last downloaded before the provided date", verb))
	fs.StringVar(&f.filterPath, "filter", "", "YAML file containing filter rules to use")
}

// criteria parses the cutoff flags.
func (f *batchFlags) criteria() (cleaner.Criteria, error) {
	var c cleaner.Criteria
	var err error
	if c.CreatedBefore, err = parseOptionalDate("created-before", f.createdBefore); err != nil {
		return c, err
	}
	if c.ModifiedBefore, err = parseOptionalDate("modified-before", f.modifiedBefore); err != nil {
		return c, err
	}
	if c.DownloadedBefore, err = parseOptionalDate("downloaded-before", f.downloadedBefore); err != nil {
		return c, err
	}
	if c.LastUsedBefore, err = parseOptionalDate("last-used-before", f.lastUsedBefore); err != nil {
		return c, err
	}
	if _, err := c.SearchEnd(); err != nil {
		return c, err
	}
	return c, nil
}
